package store

import (
	"context"
	"database/sql"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"fmt"
)

const specColumns = `id, name, display_name, content, repository_path, repository_name, created_at, updated_at`

func scanSpec(row interface{ Scan(...any) error }) (*Spec, error) {
	var sp Spec
	var createdAt, updatedAt string
	err := row.Scan(&sp.ID, &sp.Name, &sp.DisplayName, &sp.Content, &sp.RepositoryPath, &sp.RepositoryName, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sp.CreatedAt = parseTime(createdAt)
	sp.UpdatedAt = parseTime(updatedAt)
	return &sp, nil
}

// CreateSpec inserts a new spec row.
func (s *Store) CreateSpec(ctx context.Context, sp *Spec) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO specs (`+specColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.Name, sp.DisplayName, sp.Content, sp.RepositoryPath, sp.RepositoryName,
		timeToRFC3339(sp.CreatedAt), timeToRFC3339(sp.UpdatedAt),
	)
	return wrapSQLErr(err, "create_spec")
}

// GetSpecByName fetches a spec by its per-project-unique name.
func (s *Store) GetSpecByName(ctx context.Context, name string) (*Spec, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+specColumns+` FROM specs WHERE name = ?`, name)
	sp, err := scanSpec(row)
	if err != nil {
		return nil, wrapSQLErr(err, "get_spec_by_name")
	}
	return sp, nil
}

// ListSpecs returns every spec row, most recently updated first.
func (s *Store) ListSpecs(ctx context.Context) ([]*Spec, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+specColumns+` FROM specs ORDER BY updated_at DESC`)
	if err != nil {
		return nil, wrapSQLErr(err, "list_specs")
	}
	defer rows.Close()

	var out []*Spec
	for rows.Next() {
		sp, err := scanSpec(rows)
		if err != nil {
			return nil, wrapSQLErr(err, "scan_spec")
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr(err, "iterate_specs")
	}
	return out, nil
}

// UpdateSpecContentByID rewrites the markdown body of a spec. If append
// is true, newContent is concatenated onto the existing content with a
// blank-line separator rather than replacing it.
func (s *Store) UpdateSpecContentByID(ctx context.Context, id, newContent string, appendContent bool) error {
	if appendContent {
		existing, err := s.getSpecContentByID(ctx, id)
		if err != nil {
			return err
		}
		if existing != "" {
			newContent = existing + "\n\n" + newContent
		}
	}
	return s.execUpdate(ctx, "update_spec_content_by_id",
		`UPDATE specs SET content = ?, updated_at = ? WHERE id = ?`,
		newContent, timeToRFC3339(timeNowUTC()), id)
}

func (s *Store) getSpecContentByID(ctx context.Context, id string) (string, error) {
	var content string
	err := s.readDB.QueryRowContext(ctx, `SELECT content FROM specs WHERE id = ?`, id).Scan(&content)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("get_spec_content_by_id: %w", errs.ErrNotFound)
	}
	if err != nil {
		return "", wrapSQLErr(err, "get_spec_content_by_id")
	}
	return content, nil
}

func (s *Store) UpdateSpecDisplayName(ctx context.Context, id, displayName string) error {
	return s.execUpdate(ctx, "update_spec_display_name",
		`UPDATE specs SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, timeToRFC3339(timeNowUTC()), id)
}

// DeleteSpec removes a spec row by id. Starting a spec consumes it this
// way: StartSpecSession deletes the spec first and then creates the
// session that replaces it.
func (s *Store) DeleteSpec(ctx context.Context, id string) error {
	return s.execUpdate(ctx, "delete_spec", `DELETE FROM specs WHERE id = ?`, id)
}
