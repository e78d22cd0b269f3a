package store

import "context"

const archivedSpecColumns = `id, name, display_name, content, repository_path, repository_name, archived_at`

func scanArchivedSpec(row interface{ Scan(...any) error }) (*ArchivedSpec, error) {
	var a ArchivedSpec
	var archivedAt string
	err := row.Scan(&a.ID, &a.Name, &a.DisplayName, &a.Content, &a.RepositoryPath, &a.RepositoryName, &archivedAt)
	if err != nil {
		return nil, err
	}
	a.ArchivedAt = parseTime(archivedAt)
	return &a, nil
}

// InsertArchivedSpec copies a Spec (or a cancelled Session's prior
// content) into the archive table.
func (s *Store) InsertArchivedSpec(ctx context.Context, a *ArchivedSpec) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archived_specs (`+archivedSpecColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.DisplayName, a.Content, a.RepositoryPath, a.RepositoryName, timeToRFC3339(a.ArchivedAt),
	)
	return wrapSQLErr(err, "insert_archived_spec")
}

// ListArchivedSpecs returns archived specs newest-first.
func (s *Store) ListArchivedSpecs(ctx context.Context) ([]*ArchivedSpec, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+archivedSpecColumns+` FROM archived_specs ORDER BY archived_at DESC`)
	if err != nil {
		return nil, wrapSQLErr(err, "list_archived_specs")
	}
	defer rows.Close()

	var out []*ArchivedSpec
	for rows.Next() {
		a, err := scanArchivedSpec(rows)
		if err != nil {
			return nil, wrapSQLErr(err, "scan_archived_spec")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr(err, "iterate_archived_specs")
	}
	return out, nil
}

func (s *Store) DeleteArchivedSpec(ctx context.Context, id string) error {
	return s.execUpdate(ctx, "delete_archived_spec", `DELETE FROM archived_specs WHERE id = ?`, id)
}

// EnforceArchiveLimit trims the archive to the most recent limit rows,
// deleting anything older. A bounded LRU retention policy, per the data
// model's "per-project retention limit" note.
func (s *Store) EnforceArchiveLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM archived_specs
		WHERE id NOT IN (
			SELECT id FROM archived_specs ORDER BY archived_at DESC LIMIT ?
		)`, limit)
	return wrapSQLErr(err, "enforce_archive_limit")
}
