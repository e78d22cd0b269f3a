package store

import (
	"context"
	"database/sql"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"fmt"
)

// GetProjectConfigValue reads one key from the project_config table. This
// backs the per-project settings the control surface can read/write at
// runtime (e.g. setup_script, branch_prefix); it is the durable
// overlay on top of the .schaltwerk/config.json defaults the Config
// component loads at startup.
func (s *Store) GetProjectConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.readDB.QueryRowContext(ctx, `SELECT value FROM project_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("get_project_config_value(%s): %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return "", wrapSQLErr(err, "get_project_config_value")
	}
	return value, nil
}

// SetProjectConfigValue upserts one key in the project_config table.
func (s *Store) SetProjectConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return wrapSQLErr(err, "set_project_config_value")
}

// ListProjectConfig returns every key/value pair currently stored.
func (s *Store) ListProjectConfig(ctx context.Context) (map[string]string, error) {
	return s.listKV(ctx, "project_config")
}

// GetAppConfigValue reads one key from the machine-wide app_config table.
func (s *Store) GetAppConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.readDB.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("get_app_config_value(%s): %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return "", wrapSQLErr(err, "get_app_config_value")
	}
	return value, nil
}

// SetAppConfigValue upserts one key in the app_config table.
func (s *Store) SetAppConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return wrapSQLErr(err, "set_app_config_value")
}

func (s *Store) listKV(ctx context.Context, table string) (map[string]string, error) {
	// table is always one of the two compile-time constants passed by
	// methods in this file, never caller input.
	query := "SELECT key, value FROM " + table
	rows, err := s.readDB.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapSQLErr(err, "list_"+table)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, wrapSQLErr(err, "scan_"+table)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr(err, "iterate_"+table)
	}
	return out, nil
}
