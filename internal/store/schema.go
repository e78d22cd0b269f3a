package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaVersion is the current schema generation. Migrations run at open
// and are idempotent; a fresh database is brought straight to this
// version in one pass.
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                        TEXT PRIMARY KEY,
		name                      TEXT NOT NULL UNIQUE,
		display_name              TEXT NOT NULL DEFAULT '',
		branch                    TEXT NOT NULL,
		parent_branch             TEXT NOT NULL,
		original_parent_branch    TEXT NOT NULL,
		worktree_path             TEXT NOT NULL,
		repository_path           TEXT NOT NULL,
		repository_name           TEXT NOT NULL,
		status                    TEXT NOT NULL,
		session_state             TEXT NOT NULL,
		ready_to_merge            INTEGER NOT NULL DEFAULT 0,
		original_agent_type       TEXT NOT NULL DEFAULT '',
		original_skip_permissions INTEGER NOT NULL DEFAULT 0,
		initial_prompt            TEXT NOT NULL DEFAULT '',
		spec_content              TEXT NOT NULL DEFAULT '',
		resume_allowed            INTEGER NOT NULL DEFAULT 0,
		amp_thread_id             TEXT NOT NULL DEFAULT '',
		version_group_id          TEXT NOT NULL DEFAULT '',
		version_number            INTEGER NOT NULL DEFAULT 0,
		pr_number                 INTEGER NOT NULL DEFAULT 0,
		pr_url                    TEXT NOT NULL DEFAULT '',
		created_at                TEXT NOT NULL,
		updated_at                TEXT NOT NULL,
		last_activity             TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(session_state);`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`,
	`CREATE TABLE IF NOT EXISTS specs (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		display_name    TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		repository_path TEXT NOT NULL,
		repository_name TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS archived_specs (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		display_name    TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		repository_path TEXT NOT NULL,
		repository_name TEXT NOT NULL,
		archived_at     TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_archived_specs_archived_at ON archived_specs(archived_at);`,
	`CREATE TABLE IF NOT EXISTS git_stats (
		session_id           TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		files_changed        INTEGER NOT NULL DEFAULT 0,
		lines_added          INTEGER NOT NULL DEFAULT 0,
		lines_removed        INTEGER NOT NULL DEFAULT 0,
		has_uncommitted      INTEGER NOT NULL DEFAULT 0,
		calculated_at        TEXT NOT NULL,
		last_diff_change_ts  TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS project_config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS app_config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
}

// migrate brings db to schemaVersion, running each statement inside a
// single transaction so a partial failure never leaves the schema half
// applied.
func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration statement: %w", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return fmt.Errorf("reading schema_meta: %w", err)
	}
	if count == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta(version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("seeding schema_meta: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET version = ?`, schemaVersion); err != nil {
			return fmt.Errorf("updating schema_meta: %w", err)
		}
	}

	return tx.Commit()
}
