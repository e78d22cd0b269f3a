package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

const sessionColumns = `id, name, display_name, branch, parent_branch, original_parent_branch,
	worktree_path, repository_path, repository_name, status, session_state,
	ready_to_merge, original_agent_type, original_skip_permissions, initial_prompt,
	spec_content, resume_allowed, amp_thread_id, version_group_id, version_number,
	pr_number, pr_url, created_at, updated_at, last_activity`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var status, state string
	var createdAt, updatedAt, lastActivity string
	err := row.Scan(
		&s.ID, &s.Name, &s.DisplayName, &s.Branch, &s.ParentBranch, &s.OriginalParentBranch,
		&s.WorktreePath, &s.RepositoryPath, &s.RepositoryName, &status, &state,
		&s.ReadyToMerge, &s.OriginalAgentType, &s.OriginalSkipPermissions, &s.InitialPrompt,
		&s.SpecContent, &s.ResumeAllowed, &s.AmpThreadID, &s.VersionGroupID, &s.VersionNumber,
		&s.PRNumber, &s.PRURL, &createdAt, &updatedAt, &lastActivity,
	)
	if err != nil {
		return nil, err
	}
	s.Status = SessionStatus(status)
	s.SessionState = SessionState(state)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	s.LastActivity = parseTime(lastActivity)
	return &s, nil
}

// CreateSession inserts a session row. If status is Spec, session_state
// is forced to Spec regardless of the caller's value, per the data
// model's invariant that a Spec-status row is always in the Spec state.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	state := sess.SessionState
	if sess.Status == StatusSpec {
		state = StateSpec
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.DisplayName, sess.Branch, sess.ParentBranch, sess.OriginalParentBranch,
		sess.WorktreePath, sess.RepositoryPath, sess.RepositoryName, string(sess.Status), string(state),
		sess.ReadyToMerge, sess.OriginalAgentType, sess.OriginalSkipPermissions, sess.InitialPrompt,
		sess.SpecContent, sess.ResumeAllowed, sess.AmpThreadID, sess.VersionGroupID, sess.VersionNumber,
		sess.PRNumber, sess.PRURL, timeToRFC3339(sess.CreatedAt), timeToRFC3339(sess.UpdatedAt), timeToRFC3339(sess.LastActivity),
	)
	return wrapSQLErr(err, "create_session")
}

// GetSessionByID fetches one session by its opaque id.
func (s *Store) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, wrapSQLErr(err, "get_session_by_id")
	}
	return sess, nil
}

// GetSessionByName fetches one session by its human-facing, per-project-unique name.
func (s *Store) GetSessionByName(ctx context.Context, name string) (*Session, error) {
	row := s.readDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE name = ?`, name)
	sess, err := scanSession(row)
	if err != nil {
		return nil, wrapSQLErr(err, "get_session_by_name")
	}
	return sess, nil
}

// ListSessions returns every session row, newest activity first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY last_activity DESC`)
	if err != nil {
		return nil, wrapSQLErr(err, "list_sessions")
	}
	defer rows.Close()
	return scanSessionRows(rows)
}

// ListSessionsByState filters to a single session_state value.
func (s *Store) ListSessionsByState(ctx context.Context, state SessionState) ([]*Session, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_state = ? ORDER BY last_activity DESC`, string(state))
	if err != nil {
		return nil, wrapSQLErr(err, "list_sessions_by_state")
	}
	defer rows.Close()
	return scanSessionRows(rows)
}

func scanSessionRows(rows *sql.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrapSQLErr(err, "scan_session")
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr(err, "iterate_sessions")
	}
	return out, nil
}

func (s *Store) execUpdate(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapSQLErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQLErr(err, op)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error {
	return s.execUpdate(ctx, "update_session_status",
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), timeToRFC3339(time.Now()), id)
}

func (s *Store) UpdateSessionState(ctx context.Context, id string, state SessionState) error {
	return s.execUpdate(ctx, "update_session_state",
		`UPDATE sessions SET session_state = ?, updated_at = ? WHERE id = ?`,
		string(state), timeToRFC3339(time.Now()), id)
}

func (s *Store) UpdateSessionReadyToMerge(ctx context.Context, id string, ready bool) error {
	return s.execUpdate(ctx, "update_session_ready_to_merge",
		`UPDATE sessions SET ready_to_merge = ?, updated_at = ? WHERE id = ?`,
		ready, timeToRFC3339(time.Now()), id)
}

func (s *Store) UpdateSessionBranch(ctx context.Context, id, branch string) error {
	return s.execUpdate(ctx, "update_session_branch",
		`UPDATE sessions SET branch = ?, updated_at = ? WHERE id = ?`,
		branch, timeToRFC3339(time.Now()), id)
}

func (s *Store) UpdateSessionParentBranch(ctx context.Context, id, parentBranch string) error {
	return s.execUpdate(ctx, "update_session_parent_branch",
		`UPDATE sessions SET parent_branch = ?, updated_at = ? WHERE id = ?`,
		parentBranch, timeToRFC3339(time.Now()), id)
}

func (s *Store) UpdateSessionDisplayName(ctx context.Context, id, displayName string) error {
	return s.execUpdate(ctx, "update_session_display_name",
		`UPDATE sessions SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, timeToRFC3339(time.Now()), id)
}

func (s *Store) SetSessionResumeAllowed(ctx context.Context, id string, allowed bool) error {
	return s.execUpdate(ctx, "set_session_resume_allowed",
		`UPDATE sessions SET resume_allowed = ?, updated_at = ? WHERE id = ?`,
		allowed, timeToRFC3339(time.Now()), id)
}

func (s *Store) SetSessionOriginalSettings(ctx context.Context, id, agentType string, skipPermissions bool) error {
	return s.execUpdate(ctx, "set_session_original_settings",
		`UPDATE sessions SET original_agent_type = ?, original_skip_permissions = ?, updated_at = ? WHERE id = ?`,
		agentType, skipPermissions, timeToRFC3339(time.Now()), id)
}

func (s *Store) SetSessionAmpThreadID(ctx context.Context, id, threadID string) error {
	return s.execUpdate(ctx, "set_session_amp_thread_id",
		`UPDATE sessions SET amp_thread_id = ?, updated_at = ? WHERE id = ?`,
		threadID, timeToRFC3339(time.Now()), id)
}

func (s *Store) SetSessionActivity(ctx context.Context, id string, at time.Time) error {
	return s.execUpdate(ctx, "set_session_activity",
		`UPDATE sessions SET last_activity = ? WHERE id = ?`,
		timeToRFC3339(at), id)
}

// SetSessionPullRequest records the PR a GitHub CLI collaborator created
// or found for this session. number is 0 when the URL's PR number could
// not be determined (still useful for the URL alone).
func (s *Store) SetSessionPullRequest(ctx context.Context, id string, number int, url string) error {
	return s.execUpdate(ctx, "set_session_pull_request",
		`UPDATE sessions SET pr_number = ?, pr_url = ?, updated_at = ? WHERE id = ?`,
		number, url, timeToRFC3339(time.Now()), id)
}

// DeleteSession removes a session row outright (used after cancellation
// once the filesystem side effects are done and no tombstone is needed).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.execUpdate(ctx, "delete_session", `DELETE FROM sessions WHERE id = ?`, id)
}
