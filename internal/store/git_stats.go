package store

import "context"

// SaveGitStats upserts the cached diff metrics for one session.
func (s *Store) SaveGitStats(ctx context.Context, g *GitStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO git_stats (session_id, files_changed, lines_added, lines_removed, has_uncommitted, calculated_at, last_diff_change_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			files_changed = excluded.files_changed,
			lines_added = excluded.lines_added,
			lines_removed = excluded.lines_removed,
			has_uncommitted = excluded.has_uncommitted,
			calculated_at = excluded.calculated_at,
			last_diff_change_ts = excluded.last_diff_change_ts`,
		g.SessionID, g.FilesChanged, g.LinesAdded, g.LinesRemoved, g.HasUncommitted,
		timeToRFC3339(g.CalculatedAt), timeToRFC3339(g.LastDiffChangeTS),
	)
	return wrapSQLErr(err, "save_git_stats")
}

// GetGitStatsBulk fetches cached stats for a set of session ids in one
// query, used by list_enriched_sessions to avoid N+1 lookups.
func (s *Store) GetGitStatsBulk(ctx context.Context, sessionIDs []string) (map[string]*GitStats, error) {
	out := make(map[string]*GitStats, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}

	placeholders := make([]byte, 0, len(sessionIDs)*2)
	args := make([]any, 0, len(sessionIDs))
	for i, id := range sessionIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	query := `SELECT session_id, files_changed, lines_added, lines_removed, has_uncommitted, calculated_at, last_diff_change_ts
		FROM git_stats WHERE session_id IN (` + string(placeholders) + `)`

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapSQLErr(err, "get_git_stats_bulk")
	}
	defer rows.Close()

	for rows.Next() {
		var g GitStats
		var calcAt, diffAt string
		if err := rows.Scan(&g.SessionID, &g.FilesChanged, &g.LinesAdded, &g.LinesRemoved, &g.HasUncommitted, &calcAt, &diffAt); err != nil {
			return nil, wrapSQLErr(err, "scan_git_stats")
		}
		g.CalculatedAt = parseTime(calcAt)
		g.LastDiffChangeTS = parseTime(diffAt)
		out[g.SessionID] = &g
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLErr(err, "iterate_git_stats")
	}
	return out, nil
}
