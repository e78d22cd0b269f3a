package session

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// EnrichedSession is a Session joined with its cached GitStats, plus the
// bookkeeping list_enriched_sessions needs to present specs alongside
// real sessions in one uniform list.
type EnrichedSession struct {
	Session *store.Session
	Stats   *store.GitStats
	// Missing reports a session whose worktree directory is absent. The
	// session stays in the list rather than being dropped: the check is
	// informational only, since a worktree can be transiently absent
	// during filesystem syncs or external tooling runs.
	Missing bool
	// IsSpec marks a row synthesized from a Spec rather than a real
	// Session, so the UI can render both kinds in one list.
	IsSpec bool
}

// ListEnrichedSessions joins every non-cancelled session and every spec
// in the project into one list for display: sessions carry bulk-fetched
// GitStats (served from cache and refreshed in the background when
// stale), and specs are mapped to virtual sessions so the UI never needs
// to special-case them.
func (m *Manager) ListEnrichedSessions(ctx context.Context) ([]EnrichedSession, error) {
	all, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*store.Session, 0, len(all))
	for _, s := range all {
		if s.Status != store.StatusCancelled {
			sessions = append(sessions, s)
		}
	}
	specs, err := m.store.ListSpecs(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	bulk, err := m.store.GetGitStatsBulk(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]EnrichedSession, 0, len(sessions)+len(specs))
	for _, sess := range sessions {
		stats := m.statsForSession(sess, bulk[sess.ID])
		_, statErr := os.Stat(sess.WorktreePath)
		out = append(out, EnrichedSession{
			Session: sess,
			Stats:   stats,
			Missing: statErr != nil,
		})
	}
	for _, sp := range specs {
		out = append(out, EnrichedSession{Session: specToVirtualSession(sp), IsSpec: true})
	}
	return out, nil
}

// statsForSession serves cached stats immediately, kicking off a
// background refresh when they are stale or absent rather than making
// the caller wait on a git diff.
func (m *Manager) statsForSession(sess *store.Session, fromBulk *store.GitStats) *store.GitStats {
	m.statsMu.Lock()
	cached, ok := m.statsCache[sess.ID]
	m.statsMu.Unlock()

	current := fromBulk
	if current == nil {
		current = cached
	}

	stale := current == nil || time.Since(current.CalculatedAt) > staleStatsThreshold
	if stale {
		go m.refreshStatsInBackground(sess.ID, sess.WorktreePath, sess.ParentBranch)
	} else {
		m.statsMu.Lock()
		m.statsCache[sess.ID] = current
		m.statsMu.Unlock()
	}
	return current
}

// specToVirtualSession renders a Spec as a Session-shaped row so the
// list can present both in one shape; a spec has no worktree or branch,
// so those fields stay empty and Missing/Stats are left at their zero
// value by the caller.
func specToVirtualSession(sp *store.Spec) *store.Session {
	return &store.Session{
		ID:             sp.ID,
		Name:           sp.Name,
		DisplayName:    sp.DisplayName,
		RepositoryPath: sp.RepositoryPath,
		RepositoryName: sp.RepositoryName,
		Status:         store.StatusSpec,
		SessionState:   store.StateSpec,
		SpecContent:    sp.Content,
		CreatedAt:      sp.CreatedAt,
		UpdatedAt:      sp.UpdatedAt,
	}
}

// LogCacheSize reports how many sessions currently have a cached stats
// entry, used by a future metrics endpoint to watch cache growth.
func (m *Manager) LogCacheSize(ctx context.Context) {
	m.statsMu.Lock()
	n := len(m.statsCache)
	m.statsMu.Unlock()
	m.logger.Debug(ctx, "session stats cache size", zap.Int("entries", n))
}
