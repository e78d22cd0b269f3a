package session

import (
	"context"
	"fmt"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// MarkReady flips a session to Reviewed, refusing when the worktree has
// uncommitted changes — a reviewer should never be handed a diff that
// doesn't match what's on disk.
func (m *Manager) MarkReady(ctx context.Context, sessionID string) error {
	sess, err := m.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	f, err := gitfacade.Open(sess.WorktreePath)
	if err != nil {
		return err
	}
	dirty, err := f.HasUncommittedChanges()
	if err != nil {
		return err
	}
	if dirty {
		paths, _ := f.UncommittedSamplePaths(5)
		return &errs.DirtyWorktreeError{SamplePaths: paths}
	}

	m.lockRepo()
	defer m.unlockRepo()
	if err := m.store.UpdateSessionReadyToMerge(ctx, sessionID, true); err != nil {
		return err
	}
	return m.store.UpdateSessionState(ctx, sessionID, store.StateReviewed)
}

// Unmark reverts a session from Reviewed back to Running, used both for
// an explicit user action and automatically whenever a follow-up message
// arrives for a session currently under review.
func (m *Manager) Unmark(ctx context.Context, sessionID string) error {
	m.lockRepo()
	defer m.unlockRepo()
	if err := m.store.UpdateSessionReadyToMerge(ctx, sessionID, false); err != nil {
		return err
	}
	return m.store.UpdateSessionState(ctx, sessionID, store.StateRunning)
}

// OnFollowUpMessage implements the rule that receiving a message for a
// Reviewed session pulls it back into Running automatically, since the
// user is evidently still iterating on it.
func (m *Manager) OnFollowUpMessage(ctx context.Context, sessionID string) error {
	sess, err := m.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.SessionState != store.StateReviewed {
		return nil
	}
	if err := m.Unmark(ctx, sessionID); err != nil {
		return fmt.Errorf("unmark %s on follow-up: %w", sess.Name, err)
	}
	return nil
}
