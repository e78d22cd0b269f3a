package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/sanitize"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
	"github.com/schaltwerk/schaltwerk-core/internal/worktree"
)

// ConvertToSpec cancels a running session and turns its prior prompt and
// agent settings into a draft Spec, so the work can be restarted later
// without losing the instructions that produced it.
func (m *Manager) ConvertToSpec(ctx context.Context, sessionID string) (*store.Spec, error) {
	sess, err := m.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := m.CancelSession(ctx, sessionID, CancelConfig{}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sp := &store.Spec{
		ID:             uuid.New().String(),
		Name:           sess.Name,
		DisplayName:    sess.DisplayName,
		Content:        sess.InitialPrompt,
		RepositoryPath: sess.RepositoryPath,
		RepositoryName: sess.RepositoryName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.lockRepo()
	err = m.store.CreateSpec(ctx, sp)
	m.unlockRepo()
	if err != nil {
		return nil, err
	}
	return sp, nil
}

// StartSpecSession materializes a draft Spec as a running Session: the
// spec row is removed, a fresh session is created in its place, and
// resume_allowed is forced false so the very first launch is always a
// clean start even if stray agent log files exist on disk from a prior
// attempt at the same name.
func (m *Manager) StartSpecSession(ctx context.Context, specName string, displayName string, params CreateParams) (*store.Session, error) {
	sp, err := m.store.GetSpecByName(ctx, specName)
	if err != nil {
		return nil, err
	}

	if params.Name == "" {
		params.Name = sp.Name
	}
	if params.Prompt == "" {
		params.Prompt = sp.Content
	}

	m.lockRepo()
	err = m.store.DeleteSpec(ctx, sp.ID)
	m.unlockRepo()
	if err != nil {
		return nil, err
	}

	sess, err := m.CreateSessionWithAgent(ctx, params)
	if err != nil {
		return nil, err
	}

	if displayName != "" {
		if err := m.applyDisplayName(ctx, sess, displayName); err != nil {
			return nil, err
		}
	}

	m.lockRepo()
	err = m.store.SetSessionResumeAllowed(ctx, sess.ID, false)
	m.unlockRepo()
	if err != nil {
		return nil, err
	}
	sess.ResumeAllowed = false

	return sess, nil
}

// applyDisplayName sanitizes a user-supplied display name, renames the
// underlying branch to match, retargets the worktree at the renamed
// branch, and persists both — in that order, so a failure partway
// through never leaves the branch and worktree pointing at different
// names.
func (m *Manager) applyDisplayName(ctx context.Context, sess *store.Session, displayName string) error {
	branch := sanitize.BranchName(m.cfg.BranchPrefix, displayName)
	if branch == sess.Branch {
		m.lockRepo()
		err := m.store.UpdateSessionDisplayName(ctx, sess.ID, displayName)
		m.unlockRepo()
		if err != nil {
			return err
		}
		sess.DisplayName = displayName
		return nil
	}

	f, err := gitfacade.Open(sess.RepositoryPath)
	if err != nil {
		return err
	}
	rollback, err := f.RenameBranch(sess.Branch, branch)
	if err != nil {
		return fmt.Errorf("rename branch %s to %s: %w", sess.Branch, branch, err)
	}

	if err := worktree.UpdateWorktreeBranch(sess.WorktreePath, branch); err != nil {
		if rbErr := rollback(); rbErr != nil {
			m.logger.Warn(context.Background(), "branch rename rollback failed")
		}
		return fmt.Errorf("retarget worktree to %s: %w", branch, err)
	}

	m.lockRepo()
	err = m.store.UpdateSessionBranch(ctx, sess.ID, branch)
	if err == nil {
		err = m.store.UpdateSessionDisplayName(ctx, sess.ID, displayName)
	}
	m.unlockRepo()
	if err != nil {
		return err
	}

	sess.Branch = branch
	sess.DisplayName = displayName
	return nil
}
