package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/sanitize"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
	"github.com/schaltwerk/schaltwerk-core/internal/workerpool"
	"github.com/schaltwerk/schaltwerk-core/internal/worktree"
)

// CreateParams describes a new session. Fields left at their zero value
// fall back to the project's configured defaults.
type CreateParams struct {
	Name              string
	Prompt            string
	BaseBranch        string
	CustomBranch      string
	UseExistingBranch bool
	SyncWithOrigin    bool
	AgentType         string
	SkipPermissions   *bool
	VersionGroupID    string
	VersionNumber     int
}

// CreateSessionWithAgent runs the full 10-step creation sequence: name
// reservation and validation, branch/worktree-path derivation, parent
// branch resolution, worktree bootstrap, and persistence. On any failure
// after the worktree has been created, it removes the worktree, deletes
// the branch, and returns the error — the caller never observes a
// half-created session.
func (m *Manager) CreateSessionWithAgent(ctx context.Context, params CreateParams) (*store.Session, error) {
	m.lockRepo()
	defer m.unlockRepo()

	if err := sanitize.ValidateSessionName(params.Name); err != nil {
		return nil, err
	}
	if err := m.checkNameAvailable(ctx, params.Name); err != nil {
		return nil, err
	}

	f, err := gitfacade.Open(m.repoPath)
	if err != nil {
		return nil, err
	}

	if params.UseExistingBranch {
		if err := m.prepareExistingBranch(f, params.CustomBranch, params.SyncWithOrigin); err != nil {
			return nil, err
		}
	}

	uniqueName, branch, worktreePath, err := m.resolveNameBranchAndPath(f, params)
	if err != nil {
		return nil, err
	}

	var parentBranch string
	if params.UseExistingBranch {
		parentBranch, err = m.resolveParentBranch(f, "")
	} else {
		parentBranch, err = m.resolveParentBranch(f, params.BaseBranch)
	}
	if err != nil {
		return nil, err
	}

	agentType := params.AgentType
	if agentType == "" {
		agentType = m.cfg.DefaultAgentType
	}
	skipPermissions := m.cfg.DefaultSkipPermissions
	if params.SkipPermissions != nil {
		skipPermissions = *params.SkipPermissions
	}

	if err := m.ensureRepositoryInitialized(f, parentBranch); err != nil {
		return nil, err
	}

	base := parentBranch
	if params.UseExistingBranch {
		base = branch
	}
	if err := worktree.CreateWorktreeFromBase(m.repoPath, branch, worktreePath, base); err != nil {
		return nil, err
	}

	if agentType == "claude" {
		copyClaudeLocalOverrides(m.repoPath, worktreePath)
	}

	now := time.Now().UTC()
	sess := &store.Session{
		ID:                      uuid.New().String(),
		Name:                    uniqueName,
		Branch:                  branch,
		ParentBranch:            parentBranch,
		OriginalParentBranch:    parentBranch,
		WorktreePath:            worktreePath,
		RepositoryPath:          m.repoPath,
		RepositoryName:          m.repositoryName,
		Status:                  store.StatusActive,
		SessionState:            store.StateRunning,
		ReadyToMerge:            false,
		OriginalAgentType:       agentType,
		OriginalSkipPermissions: skipPermissions,
		InitialPrompt:           params.Prompt,
		ResumeAllowed:           true,
		VersionGroupID:          params.VersionGroupID,
		VersionNumber:           params.VersionNumber,
		CreatedAt:               now,
		UpdatedAt:               now,
		LastActivity:            now,
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		_ = worktree.RemoveWorktree(m.repoPath, worktreePath)
		_ = f.DeleteBranch(branch)
		return nil, err
	}

	go m.refreshStatsInBackground(sess.ID, sess.WorktreePath, sess.ParentBranch)

	m.events.Emit(ctx, EventSessionAdded, sess.Name)
	return sess, nil
}

// checkNameAvailable enforces invariant 1: a name must be free among both
// live sessions and live specs. A cancelled session holding the name is a
// tombstone; its row is deleted so the new session can take the name.
func (m *Manager) checkNameAvailable(ctx context.Context, name string) error {
	existing, err := m.store.GetSessionByName(ctx, name)
	if err == nil && existing.Status != store.StatusCancelled {
		return fmt.Errorf("session %q: %w", name, errs.ErrConflict)
	} else if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if _, err := m.store.GetSpecByName(ctx, name); err == nil {
		return fmt.Errorf("spec %q: %w", name, errs.ErrConflict)
	} else if !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if existing != nil {
		return m.store.DeleteSession(ctx, existing.ID)
	}
	return nil
}

// prepareExistingBranch validates that customBranch is eligible to back a
// use_existing_branch session: not already checked out elsewhere, and
// (optionally) fast-forwarded from origin first.
func (m *Manager) prepareExistingBranch(f *gitfacade.Facade, customBranch string, syncWithOrigin bool) error {
	if customBranch == "" {
		return fmt.Errorf("use_existing_branch requires custom_branch: %w", errs.ErrConflict)
	}
	inUse, err := worktree.IsBranchCheckedOutElsewhere(m.repoPath, customBranch)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("branch %s: %w", customBranch, errs.ErrBranchInUse)
	}

	if syncWithOrigin {
		if err := m.safeSyncBranchWithOrigin(f, customBranch); err != nil {
			m.logger.Warn(context.Background(), "could not sync branch with origin",
				zap.String("branch", customBranch), zap.Error(err))
		}
	}

	if !f.BranchExists(customBranch) {
		return fmt.Errorf("branch %s does not exist: %w", customBranch, errs.ErrRefNotFound)
	}
	return nil
}

// resolveNameBranchAndPath derives (name, branch, worktree_path): a
// custom branch may collide with an existing one, in which case it is
// suffixed; otherwise the project's default naming scheme is used.
func (m *Manager) resolveNameBranchAndPath(f *gitfacade.Facade, params CreateParams) (name, branch, worktreePath string, err error) {
	if params.CustomBranch == "" {
		name, branch, worktreePath = m.findUniqueSessionPaths(params.Name)
		return name, branch, worktreePath, nil
	}

	if err := sanitize.ValidateBranchName(params.CustomBranch); err != nil {
		return "", "", "", err
	}
	finalBranch, err := resolveCustomBranch(f.BranchExists(params.CustomBranch), params.CustomBranch)
	if err != nil {
		return "", "", "", err
	}
	worktreePath = filepath.Join(worktreesRoot(m.repoPath), params.Name)
	return params.Name, finalBranch, worktreePath, nil
}

// safeSyncBranchWithOrigin fast-forwards customBranch to origin/<branch>
// when that remote ref exists and is a strict descendant; it never
// overwrites local commits, and a missing remote is not an error since
// the branch may simply be local-only.
func (m *Manager) safeSyncBranchWithOrigin(f *gitfacade.Facade, branch string) error {
	localRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName(branch), false)
	if err != nil {
		return nil
	}
	remoteRef, err := f.Repository().Reference(plumbing.NewRemoteReferenceName("origin", branch), false)
	if err != nil {
		return nil
	}

	ok, err := f.FastForward(localRef.Hash(), remoteRef.Hash())
	if err != nil || !ok {
		return err
	}
	return f.SetTarget(branch, remoteRef.Hash())
}

// copyClaudeLocalOverrides propagates a project's uncommitted Claude
// configuration into a freshly created worktree, since those files are
// deliberately excluded from version control and so would not otherwise
// reach the checkout.
func copyClaudeLocalOverrides(repoPath, worktreePath string) {
	copyIfExists(filepath.Join(repoPath, "CLAUDE.local.md"), filepath.Join(worktreePath, "CLAUDE.local.md"))
	copyIfExists(filepath.Join(repoPath, ".claude", "settings.local.json"), filepath.Join(worktreePath, ".claude", "settings.local.json"))
}

func copyIfExists(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return
	}
	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()
	_, _ = io.Copy(out, in)
}

// refreshStatsInBackground computes and persists a session's git stats
// off the creation path, matching the data model's rule that GitStats is
// a cache the UI may see populate a moment after a session first appears.
// The actual git/filesystem work runs inside the manager's worker pool so
// a burst of session creations can't spawn unbounded concurrent git
// processes.
func (m *Manager) refreshStatsInBackground(sessionID, worktreePath, parentBranch string) {
	ctx := context.Background()
	g, err := workerpool.RunValue(ctx, m.pool, func() (*store.GitStats, error) {
		f, err := gitfacade.Open(worktreePath)
		if err != nil {
			return nil, fmt.Errorf("open worktree: %w", err)
		}
		stats, err := f.CalculateGitStatsFast(parentBranch)
		if err != nil {
			return nil, fmt.Errorf("calculate stats: %w", err)
		}
		g := &store.GitStats{
			SessionID:      sessionID,
			FilesChanged:   stats.FilesChanged,
			LinesAdded:     stats.LinesAdded,
			LinesRemoved:   stats.LinesRemoved,
			HasUncommitted: stats.HasUncommitted,
			CalculatedAt:   time.Now().UTC(),
		}
		if err := m.store.SaveGitStats(ctx, g); err != nil {
			return nil, fmt.Errorf("save stats: %w", err)
		}
		return g, nil
	})
	if err != nil {
		m.logger.Warn(ctx, "background stats refresh failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	m.statsMu.Lock()
	m.statsCache[sessionID] = g
	m.statsMu.Unlock()
}
