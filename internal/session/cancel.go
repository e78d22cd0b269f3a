package session

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
	"github.com/schaltwerk/schaltwerk-core/internal/worktree"
)

// CancelConfig tunes what CancelSession does beyond the mandatory status
// flip. Process cleanup and branch deletion are both skippable for
// callers that already know neither step is needed (e.g. a worktree that
// was never launched).
type CancelConfig struct {
	SkipProcessCleanup bool
	SkipBranchDeletion bool
}

// CancelResult reports what actually happened. Best-effort steps that
// fail are recorded in Errors rather than aborting the sequence — a
// session a user asked to cancel should end up Cancelled even if, say,
// branch deletion failed because someone else already deleted it.
type CancelResult struct {
	TerminatedPIDs  []int32
	WorktreeRemoved bool
	BranchDeleted   bool
	Errors          []string
}

// CancelSession tears down a session's worktree and branch and marks it
// Cancelled. Spec sessions are refused: they have no worktree, and
// callers should use the spec deletion path instead. The session is read
// fresh from the store, mutated on a local copy, and only the final
// status flip touches the database again — so the repository lock is not
// held across potentially slow filesystem and process-scan work.
func (m *Manager) CancelSession(ctx context.Context, sessionID string, cfg CancelConfig) (*CancelResult, error) {
	sess, err := m.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.SessionState == store.StateSpec {
		return nil, fmt.Errorf("cannot cancel spec session %q: %w", sess.Name, errs.ErrConflict)
	}

	result := &CancelResult{}

	m.warnIfUncommitted(ctx, sess)

	if !cfg.SkipProcessCleanup {
		result.TerminatedPIDs = m.terminateSessionProcesses(ctx, sess, result)
	}

	if err := m.removeSessionWorktree(sess); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("worktree removal failed: %v", err))
	} else {
		result.WorktreeRemoved = true
	}

	if !cfg.SkipBranchDeletion {
		if err := m.deleteSessionBranch(sess); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("branch deletion failed: %v", err))
		} else {
			result.BranchDeleted = true
		}
	}

	m.lockRepo()
	err = m.store.UpdateSessionStatus(ctx, sess.ID, store.StatusCancelled)
	if err == nil {
		err = m.store.SetSessionResumeAllowed(ctx, sess.ID, false)
	}
	m.unlockRepo()
	if err != nil {
		return result, err
	}

	if len(result.Errors) > 0 {
		m.logger.Warn(ctx, "cancel completed with errors",
			zap.String("session", sess.Name), zap.Int("error_count", len(result.Errors)))
	} else {
		m.logger.Info(ctx, "cancel completed", zap.String("session", sess.Name))
	}

	m.events.Emit(ctx, EventSessionRemoved, sess.Name)
	return result, nil
}

func (m *Manager) warnIfUncommitted(ctx context.Context, sess *store.Session) {
	if _, err := os.Stat(sess.WorktreePath); err != nil {
		return
	}
	f, err := gitfacade.Open(sess.WorktreePath)
	if err != nil {
		return
	}
	dirty, err := f.HasUncommittedChanges()
	if err == nil && dirty {
		m.logger.Warn(ctx, "canceling session with uncommitted changes", zap.String("session", sess.Name))
	}
}

// terminateSessionProcesses kills every process whose current working
// directory is inside the session's worktree, so an agent process never
// outlives the worktree it was running in.
func (m *Manager) terminateSessionProcesses(ctx context.Context, sess *store.Session, result *CancelResult) []int32 {
	if _, err := os.Stat(sess.WorktreePath); err != nil {
		return nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to terminate lingering processes: %v", err))
		return nil
	}

	var killed []int32
	for _, p := range procs {
		cwd, err := p.CwdWithContext(ctx)
		if err != nil || cwd == "" {
			continue
		}
		if !isWithinWorktree(cwd, sess.WorktreePath) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to kill pid %d: %v", p.Pid, err))
			continue
		}
		killed = append(killed, p.Pid)
	}

	if len(killed) > 0 {
		m.logger.Info(ctx, "terminated lingering processes",
			zap.String("session", sess.Name), zap.Int("count", len(killed)))
	}
	return killed
}

func isWithinWorktree(cwd, worktreePath string) bool {
	if cwd == worktreePath {
		return true
	}
	return len(cwd) > len(worktreePath) &&
		cwd[:len(worktreePath)] == worktreePath &&
		cwd[len(worktreePath)] == os.PathSeparator
}

func (m *Manager) removeSessionWorktree(sess *store.Session) error {
	if _, err := os.Stat(sess.WorktreePath); err != nil {
		return nil
	}
	return worktree.RemoveWorktree(sess.RepositoryPath, sess.WorktreePath)
}

func (m *Manager) deleteSessionBranch(sess *store.Session) error {
	f, err := gitfacade.Open(sess.RepositoryPath)
	if err != nil {
		return err
	}
	if !f.BranchExists(sess.Branch) {
		return nil
	}
	return f.DeleteBranch(sess.Branch)
}
