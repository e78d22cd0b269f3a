package merge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// mergeTimeout bounds how long a single merge attempt may run before the
// lock is released and the caller is told it timed out. A rebase that
// never finishes (pathological history, disk stall) must not wedge the
// session's merge lock forever.
const mergeTimeout = 180 * time.Second

// DefaultAuthorName and DefaultAuthorEmail sign the squash commit this
// service creates; a session may be merged by automation with no git
// identity of its own configured.
const (
	DefaultAuthorName  = "schaltwerk"
	DefaultAuthorEmail = "schaltwerk@localhost"
)

// Service performs merges for sessions in one project repository.
type Service struct {
	store  *store.Store
	logger *logging.Logger
	events session.Emitter
}

// New constructs a Service bound to the project's persistence store.
func New(st *store.Store, logger *logging.Logger, events session.Emitter) *Service {
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	if events == nil {
		events = session.NoopEmitter{}
	}
	return &Service{store: st, logger: logger, events: events}
}

// mergeContext is the resolved, ready-to-merge view of one session,
// computed once per call so every subsequent step works from consistent
// oids instead of re-reading mutable refs mid-operation.
type mergeContext struct {
	sessionID     string
	sessionName   string
	repoPath      string
	worktreePath  string
	sessionBranch string
	parentBranch  string
	sessionOID    plumbing.Hash
	parentOID     plumbing.Hash
}

// Preview computes what a merge would do without touching anything: the
// illustrative commands a human would run, and the conflict/up-to-date
// assessment the caller should show before asking for confirmation.
func (s *Service) Preview(ctx context.Context, sessionName string) (*Preview, error) {
	mc, err := s.prepareContext(ctx, sessionName)
	if err != nil {
		return nil, err
	}

	state, err := s.assess(mc)
	if err != nil {
		return nil, err
	}

	return &Preview{
		SessionBranch: mc.sessionBranch,
		ParentBranch:  mc.parentBranch,
		SquashCommands: []string{
			fmt.Sprintf("git rebase %s", mc.parentBranch),
			fmt.Sprintf("git reset --soft %s", mc.parentBranch),
			`git commit -m "<your message>"`,
		},
		ReapplyCommands: []string{
			fmt.Sprintf("git rebase %s", mc.parentBranch),
			fmt.Sprintf("git update-ref refs/heads/%s $(git rev-parse HEAD)", mc.parentBranch),
		},
		DefaultCommitMessage: fmt.Sprintf("Merge session %s into %s", mc.sessionName, mc.parentBranch),
		HasConflicts:         state.HasConflicts,
		ConflictingPaths:     state.ConflictingPaths,
		IsUpToDate:           state.IsUpToDate,
	}, nil
}

// Merge performs the merge under the session's advisory lock, subject to
// a hard timeout. On success the session is marked Reviewed and its git
// stats are refreshed. A failure inside the squash/reapply step leaves
// the parent ref as it was before the attempt. On timeout the error is
// returned and the lock released while that step keeps running in the
// background, so it can still move the refs afterwards; a failure to
// mark the session Reviewed is reported after the refs have moved.
func (s *Service) Merge(ctx context.Context, sessionName string, mode Mode, commitMessage string) (*Outcome, error) {
	mc, err := s.prepareContext(ctx, sessionName)
	if err != nil {
		return nil, err
	}

	state, err := s.assess(mc)
	if err != nil {
		return nil, err
	}
	if state.HasConflicts {
		return nil, &errs.MergeConflictError{Paths: state.ConflictingPaths}
	}
	if mc.sessionOID == mc.parentOID {
		return nil, fmt.Errorf("session %q has no commits to merge into %q: %w", mc.sessionName, mc.parentBranch, errs.ErrConflict)
	}

	s.warnIfParentDirty(mc)

	message, err := resolveCommitMessage(mode, commitMessage)
	if err != nil {
		return nil, err
	}

	if !sessionLocks.TryAcquire(mc.sessionName) {
		return nil, fmt.Errorf("merge already running for session %q: %w", mc.sessionName, errs.ErrInProgress)
	}
	defer sessionLocks.Release(mc.sessionName)

	type result struct {
		outcome *Outcome
		err     error
	}
	done := make(chan result, 1)
	started := time.Now()
	go func() {
		var r result
		switch mode {
		case Squash:
			r.outcome, r.err = performSquash(mc, message)
		case Reapply:
			r.outcome, r.err = performReapply(mc)
		default:
			r.err = fmt.Errorf("unknown merge mode %q: %w", mode, errs.ErrUnsupported)
		}
		done <- r
	}()

	select {
	case r := <-done:
		elapsed := time.Since(started).Seconds()
		if r.err != nil {
			observeMerge(mode, "error", elapsed)
			return nil, r.err
		}
		if err := s.afterSuccess(ctx, mc); err != nil {
			observeMerge(mode, "error", elapsed)
			return nil, err
		}
		observeMerge(mode, "success", elapsed)
		s.events.Emit(ctx, session.EventMerged, mc.sessionName)
		return r.outcome, nil
	case <-time.After(mergeTimeout):
		observeMerge(mode, "timeout", mergeTimeout.Seconds())
		s.logger.Warn(ctx, "merge timed out", zap.String("session", mc.sessionName))
		return nil, fmt.Errorf("merge operation timed out after %s: %w", mergeTimeout, errs.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func resolveCommitMessage(mode Mode, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if mode == Squash {
		if trimmed == "" {
			return "", fmt.Errorf("commit message is required for squash merges: %w", errs.ErrConflict)
		}
		return trimmed, nil
	}
	return trimmed, nil
}

// prepareContext resolves a session by name into the oids and paths the
// rest of the service operates on, enforcing every merge precondition:
// not a spec, marked ready, clean worktree, and a resolvable parent
// branch (normalizing and persisting origin/X -> X if that's what the
// stored value was).
func (s *Service) prepareContext(ctx context.Context, sessionName string) (*mergeContext, error) {
	sess, err := s.store.GetSessionByName(ctx, sessionName)
	if err != nil {
		return nil, err
	}

	if sess.SessionState == store.StateSpec {
		return nil, fmt.Errorf("session %q is still a spec, start it before merging: %w", sessionName, errs.ErrConflict)
	}
	if !sess.ReadyToMerge {
		return nil, fmt.Errorf("session %q is not marked ready to merge: %w", sessionName, errs.ErrConflict)
	}
	if _, err := os.Stat(sess.WorktreePath); err != nil {
		return nil, fmt.Errorf("worktree for session %q is missing: %w", sessionName, errs.ErrWorktreeMissing)
	}

	wf, err := gitfacade.Open(sess.WorktreePath)
	if err != nil {
		return nil, err
	}
	dirty, err := wf.HasUncommittedChanges()
	if err != nil {
		return nil, err
	}
	if dirty {
		paths, _ := wf.UncommittedSamplePaths(3)
		return nil, &errs.DirtyWorktreeError{SamplePaths: paths}
	}

	parentBranch := strings.TrimSpace(sess.ParentBranch)
	if parentBranch == "" {
		return nil, fmt.Errorf("session %q has no recorded parent branch: %w", sessionName, errs.ErrConflict)
	}

	f, err := gitfacade.Open(sess.RepositoryPath)
	if err != nil {
		return nil, err
	}

	resolvedParent := f.NormalizeBranchToLocal(parentBranch)
	if !f.BranchExists(resolvedParent) {
		resolvedParent = parentBranch
	}
	if resolvedParent != sess.ParentBranch {
		if err := s.store.UpdateSessionParentBranch(ctx, sess.ID, resolvedParent); err != nil {
			s.logger.Warn(ctx, "failed to persist normalized parent branch",
				zap.String("session", sess.Name), zap.String("branch", resolvedParent), zap.Error(err))
		}
	}

	parentRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName(resolvedParent), false)
	if err != nil {
		return nil, fmt.Errorf("parent branch %q not found for session %q: %w", resolvedParent, sessionName, errs.ErrRefNotFound)
	}
	sessionRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName(sess.Branch), false)
	if err != nil {
		return nil, fmt.Errorf("session branch %q not found for session %q: %w", sess.Branch, sessionName, errs.ErrRefNotFound)
	}

	return &mergeContext{
		sessionID:     sess.ID,
		sessionName:   sess.Name,
		repoPath:      sess.RepositoryPath,
		worktreePath:  sess.WorktreePath,
		sessionBranch: sess.Branch,
		parentBranch:  resolvedParent,
		sessionOID:    sessionRef.Hash(),
		parentOID:     parentRef.Hash(),
	}, nil
}

// assess computes the conflict/up-to-date state shared by Preview and
// the pre-merge conflict check, so a caller can never observe Preview
// saying "clean" immediately before Merge discovers a conflict.
func (s *Service) assess(mc *mergeContext) (*State, error) {
	f, err := gitfacade.Open(mc.repoPath)
	if err != nil {
		return nil, err
	}
	result, err := f.MergeCommits(mc.sessionBranch, mc.parentBranch, false)
	if err != nil {
		return nil, err
	}
	return &State{
		HasConflicts:     len(result.ConflictingPaths) > 0,
		ConflictingPaths: result.ConflictingPaths,
		IsUpToDate:       result.IsUpToDate,
	}, nil
}

// warnIfParentDirty logs (but never blocks on) the case where HEAD is
// checked out on the parent branch with tracked changes: the merge will
// update refs only and skip the working-tree checkout, per the §4.2
// safety rule, so the user should know their pending edits were not
// touched rather than silently losing track of them.
func (s *Service) warnIfParentDirty(mc *mergeContext) {
	f, err := gitfacade.Open(mc.repoPath)
	if err != nil {
		return
	}
	current, err := f.GetCurrentBranch()
	if err != nil || current != mc.parentBranch {
		return
	}
	dirty, err := f.HasUncommittedChanges()
	if err != nil || !dirty {
		return
	}
	sample, _ := f.UncommittedSamplePaths(3)
	s.logger.Warn(context.Background(), "parent branch has uncommitted changes, merge will update refs only",
		zap.String("branch", mc.parentBranch), zap.Strings("sample_paths", sample))
}

// afterSuccess flips the session to Reviewed and best-effort refreshes
// its cached git stats; a stats-refresh failure is logged but never
// turns a successful merge into a reported failure.
func (s *Service) afterSuccess(ctx context.Context, mc *mergeContext) error {
	if err := s.store.UpdateSessionState(ctx, mc.sessionID, store.StateReviewed); err != nil {
		return err
	}

	f, err := gitfacade.Open(mc.worktreePath)
	if err != nil {
		s.logger.Warn(ctx, "failed to refresh git stats after merge", zap.String("session", mc.sessionName), zap.Error(err))
		return nil
	}
	stats, err := f.CalculateGitStatsFast(mc.parentBranch)
	if err != nil {
		s.logger.Warn(ctx, "failed to refresh git stats after merge", zap.String("session", mc.sessionName), zap.Error(err))
		return nil
	}
	g := &store.GitStats{
		SessionID:      mc.sessionID,
		FilesChanged:   stats.FilesChanged,
		LinesAdded:     stats.LinesAdded,
		LinesRemoved:   stats.LinesRemoved,
		HasUncommitted: stats.HasUncommitted,
		CalculatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveGitStats(ctx, g); err != nil {
		s.logger.Warn(ctx, "failed to persist git stats after merge", zap.String("session", mc.sessionName), zap.Error(err))
	}
	return nil
}
