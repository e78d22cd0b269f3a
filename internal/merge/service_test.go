package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/agent"
	"github.com/schaltwerk/schaltwerk-core/internal/config"
	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

type testFixture struct {
	repoPath string
	mgr      *session.Manager
	svc      *Service
	st       *store.Store
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	repoPath := t.TempDir()
	f, err := gitfacade.InitRepository(repoPath)
	require.NoError(t, err)
	require.NoError(t, f.CreateInitialCommit("main", "Test", "test@example.com"))

	st, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultProjectConfig()
	reg := agent.NewRegistry()
	mgr := session.New(st, repoPath, filepath.Base(repoPath), cfg, reg, nil, nil)
	svc := New(st, nil, nil)

	return &testFixture{repoPath: repoPath, mgr: mgr, svc: svc, st: st}
}

// commitInWorktree writes a file and commits it in the session's
// worktree, giving the session a commit its parent branch doesn't have.
func commitInWorktree(t *testing.T, worktreePath, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(worktreePath, name), []byte(content), 0o644))
	wf, err := gitfacade.Open(worktreePath)
	require.NoError(t, err)
	_, err = wf.CommitAllChanges("add "+name, "Test", "test@example.com")
	require.NoError(t, err)
}

func readyToMergeSession(t *testing.T, tf *testFixture, name string) *store.Session {
	t.Helper()
	sess, err := tf.mgr.CreateSessionWithAgent(context.Background(), session.CreateParams{Name: name})
	require.NoError(t, err)
	commitInWorktree(t, sess.WorktreePath, "feature.txt", "work from "+name)
	require.NoError(t, tf.mgr.MarkReady(context.Background(), sess.ID))
	return sess
}

func TestPreview_ReportsCommandsAndCleanState(t *testing.T) {
	tf := newFixture(t)
	sess := readyToMergeSession(t, tf, "previewable")

	preview, err := tf.svc.Preview(context.Background(), sess.Name)
	require.NoError(t, err)
	require.Equal(t, sess.Branch, preview.SessionBranch)
	require.Equal(t, "main", preview.ParentBranch)
	require.False(t, preview.HasConflicts)
	require.NotEmpty(t, preview.SquashCommands)
	require.NotEmpty(t, preview.ReapplyCommands)
	require.Contains(t, preview.DefaultCommitMessage, sess.Name)
}

func TestMerge_SquashAdvancesParentAndCollapsesHistory(t *testing.T) {
	tf := newFixture(t)
	sess := readyToMergeSession(t, tf, "squashme")
	commitInWorktree(t, sess.WorktreePath, "second.txt", "more work")

	outcome, err := tf.svc.Merge(context.Background(), sess.Name, Squash, "squash commit message")
	require.NoError(t, err)
	require.Equal(t, Squash, outcome.Mode)

	f, err := gitfacade.Open(tf.repoPath)
	require.NoError(t, err)
	parentRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName("main"), false)
	require.NoError(t, err)
	require.Equal(t, outcome.NewCommit, parentRef.Hash().String())

	sessionRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName(sess.Branch), false)
	require.NoError(t, err)
	require.Equal(t, parentRef.Hash(), sessionRef.Hash())

	commit, err := f.Repository().CommitObject(parentRef.Hash())
	require.NoError(t, err)
	require.Equal(t, "squash commit message", commit.Message)
	require.Equal(t, 1, commit.NumParents())

	updated, err := tf.st.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, store.StateReviewed, updated.SessionState)
}

func TestMerge_NeverSwitchesMainRepoOffWhateverIsCheckedOut(t *testing.T) {
	tf := newFixture(t)
	sess := readyToMergeSession(t, tf, "unrelatedcheckout")

	f, err := gitfacade.Open(tf.repoPath)
	require.NoError(t, err)
	require.NoError(t, f.SwitchBranch("unrelated-work"))

	_, err = tf.svc.Merge(context.Background(), sess.Name, Squash, "squash commit message")
	require.NoError(t, err)

	current, err := f.GetCurrentBranch()
	require.NoError(t, err)
	require.Equal(t, "unrelated-work", current,
		"merging a session must never switch the main repository's worktree off whatever branch the user already has checked out")
}

func TestMerge_ReapplyFastForwardsParentToSessionHead(t *testing.T) {
	tf := newFixture(t)
	sess := readyToMergeSession(t, tf, "reapplyme")

	outcome, err := tf.svc.Merge(context.Background(), sess.Name, Reapply, "")
	require.NoError(t, err)
	require.Equal(t, Reapply, outcome.Mode)

	f, err := gitfacade.Open(tf.repoPath)
	require.NoError(t, err)
	parentRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName("main"), false)
	require.NoError(t, err)
	sessionRef, err := f.Repository().Reference(plumbing.NewBranchReferenceName(sess.Branch), false)
	require.NoError(t, err)
	require.Equal(t, sessionRef.Hash(), parentRef.Hash())
}

func TestMerge_RequiresCommitMessageForSquash(t *testing.T) {
	tf := newFixture(t)
	sess := readyToMergeSession(t, tf, "needsmessage")

	_, err := tf.svc.Merge(context.Background(), sess.Name, Squash, "  ")
	require.Error(t, err)
}

func TestMerge_RefusesWhenNothingToMerge(t *testing.T) {
	tf := newFixture(t)
	sess, err := tf.mgr.CreateSessionWithAgent(context.Background(), session.CreateParams{Name: "nocommits"})
	require.NoError(t, err)
	require.NoError(t, tf.mgr.MarkReady(context.Background(), sess.ID))

	_, err = tf.svc.Merge(context.Background(), sess.Name, Reapply, "")
	require.Error(t, err)
}

func TestMerge_ConflictPreCheckLeavesParentUntouched(t *testing.T) {
	tf := newFixture(t)

	require.NoError(t, os.WriteFile(filepath.Join(tf.repoPath, "shared.txt"), []byte("base"), 0o644))
	baseFacade, err := gitfacade.Open(tf.repoPath)
	require.NoError(t, err)
	_, err = baseFacade.CommitAllChanges("add shared file", "Test", "test@example.com")
	require.NoError(t, err)

	sess, err := tf.mgr.CreateSessionWithAgent(context.Background(), session.CreateParams{Name: "conflicted"})
	require.NoError(t, err)
	commitInWorktree(t, sess.WorktreePath, "shared.txt", "changed on session")
	require.NoError(t, tf.mgr.MarkReady(context.Background(), sess.ID))

	require.NoError(t, os.WriteFile(filepath.Join(tf.repoPath, "shared.txt"), []byte("changed on main"), 0o644))
	_, err = baseFacade.CommitAllChanges("diverge on main", "Test", "test@example.com")
	require.NoError(t, err)

	parentRefBefore, err := baseFacade.Repository().Reference(plumbing.NewBranchReferenceName("main"), false)
	require.NoError(t, err)

	_, err = tf.svc.Merge(context.Background(), sess.Name, Reapply, "")
	require.Error(t, err)

	var conflictErr *errs.MergeConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Contains(t, conflictErr.Paths, "shared.txt")

	parentRefAfter, err := baseFacade.Repository().Reference(plumbing.NewBranchReferenceName("main"), false)
	require.NoError(t, err)
	require.Equal(t, parentRefBefore.Hash(), parentRefAfter.Hash())
}

func TestMerge_LockBusyReturnsInProgress(t *testing.T) {
	tf := newFixture(t)
	sess := readyToMergeSession(t, tf, "locked")

	require.True(t, sessionLocks.TryAcquire(sess.Name))
	defer sessionLocks.Release(sess.Name)

	_, err := tf.svc.Merge(context.Background(), sess.Name, Reapply, "")
	require.ErrorIs(t, err, errs.ErrInProgress)
}
