package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/agent"
	"github.com/schaltwerk/schaltwerk-core/internal/config"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f, err := gitfacade.InitRepository(dir)
	require.NoError(t, err)
	require.NoError(t, f.CreateInitialCommit("main", "Test", "test@example.com"))
	return dir
}

func newTestManager(t *testing.T, repoPath string) *Manager {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultProjectConfig()
	reg := agent.NewRegistry()
	return New(st, repoPath, filepath.Base(repoPath), cfg, reg, nil, nil)
}

func TestCreateSessionWithAgent_Basic(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{
		Name:   "my-session",
		Prompt: "do the thing",
	})
	require.NoError(t, err)
	require.Equal(t, "my-session", sess.Name)
	require.Equal(t, "main", sess.ParentBranch)
	require.Equal(t, store.StatusActive, sess.Status)
	require.Equal(t, store.StateRunning, sess.SessionState)
	require.True(t, sess.ResumeAllowed)
	require.DirExists(t, sess.WorktreePath)

	f, err := gitfacade.Open(repoPath)
	require.NoError(t, err)
	require.True(t, f.BranchExists(sess.Branch))
}

func TestCreateSessionWithAgent_DuplicateNameRejected(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	_, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "dup"})
	require.NoError(t, err)

	_, err = m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "dup"})
	require.Error(t, err)
}

func TestCreateSessionWithAgent_InvalidName(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	_, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "has a space"})
	require.Error(t, err)
}

func TestCreateSessionWithAgent_CopiesClaudeLocalOverrides(t *testing.T) {
	repoPath := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "CLAUDE.local.md"), []byte("local notes"), 0o644))

	m := newTestManager(t, repoPath)
	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "claude-session", AgentType: "claude"})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(sess.WorktreePath, "CLAUDE.local.md"))
	require.NoError(t, err)
	require.Equal(t, "local notes", string(content))
}

func TestCancelSession_RemovesWorktreeAndBranch(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "to-cancel"})
	require.NoError(t, err)

	result, err := m.CancelSession(context.Background(), sess.ID, CancelConfig{SkipProcessCleanup: true})
	require.NoError(t, err)
	require.True(t, result.WorktreeRemoved)
	require.True(t, result.BranchDeleted)
	require.Empty(t, result.Errors)

	require.NoDirExists(t, sess.WorktreePath)

	updated, err := m.store.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, updated.Status)
	require.False(t, updated.ResumeAllowed)
}

func TestCancelSession_RefusesSpec(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "will-be-spec"})
	require.NoError(t, err)
	require.NoError(t, m.store.UpdateSessionState(context.Background(), sess.ID, store.StateSpec))

	_, err = m.CancelSession(context.Background(), sess.ID, CancelConfig{})
	require.Error(t, err)
}

func TestConvertToSpec_CreatesSpecFromCancelledSession(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "convertible", Prompt: "the prompt"})
	require.NoError(t, err)

	sp, err := m.ConvertToSpec(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, "convertible", sp.Name)
	require.Equal(t, "the prompt", sp.Content)

	_, err = m.store.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
}

func TestStartSpecSession_RemovesSpecAndStartsFresh(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "will-convert", Prompt: "initial"})
	require.NoError(t, err)
	_, err = m.ConvertToSpec(context.Background(), sess.ID)
	require.NoError(t, err)

	started, err := m.StartSpecSession(context.Background(), "will-convert", "", CreateParams{})
	require.NoError(t, err)
	require.Equal(t, "will-convert", started.Name)
	require.Equal(t, "initial", started.InitialPrompt)
	require.False(t, started.ResumeAllowed)

	_, err = m.store.GetSpecByName(context.Background(), "will-convert")
	require.Error(t, err)
}

func TestMarkReady_RefusesDirtyWorktree(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "dirty"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(sess.WorktreePath, "new.txt"), []byte("x"), 0o644))

	err = m.MarkReady(context.Background(), sess.ID)
	require.Error(t, err)
}

func TestMarkReady_SucceedsOnCleanWorktree(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "clean"})
	require.NoError(t, err)

	require.NoError(t, m.MarkReady(context.Background(), sess.ID))

	updated, err := m.store.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, updated.ReadyToMerge)
	require.Equal(t, store.StateReviewed, updated.SessionState)
}

func TestOnFollowUpMessage_UnmarksReviewed(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "reviewed"})
	require.NoError(t, err)
	require.NoError(t, m.MarkReady(context.Background(), sess.ID))

	require.NoError(t, m.OnFollowUpMessage(context.Background(), sess.ID))

	updated, err := m.store.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, store.StateRunning, updated.SessionState)
	require.False(t, updated.ReadyToMerge)
}

func TestLaunchSpecProduction_FreshWhenResumeNotAllowed(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "launchme", Prompt: "go"})
	require.NoError(t, err)
	require.NoError(t, m.store.SetSessionResumeAllowed(context.Background(), sess.ID, false))

	cmd, err := m.LaunchSpecProduction(context.Background(), sess.ID, LaunchParams{})
	require.NoError(t, err)
	require.False(t, cmd.Resumed)

	updated, err := m.store.GetSessionByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.True(t, updated.ResumeAllowed)
}

func TestLaunchSpecProduction_ForceRestartIgnoresResume(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "force", Prompt: "go"})
	require.NoError(t, err)

	cmd, err := m.LaunchSpecProduction(context.Background(), sess.ID, LaunchParams{ForceRestart: true})
	require.NoError(t, err)
	require.False(t, cmd.Resumed)
}

func TestLaunchSpecProduction_UnsupportedAgentErrors(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "ghost-agent"})
	require.NoError(t, err)
	require.NoError(t, m.store.SetSessionOriginalSettings(context.Background(), sess.ID, "not-a-real-agent", false))

	_, err = m.LaunchSpecProduction(context.Background(), sess.ID, LaunchParams{})
	require.Error(t, err)
}

func TestListEnrichedSessions_IncludesSessionsAndSpecs(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	_, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "active-one"})
	require.NoError(t, err)

	sess2, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "to-spec"})
	require.NoError(t, err)
	_, err = m.ConvertToSpec(context.Background(), sess2.ID)
	require.NoError(t, err)

	list, err := m.ListEnrichedSessions(context.Background())
	require.NoError(t, err)

	var sawSession, sawSpec bool
	for _, e := range list {
		if e.IsSpec {
			sawSpec = true
			require.Equal(t, "to-spec", e.Session.Name)
		} else {
			sawSession = true
			require.False(t, e.Missing)
		}
	}
	require.True(t, sawSession)
	require.True(t, sawSpec)
}

func TestListEnrichedSessions_MarksMissingWorktree(t *testing.T) {
	repoPath := newTestRepo(t)
	m := newTestManager(t, repoPath)

	sess, err := m.CreateSessionWithAgent(context.Background(), CreateParams{Name: "ghost"})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(sess.WorktreePath))

	list, err := m.ListEnrichedSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Missing)
}
