package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f, err := gitfacade.InitRepository(dir)
	require.NoError(t, err)
	require.NoError(t, f.CreateInitialCommit("main", "Test", "test@example.com"))
	return dir
}

func TestCreateWorktreeFromBase_NewBranch(t *testing.T) {
	repoPath := newTestRepo(t)
	worktreePath := filepath.Join(t.TempDir(), "session-one")

	require.NoError(t, CreateWorktreeFromBase(repoPath, "schaltwerk/session-one", worktreePath, "main"))

	assert.DirExists(t, worktreePath)
	assert.FileExists(t, filepath.Join(worktreePath, ".git"))
	assert.DirExists(t, filepath.Join(repoPath, ".git", "worktrees", "session-one"))

	f, err := gitfacade.Open(repoPath)
	require.NoError(t, err)
	assert.True(t, f.BranchExists("schaltwerk/session-one"))
}

func TestCreateWorktreeFromBase_ExistingBranch(t *testing.T) {
	repoPath := newTestRepo(t)
	f, err := gitfacade.Open(repoPath)
	require.NoError(t, err)
	require.NoError(t, f.EnsureBranchAtHead("already-exists"))

	worktreePath := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, CreateWorktreeFromBase(repoPath, "already-exists", worktreePath, "main"))
	assert.DirExists(t, worktreePath)
}

func TestRemoveWorktree(t *testing.T) {
	repoPath := newTestRepo(t)
	worktreePath := filepath.Join(t.TempDir(), "to-remove")
	require.NoError(t, CreateWorktreeFromBase(repoPath, "schaltwerk/to-remove", worktreePath, "main"))

	require.NoError(t, RemoveWorktree(repoPath, worktreePath))
	assert.NoDirExists(t, worktreePath)
	assert.NoDirExists(t, filepath.Join(repoPath, ".git", "worktrees", "to-remove"))
}

func TestRemoveWorktree_AlreadyGoneDirectory(t *testing.T) {
	repoPath := newTestRepo(t)
	worktreePath := filepath.Join(t.TempDir(), "ghost")
	require.NoError(t, CreateWorktreeFromBase(repoPath, "schaltwerk/ghost", worktreePath, "main"))

	require.NoError(t, os.RemoveAll(worktreePath))

	require.NoError(t, RemoveWorktree(repoPath, worktreePath))
	assert.NoDirExists(t, filepath.Join(repoPath, ".git", "worktrees", "ghost"))
}

func TestUpdateWorktreeBranch(t *testing.T) {
	repoPath := newTestRepo(t)
	f, err := gitfacade.Open(repoPath)
	require.NoError(t, err)
	require.NoError(t, f.EnsureBranchAtHead("other-branch"))

	worktreePath := filepath.Join(t.TempDir(), "wt")
	require.NoError(t, CreateWorktreeFromBase(repoPath, "schaltwerk/wt", worktreePath, "main"))

	require.NoError(t, UpdateWorktreeBranch(worktreePath, "other-branch"))
}
