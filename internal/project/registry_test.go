package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func TestRegistry_GetCreatesAndCachesCore(t *testing.T) {
	repoPath := newTestRepo(t)
	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	core1, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)
	require.NotNil(t, core1.Store)
	require.NotNil(t, core1.Sessions)
	require.NotNil(t, core1.Merge)
	require.DirExists(t, filepath.Join(repoPath, ".schaltwerk"))

	core2, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)
	require.Same(t, core1, core2)
}

func TestRegistry_GetNormalizesRelativePaths(t *testing.T) {
	repoPath := newTestRepo(t)
	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(repoPath))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	byAbs, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)
	byRel, err := reg.Get(context.Background(), ".")
	require.NoError(t, err)
	require.Same(t, byAbs, byRel)
}

func TestRegistry_GetAddsMcpJSONToGitignore(t *testing.T) {
	repoPath := newTestRepo(t)
	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	_, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(repoPath, ".gitignore"))
	require.NoError(t, err)
	require.Contains(t, string(content), ".mcp.json")
}

func TestRegistry_GetPreservesExistingGitignore(t *testing.T) {
	repoPath := newTestRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, ".gitignore"), []byte("node_modules\n"), 0o644))

	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	_, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(repoPath, ".gitignore"))
	require.NoError(t, err)
	require.Contains(t, string(content), "node_modules")
	require.Contains(t, string(content), ".mcp.json")
}

func TestRegistry_ConfigHotReloadsOnDiskChange(t *testing.T) {
	repoPath := newTestRepo(t)
	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	core, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)
	require.Empty(t, core.Config.BranchPrefix)

	configPath := filepath.Join(repoPath, ".schaltwerk", "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"branch_prefix":"reloaded/"}`), 0o600))

	require.Eventually(t, func() bool {
		return core.Config.BranchPrefix == "reloaded/"
	}, 2*time.Second, 10*time.Millisecond, "config watcher never picked up the on-disk change")
}

func TestRegistry_Loaded(t *testing.T) {
	repoPath := newTestRepo(t)
	reg := NewRegistry(nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	require.False(t, reg.Loaded(repoPath))
	_, err := reg.Get(context.Background(), repoPath)
	require.NoError(t, err)
	require.True(t, reg.Loaded(repoPath))
}
