package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCodexSession(t *testing.T, dir, name, cwd string, mtime time.Time) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	content := `{"cwd":"` + cwd + `"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestCodex_MatchForCwd_FindsNewestForWorktree(t *testing.T) {
	root := t.TempDir()
	dayDir := filepath.Join(root, "2026", "01", "15")

	older := writeCodexSession(t, dayDir, "a.jsonl", "/repo/wt", time.Now().Add(-time.Hour))
	newer := writeCodexSession(t, dayDir, "b.jsonl", "/repo/wt", time.Now())
	_ = older

	idx := NewCodex(root)
	match, found, err := idx.MatchForCwd("/repo/wt")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, newer, match.ResumePath)
	assert.True(t, match.IsGlobalNewest)
}

func TestCodex_MatchForCwd_NoMatchReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	writeCodexSession(t, filepath.Join(root, "2026", "01", "15"), "a.jsonl", "/other/wt", time.Now())

	idx := NewCodex(root)
	_, found, err := idx.MatchForCwd("/repo/wt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCodex_MatchForCwd_CachesAcrossCalls(t *testing.T) {
	root := t.TempDir()
	writeCodexSession(t, filepath.Join(root, "2026", "01", "15"), "a.jsonl", "/repo/wt", time.Now())

	idx := NewCodex(root)
	_, found1, err := idx.MatchForCwd("/repo/wt")
	require.NoError(t, err)
	require.True(t, found1)

	_, found2, err := idx.MatchForCwd("/repo/wt")
	require.NoError(t, err)
	require.True(t, found2)
}

func TestCodex_MissingDirFallsBackToLegacyScan(t *testing.T) {
	idx := NewCodex(filepath.Join(t.TempDir(), "does-not-exist"))
	_, found, err := idx.MatchForCwd("/repo/wt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExtractSessionCwds_TopLevelAndNestedAndEmbeddedTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.jsonl")
	lines := []string{
		`{"cwd":"/a"}`,
		`{"payload":{"cwd":"/b"}}`,
		`{"payload":{"content":[{"text":"before <cwd>/c</cwd> after"}]}}`,
		`{"cwd":"/a"}`,
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cwds, err := extractSessionCwds(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b", "/c"}, cwds)
}

func TestIndexingDisabled_RespectsEnvVar(t *testing.T) {
	t.Setenv(DisableCodexIndexEnv, "")
	assert.False(t, indexingDisabled())

	t.Setenv(DisableCodexIndexEnv, "false")
	assert.False(t, indexingDisabled())

	t.Setenv(DisableCodexIndexEnv, "1")
	assert.True(t, indexingDisabled())
}
