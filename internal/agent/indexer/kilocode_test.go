package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractRepoRoot_UnwindsWorktreePath(t *testing.T) {
	got := extractRepoRoot("/home/user/myrepo/.schaltwerk/worktrees/session-one")
	assert.Equal(t, "/home/user/myrepo", got)
}

func TestExtractRepoRoot_LeavesPlainPathUnchanged(t *testing.T) {
	got := extractRepoRoot("/home/user/myrepo")
	assert.Equal(t, "/home/user/myrepo", got)
}

func TestExtractCwdFromText_FindsMarker(t *testing.T) {
	text := "intro\n# Current Workspace Directory (/home/user/project)\nmore text"
	cwd, ok := extractCwdFromText(text)
	assert.True(t, ok)
	assert.Equal(t, "/home/user/project", cwd)
}

func TestExtractCwdFromText_NoMarker(t *testing.T) {
	_, ok := extractCwdFromText("nothing here")
	assert.False(t, ok)
}
