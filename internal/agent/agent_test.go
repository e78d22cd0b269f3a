package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

func TestRegistry_GetKnownAgent(t *testing.T) {
	r := NewRegistry()
	a, err := r.Get("claude")
	require.NoError(t, err)
	assert.Equal(t, Claude, a.Type())
}

func TestRegistry_GetUnknownAgentReturnsUnsupported(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("made-up-agent")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnsupported)

	var unsupported *errs.UnsupportedAgentError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "made-up-agent", unsupported.Agent)
	assert.Contains(t, unsupported.Supported, "claude")
}

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := NewRegistry()
	a, err := r.Get("CODEX")
	require.NoError(t, err)
	assert.Equal(t, Codex, a.Type())
}

func TestTerminalAdapter_BuildCommandIsJustCd(t *testing.T) {
	a := NewTerminal()
	cmd := a.BuildCommand("/repo/worktree", "", "", false, "")
	assert.Equal(t, `cd "/repo/worktree"`, cmd)
}
