package mcpconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

func TestServiceConfigureDroidThroughDispatch(t *testing.T) {
	home := t.TempDir()
	withHome(t, home)

	svc := New(nil, nil)
	msg, err := svc.Configure(context.Background(), ClientDroid, home, "/opt/mcp-server.js")
	require.NoError(t, err)
	require.NotEmpty(t, msg)

	require.True(t, svc.CheckAvailability(ClientDroid))
}

func TestServiceConfigureClaudeWithoutCLIReturnsAgentUnavailable(t *testing.T) {
	t.Setenv("PATH", "")
	svc := New(nil, &BinaryConfig{CustomPath: "/nonexistent/claude"})
	_, err := svc.Configure(context.Background(), ClientClaude, t.TempDir(), "/opt/mcp-server.js")
	require.Error(t, err)
	var unavailable *errs.AgentUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.False(t, svc.CheckAvailability(ClientClaude))
}

func TestServiceConfigureClaudeUsesResolvedBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "claude")
	// A stub "claude" that exits 0 for any args, standing in for the real CLI.
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	svc := New(nil, &BinaryConfig{CustomPath: script})
	msg, err := svc.Configure(context.Background(), ClientClaude, t.TempDir(), "/opt/mcp-server.js")
	require.NoError(t, err)
	require.NotEmpty(t, msg)
}

func TestGenerateSetupCommandCoversEveryClient(t *testing.T) {
	for _, c := range Clients {
		cmd := GenerateSetupCommand(c, "/opt/mcp-server.js")
		require.NotEmpty(t, cmd, "client %s should have a setup command", c)
	}
}

func TestParseClient(t *testing.T) {
	c, err := ParseClient("codex")
	require.NoError(t, err)
	require.Equal(t, ClientCodex, c)

	_, err = ParseClient("not-a-client")
	require.Error(t, err)
}
