package mcpconfig

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func TestResolveCLIPathPrefersCustomPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit checks are POSIX-specific")
	}
	dir := t.TempDir()
	custom := makeExecutable(t, dir, "claude")

	cfg := &BinaryConfig{CustomPath: custom}
	require.Equal(t, custom, ResolveCLIPath(ClientClaude, cfg))
}

func TestResolveCLIPathPrefersRecommendedDetected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit checks are POSIX-specific")
	}
	dir := t.TempDir()
	recommended := makeExecutable(t, dir, "claude-recommended")
	other := makeExecutable(t, dir, "claude-other")

	cfg := &BinaryConfig{
		Detected: []DetectedBinary{
			{Path: other, Recommended: false},
			{Path: recommended, Recommended: true},
		},
	}
	require.Equal(t, recommended, ResolveCLIPath(ClientClaude, cfg))
}

func TestResolveCLIPathSkipsNonExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bit checks are POSIX-specific")
	}
	dir := t.TempDir()
	broken := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(broken, []byte("not executable"), 0o644))
	working := makeExecutable(t, dir, "claude-fallback")

	cfg := &BinaryConfig{
		CustomPath: broken,
		Detected:   []DetectedBinary{{Path: working, Recommended: true}},
	}
	require.Equal(t, working, ResolveCLIPath(ClientClaude, cfg))
}

func TestResolveCLIPathReturnsEmptyWhenNothingRuns(t *testing.T) {
	cfg := &BinaryConfig{CustomPath: "/nonexistent/path/to/claude"}
	path := ResolveCLIPath(Client("not-a-real-client-binary-xyz"), cfg)
	require.Empty(t, path)
}
