package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

type droidAdapter struct{}

// NewDroid builds the Factory Droid adapter. Session logs are flat
// JSONL files under a single directory (no per-project subdirectory), so
// matching a worktree requires reading each candidate's first line for
// its recorded cwd.
func NewDroid() Adapter { return droidAdapter{} }

func (droidAdapter) Type() Type            { return Droid }
func (droidAdapter) DefaultBinary() string { return "droid" }

func (droidAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, nil
	}
	dir := filepath.Join(home, ".factory", "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, nil
	}

	var bestID string
	var bestMillis int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		cwd, ok := droidSessionCwd(path)
		if !ok || cwd != worktree {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if millis := info.ModTime().UnixMilli(); bestID == "" || millis > bestMillis {
			bestID = strings.TrimSuffix(e.Name(), ".jsonl")
			bestMillis = millis
		}
	}
	if bestID == "" {
		return "", false, nil
	}
	return bestID, true, nil
}

func droidSessionCwd(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		if cwd, ok := v["cwd"].(string); ok && cwd != "" {
			return cwd, true
		}
		break
	}
	return "", false
}

func (a droidAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	binary := a.DefaultBinary()
	if strings.TrimSpace(binaryOverride) != "" {
		binary = binaryOverride
	}
	cmd := "cd " + quoteForShell(worktree) + " && " + quoteForShell(binary)
	if skipPermissions {
		cmd += " --auto high"
	}
	switch {
	case sessionID != "":
		cmd += " --session " + sessionID
	case prompt != "":
		cmd += " " + quoteForShell(prompt)
	}
	return cmd
}
