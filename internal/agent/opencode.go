package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaltwerk/schaltwerk-core/internal/sanitize"
)

type opencodeAdapter struct{}

// NewOpenCode builds the OpenCode adapter. Session logs use the same
// sanitized-project-path directory scheme as Claude, under a different
// root.
func NewOpenCode() Adapter { return opencodeAdapter{} }

func (opencodeAdapter) Type() Type            { return OpenCode }
func (opencodeAdapter) DefaultBinary() string { return "opencode" }

func (opencodeAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, nil
	}
	dir := filepath.Join(home, ".local", "share", "opencode", "project", sanitize.ProjectPathKey(worktree))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, nil
	}

	var newest string
	var newestMillis int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if millis := info.ModTime().UnixMilli(); newest == "" || millis > newestMillis {
			newest = strings.TrimSuffix(e.Name(), ".json")
			newestMillis = millis
		}
	}
	if newest == "" {
		return "", false, nil
	}
	return newest, true, nil
}

func (a opencodeAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	binary := a.DefaultBinary()
	if strings.TrimSpace(binaryOverride) != "" {
		binary = binaryOverride
	}
	cmd := "cd " + quoteForShell(worktree) + " && " + quoteForShell(binary)
	if skipPermissions {
		cmd += " --dangerously-skip-permissions"
	}
	switch {
	case sessionID != "":
		cmd += " --session " + sessionID
	case prompt != "":
		cmd += " " + quoteForShell(prompt)
	}
	return cmd
}
