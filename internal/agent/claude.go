package agent

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schaltwerk/schaltwerk-core/internal/sanitize"
)

type claudeAdapter struct{}

// NewClaude builds the Claude Code adapter. Session logs live one JSONL
// file per session under a per-project directory keyed by the flattened
// project path.
func NewClaude() Adapter { return claudeAdapter{} }

func (claudeAdapter) Type() Type            { return Claude }
func (claudeAdapter) DefaultBinary() string { return "claude" }

func claudeProjectDir(worktree string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects", sanitize.ProjectPathKey(worktree)), nil
}

func (claudeAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	dir, err := claudeProjectDir(worktree)
	if err != nil {
		return "", false, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, nil
	}

	type candidate struct {
		id      string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".jsonl")
		candidates = append(candidates, candidate{id: id, modTime: info.ModTime().UnixMilli()})
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].id, true, nil
}

func (a claudeAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
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
		cmd += " --resume " + sessionID
	case prompt != "":
		cmd += " " + quoteForShell(prompt)
	}
	return cmd
}
