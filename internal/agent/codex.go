package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schaltwerk/schaltwerk-core/internal/agent/indexer"
)

// Sentinel session identifiers BuildCommand recognizes for Codex: they
// never collide with a real session id (Codex ids are UUIDs).
const (
	CodexContinueLast = "__continue__"
	CodexResumePicker = "__resume__"
)

type codexAdapter struct {
	mu    sync.Mutex
	index *indexer.Codex
}

// NewCodex builds the Codex adapter. idx may be nil, in which case an
// index rooted at the default `~/.codex/sessions` is created lazily on
// first use.
func NewCodex(idx *indexer.Codex) Adapter {
	return &codexAdapter{index: idx}
}

func (*codexAdapter) Type() Type            { return Codex }
func (*codexAdapter) DefaultBinary() string { return "codex" }

func (a *codexAdapter) ensureIndex() *indexer.Codex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index == nil {
		home, _ := os.UserHomeDir()
		a.index = indexer.NewCodex(filepath.Join(home, ".codex", "sessions"))
	}
	return a.index
}

// FindSession returns one of the two resume sentinels rather than an
// actual session id: the session manager doesn't need to know which
// file backed the match, only whether to continue the globally most
// recent session or open Codex's own interactive resume picker.
func (a *codexAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	match, found, err := a.ensureIndex().MatchForCwd(worktree)
	if err != nil || !found {
		return "", false, err
	}
	if match.IsGlobalNewest {
		return CodexContinueLast, true, nil
	}
	return CodexResumePicker, true, nil
}

func (a *codexAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	binary := a.DefaultBinary()
	if strings.TrimSpace(binaryOverride) != "" {
		binary = binaryOverride
	}
	sandbox := "workspace-write"
	if skipPermissions {
		sandbox = "danger-full-access"
	}

	cmd := "cd " + quoteForShell(worktree) + " && " + quoteForShell(binary) + " --sandbox " + sandbox

	switch {
	case sessionID == CodexContinueLast:
		cmd += " resume --last"
	case sessionID == CodexResumePicker:
		cmd += " resume"
	case strings.HasPrefix(sessionID, "file://"):
		if id, ok := extractCodexSessionIDFromFile(strings.TrimPrefix(sessionID, "file://")); ok {
			cmd += " resume " + id
		} else {
			cmd += " resume"
		}
	case sessionID != "":
		cmd += " resume " + sessionID
	case prompt != "":
		cmd += " " + quoteForShell(prompt)
	}
	return cmd
}

// extractCodexSessionIDFromFile reads a legacy file-URI session
// reference's first matching JSON line for its session id, checking
// payload.id before a top-level id field.
func extractCodexSessionIDFromFile(path string) (string, bool) {
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
		if payload, ok := v["payload"].(map[string]any); ok {
			if id, ok := payload["id"].(string); ok && id != "" {
				return id, true
			}
		}
		if id, ok := v["id"].(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}
