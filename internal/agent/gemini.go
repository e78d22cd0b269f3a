package agent

import (
	"context"
	"strings"
)

type geminiAdapter struct{}

// NewGemini builds the Gemini CLI adapter. Gemini has no durable
// per-worktree session log the core can read, so FindSession always
// reports no resumable session; every launch starts fresh.
func NewGemini() Adapter { return geminiAdapter{} }

func (geminiAdapter) Type() Type            { return Gemini }
func (geminiAdapter) DefaultBinary() string { return "gemini" }

func (geminiAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	return "", false, nil
}

func (a geminiAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	binary := a.DefaultBinary()
	if strings.TrimSpace(binaryOverride) != "" {
		binary = binaryOverride
	}
	cmd := "cd " + quoteForShell(worktree) + " && " + quoteForShell(binary)
	if skipPermissions {
		cmd += " --yolo"
	}
	if prompt != "" {
		cmd += " " + quoteForShell(prompt)
	}
	return cmd
}
