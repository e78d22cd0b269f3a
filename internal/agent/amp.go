package agent

import (
	"context"
	"strings"
)

type ampAdapter struct{}

// NewAmp builds the Amp adapter. Amp's own session discovery runs
// asynchronously in the agent process (it reports a thread id back to
// the core's watcher within roughly 30 seconds after launch), so there
// is no synchronous log to scan here: FindSession always reports no
// resumable session, and resuming a known thread id is handled by the
// session manager passing it through as sessionID once the watcher has
// reported it.
func NewAmp() Adapter { return ampAdapter{} }

func (ampAdapter) Type() Type            { return Amp }
func (ampAdapter) DefaultBinary() string { return "amp" }

func (ampAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	return "", false, nil
}

func (a ampAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	binary := a.DefaultBinary()
	if strings.TrimSpace(binaryOverride) != "" {
		binary = binaryOverride
	}
	cmd := "cd " + quoteForShell(worktree) + " && " + quoteForShell(binary)
	if skipPermissions {
		cmd += " --dangerously-allow-all"
	}
	switch {
	case sessionID != "":
		cmd += " threads continue " + sessionID
	case prompt != "":
		cmd += " " + quoteForShell(prompt)
	}
	return cmd
}
