package agent

import "context"

type terminalAdapter struct{}

// NewTerminal builds the plain-shell adapter used for sessions that don't
// run any particular agent binary: the launch spec is just a cd into the
// worktree, left for the user to drive interactively.
func NewTerminal() Adapter { return terminalAdapter{} }

func (terminalAdapter) Type() Type            { return Terminal }
func (terminalAdapter) DefaultBinary() string { return "" }

func (terminalAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	return "", false, nil
}

func (terminalAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	return "cd " + quoteForShell(worktree)
}
