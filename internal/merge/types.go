// Package merge implements the Merge Service (C5): the component that
// folds a reviewed session's commits back into its parent branch, either
// by squashing them into one commit or by fast-forwarding the parent
// directly after a rebase.
package merge

// Mode selects how a session's commits land on the parent branch.
type Mode string

const (
	// Squash collapses every session commit into one new commit on the
	// parent branch, using a caller-supplied commit message.
	Squash Mode = "squash"
	// Reapply fast-forwards the parent branch to the session's HEAD
	// after rebasing, preserving the session's individual commits.
	Reapply Mode = "reapply"
)

// Preview is the non-mutating assessment a caller reviews before
// confirming a merge: the commands a human would run for each mode (for
// display only — the service itself never shells out to git), plus
// whether the merge would conflict or is a no-op.
type Preview struct {
	SessionBranch         string
	ParentBranch          string
	SquashCommands        []string
	ReapplyCommands       []string
	DefaultCommitMessage  string
	HasConflicts          bool
	ConflictingPaths      []string
	// IsUpToDate reports whether the parent branch is already an ancestor
	// of the session branch, meaning no rebase step is needed before the
	// squash/reapply write.
	IsUpToDate bool
}

// Outcome reports what a completed merge actually did.
type Outcome struct {
	SessionBranch string
	ParentBranch  string
	NewCommit     string
	Mode          Mode
}

// State is the conflict/up-to-date assessment shared by Preview and the
// pre-merge conflict check, so both paths agree on what counts as a
// conflict.
type State struct {
	HasConflicts     bool
	ConflictingPaths []string
	IsUpToDate       bool
}
