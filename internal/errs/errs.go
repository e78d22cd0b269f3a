// Package errs defines the structured error kinds shared across the
// schaltwerk core. Sentinel errors are matched with errors.Is; kinds that
// carry data (MergeConflict, AgentUnavailable) are typed structs matched
// with errors.As. internal/control maps every kind to an HTTP status code
// in one place (HTTPStatus) so the mapping cannot drift between handlers.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds with no associated data.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrCorrupt        = errors.New("corrupt state")
	ErrIO             = errors.New("io error")
	ErrNonFastForward = errors.New("not a fast-forward")
	ErrDirtyWorktree  = errors.New("worktree has uncommitted changes")
	ErrBranchInUse    = errors.New("branch already checked out elsewhere")
	ErrRepoNotFound   = errors.New("repository not found")
	ErrRefNotFound    = errors.New("reference not found")
	ErrWorktreeMissing = errors.New("worktree missing")
	ErrTimeout        = errors.New("operation timed out")
	ErrInProgress     = errors.New("operation already in progress")
	ErrUnsupported    = errors.New("unsupported agent")
)

// MergeConflictError reports conflicting paths discovered during a merge
// preview or rebase. Paths are capped by the caller at 5 entries and never
// include .schaltwerk/** (internal state is never a user-visible conflict).
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict in %d path(s): %v", len(e.Paths), e.Paths)
}

// Is makes errors.Is(err, &MergeConflictError{}) match any
// *MergeConflictError, whatever its paths; it does not match ErrConflict.
func (e *MergeConflictError) Is(target error) bool {
	_, ok := target.(*MergeConflictError)
	return ok
}

// AgentUnavailableError reports that an agent's binary could not be
// resolved on disk or in PATH. The core must never emit a launch spec for
// an agent that fails this check.
type AgentUnavailableError struct {
	Agent string
	Path  string
}

func (e *AgentUnavailableError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("agent %q binary not found at %q", e.Agent, e.Path)
	}
	return fmt.Sprintf("agent %q binary not found in PATH", e.Agent)
}

// UnsupportedAgentError names the agent that was requested and the set of
// agents the registry actually knows about.
type UnsupportedAgentError struct {
	Agent     string
	Supported []string
}

func (e *UnsupportedAgentError) Error() string {
	return fmt.Sprintf("unsupported agent %q, supported: %v", e.Agent, e.Supported)
}

func (e *UnsupportedAgentError) Unwrap() error { return ErrUnsupported }

// DirtyWorktreeError carries a sample of the offending paths for display.
type DirtyWorktreeError struct {
	SamplePaths []string
}

func (e *DirtyWorktreeError) Error() string {
	return fmt.Sprintf("worktree has uncommitted changes: %v", e.SamplePaths)
}

func (e *DirtyWorktreeError) Unwrap() error { return ErrDirtyWorktree }

// GitHubCLIKind classifies a GitHubCLIError.
type GitHubCLIKind string

const (
	GitHubCLINotInstalled   GitHubCLIKind = "not_installed"
	GitHubCLINoRemote       GitHubCLIKind = "no_remote"
	GitHubCLICommandFailed  GitHubCLIKind = "command_failed"
	GitHubCLIInvalidOutput  GitHubCLIKind = "invalid_output"
)

// GitHubCLIError reports a failure talking to the `gh` binary: missing
// from PATH, no git remote to operate against, a non-zero exit, or output
// that didn't parse the way a caller expected.
type GitHubCLIError struct {
	Kind    GitHubCLIKind
	Program string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitHubCLIError) Error() string {
	switch e.Kind {
	case GitHubCLINotInstalled:
		return "GitHub CLI (gh) not found"
	case GitHubCLINoRemote:
		return "repository has no git remote configured"
	case GitHubCLICommandFailed:
		return fmt.Sprintf("%s %v failed: %s", e.Program, e.Args, firstNonEmpty(e.Stderr, e.Stdout))
	case GitHubCLIInvalidOutput:
		return fmt.Sprintf("unexpected output from %s: %v", e.Program, e.Err)
	default:
		return fmt.Sprintf("github cli error: %v", e.Err)
	}
}

func (e *GitHubCLIError) Unwrap() error { return e.Err }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// HTTPStatus maps an error to the status code the control surface's HTTP
// handlers should return. Order matters: more specific checks first.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var mergeConflict *MergeConflictError
	var agentUnavailable *AgentUnavailableError
	var unsupported *UnsupportedAgentError
	var dirty *DirtyWorktreeError
	var githubCLI *GitHubCLIError

	switch {
	case errors.As(err, &mergeConflict):
		return http.StatusConflict
	case errors.As(err, &agentUnavailable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity
	case errors.As(err, &dirty):
		return http.StatusUnprocessableEntity
	case errors.As(err, &githubCLI):
		if githubCLI.Kind == GitHubCLINotInstalled || githubCLI.Kind == GitHubCLINoRemote {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRepoNotFound), errors.Is(err, ErrWorktreeMissing), errors.Is(err, ErrRefNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInProgress), errors.Is(err, ErrBranchInUse), errors.Is(err, ErrNonFastForward):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusConflict
	case errors.Is(err, ErrDirtyWorktree):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCorrupt), errors.Is(err, ErrIO):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
