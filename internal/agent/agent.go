// Package agent defines the adapter surface every supported coding agent
// implements, and the registry that resolves an agent type name to its
// adapter. Each adapter knows how to find a resumable session for a
// worktree and how to render a shell command that starts or resumes one;
// the session manager never special-cases an agent by name once it has
// the adapter in hand.
package agent

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

// Type names a supported agent. The zero value is not a valid agent.
type Type string

const (
	Claude   Type = "claude"
	Codex    Type = "codex"
	Gemini   Type = "gemini"
	OpenCode Type = "opencode"
	Amp      Type = "amp"
	Droid    Type = "droid"
	Kilocode Type = "kilocode"
	Terminal Type = "terminal"
)

// Adapter is the capability set the session manager needs from every
// agent: resolve a resumable session for a worktree, and render the shell
// command that launches or resumes it.
type Adapter interface {
	// Type reports the adapter's own agent type, for logging and errors.
	Type() Type

	// DefaultBinary is the binary name looked up on PATH when no override
	// is configured.
	DefaultBinary() string

	// FindSession looks for a resumable session rooted at worktree. It
	// returns found=false, not an error, when no session exists; errors
	// are reserved for filesystem failures the caller should surface.
	FindSession(ctx context.Context, worktree string) (sessionID string, found bool, err error)

	// BuildCommand renders the full shell command to run in worktree. If
	// sessionID is non-empty the command resumes that session and prompt
	// is ignored; otherwise it starts fresh with prompt (which may be
	// empty). binaryOverride, if non-empty, replaces DefaultBinary().
	BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string
}

// ResolveBinary checks a configured override (validated to exist on disk
// or resolvable on PATH) before falling back to the adapter's default
// binary name, also resolved against PATH. It never returns an empty
// string without an error.
func ResolveBinary(a Adapter, override string) (string, error) {
	candidate := strings.TrimSpace(override)
	if candidate == "" {
		candidate = a.DefaultBinary()
	}
	if path, err := exec.LookPath(candidate); err == nil {
		return path, nil
	}
	// LookPath also accepts an absolute/relative path that exists without
	// being on PATH; exec.LookPath rejects those with a non-ENOENT error
	// on some platforms, so fall back to accepting candidate as a path
	// when it names an existing regular file on disk.
	if strings.ContainsRune(candidate, '/') {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", &errs.AgentUnavailableError{Agent: string(a.Type()), Path: override}
}

// Registry resolves agent type names to their adapters.
type Registry struct {
	adapters map[Type]Adapter
}

// NewRegistry builds a registry over the full set of supported adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Type]Adapter)}
	for _, a := range []Adapter{
		NewClaude(),
		NewCodex(nil),
		NewGemini(),
		NewOpenCode(),
		NewAmp(),
		NewDroid(),
		NewKilocode(nil),
		NewTerminal(),
	} {
		r.adapters[a.Type()] = a
	}
	return r
}

// Get resolves name to its adapter, or an UnsupportedAgentError naming the
// full supported set.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[Type(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		supported := make([]string, 0, len(r.adapters))
		for t := range r.adapters {
			supported = append(supported, string(t))
		}
		sort.Strings(supported)
		return nil, &errs.UnsupportedAgentError{Agent: name, Supported: supported}
	}
	return a, nil
}

// Supported lists every registered agent type name, sorted.
func (r *Registry) Supported() []string {
	out := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}
