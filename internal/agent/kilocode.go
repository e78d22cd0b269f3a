package agent

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/schaltwerk/schaltwerk-core/internal/agent/indexer"
)

type kilocodeAdapter struct {
	mu    sync.Mutex
	index *indexer.Kilocode

	// lastHasHistory remembers whether the most recent FindSession
	// result had real conversation history, since BuildCommand's flag
	// (continue a session with history vs. seed a fresh prompt into an
	// empty one) depends on it and the Adapter interface only carries a
	// bare session id string between the two calls.
	lastHasHistory map[string]bool
}

// NewKilocode builds the Kilocode adapter. idx may be nil, in which case
// an index rooted at the default home directory is created lazily.
func NewKilocode(idx *indexer.Kilocode) Adapter {
	return &kilocodeAdapter{index: idx, lastHasHistory: make(map[string]bool)}
}

func (*kilocodeAdapter) Type() Type            { return Kilocode }
func (*kilocodeAdapter) DefaultBinary() string { return "kilocode" }

func (a *kilocodeAdapter) ensureIndex() *indexer.Kilocode {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index == nil {
		home, _ := os.UserHomeDir()
		a.index = indexer.NewKilocode(home)
	}
	return a.index
}

func (a *kilocodeAdapter) FindSession(ctx context.Context, worktree string) (string, bool, error) {
	match, found := a.ensureIndex().FindSession(worktree)
	if !found {
		return "", false, nil
	}
	a.mu.Lock()
	a.lastHasHistory[match.SessionID] = match.HasHistory
	a.mu.Unlock()
	return match.SessionID, true, nil
}

func (a *kilocodeAdapter) BuildCommand(worktree, sessionID, prompt string, skipPermissions bool, binaryOverride string) string {
	binary := a.DefaultBinary()
	if strings.TrimSpace(binaryOverride) != "" {
		binary = binaryOverride
	}
	cmd := "cd " + quoteForShell(worktree) + " && " + quoteForShell(binary)

	a.mu.Lock()
	hasHistory := a.lastHasHistory[sessionID]
	a.mu.Unlock()

	switch {
	case sessionID != "" && hasHistory:
		cmd += " --session " + sessionID
	case sessionID != "":
		if prompt != "" {
			cmd += " --prompt " + quoteSingle(prompt)
		}
	case prompt != "":
		cmd += " --prompt " + quoteSingle(prompt)
	}
	return cmd
}
