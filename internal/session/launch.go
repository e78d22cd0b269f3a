package session

import (
	"context"
	"fmt"

	"github.com/schaltwerk/schaltwerk-core/internal/agent"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// LaunchParams carries the caller's launch intent. BinaryOverride lets a
// per-project or per-session setting point at a non-default install of
// the agent's CLI.
type LaunchParams struct {
	ForceRestart    bool
	BinaryOverride  string
	SkipPermissions bool
}

// LaunchCommand is the shell command the caller should run in the
// session's worktree, plus whether it resumed a prior agent session.
type LaunchCommand struct {
	Shell    string
	Resumed  bool
	SkipPerm bool
}

// LaunchSpecProduction decides, and never the caller, whether a session's
// launch is fresh or a resume: force_restart always wins, then a session
// that has never had resume_allowed set gets a fresh start, and only
// then does the manager ask the adapter whether a resumable prior
// session exists on disk. A binary that can't be resolved on disk or in
// PATH is surfaced as AgentUnavailable before any shell string is built,
// so the core never hands back a command destined to fail.
func (m *Manager) LaunchSpecProduction(ctx context.Context, sessionID string, params LaunchParams) (*LaunchCommand, error) {
	sess, err := m.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	adapter, err := m.registry.Get(sess.OriginalAgentType)
	if err != nil {
		return nil, err
	}
	if _, err := agent.ResolveBinary(adapter, params.BinaryOverride); err != nil {
		return nil, err
	}

	skipPermissions := sess.OriginalSkipPermissions || params.SkipPermissions

	if params.ForceRestart {
		cmd := adapter.BuildCommand(sess.WorktreePath, "", sess.InitialPrompt, skipPermissions, params.BinaryOverride)
		return &LaunchCommand{Shell: cmd, Resumed: false, SkipPerm: skipPermissions}, nil
	}

	if !sess.ResumeAllowed {
		cmd := adapter.BuildCommand(sess.WorktreePath, "", sess.InitialPrompt, skipPermissions, params.BinaryOverride)
		if err := m.markResumeAllowed(ctx, sess); err != nil {
			return nil, err
		}
		return &LaunchCommand{Shell: cmd, Resumed: false, SkipPerm: skipPermissions}, nil
	}

	resumeID, found, err := adapter.FindSession(ctx, sess.WorktreePath)
	if err != nil {
		return nil, fmt.Errorf("find resumable session for %s: %w", sess.Name, err)
	}
	if !found {
		cmd := adapter.BuildCommand(sess.WorktreePath, "", sess.InitialPrompt, skipPermissions, params.BinaryOverride)
		return &LaunchCommand{Shell: cmd, Resumed: false, SkipPerm: skipPermissions}, nil
	}

	cmd := adapter.BuildCommand(sess.WorktreePath, resumeID, "", skipPermissions, params.BinaryOverride)
	return &LaunchCommand{Shell: cmd, Resumed: true, SkipPerm: skipPermissions}, nil
}

func (m *Manager) markResumeAllowed(ctx context.Context, sess *store.Session) error {
	m.lockRepo()
	defer m.unlockRepo()
	return m.store.SetSessionResumeAllowed(ctx, sess.ID, true)
}
