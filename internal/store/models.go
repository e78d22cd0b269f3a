// Package store implements the Persistence Store (C1): SQLite-backed
// durable state for sessions, specs, archived specs, per-project config,
// and cached git stats. One database file per project; the global
// app-config database is opened separately by internal/config.
//
// Uses modernc.org/sqlite, a pure-Go sqlite driver, together with
// database/sql, so the core builds without a C toolchain.
package store

import "time"

// SessionStatus mirrors the data model's top-level status.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCancelled SessionStatus = "cancelled"
	StatusSpec      SessionStatus = "spec"
)

// SessionState is the finer-grained lifecycle state.
type SessionState string

const (
	StateSpec       SessionState = "spec"
	StateRunning    SessionState = "running"
	StateReviewed   SessionState = "reviewed"
	StateProcessing SessionState = "processing"
)

// Session is the durable record of one unit of agent work.
type Session struct {
	ID                      string
	Name                    string
	DisplayName             string
	Branch                  string
	ParentBranch            string
	OriginalParentBranch    string
	WorktreePath            string
	RepositoryPath          string
	RepositoryName          string
	Status                  SessionStatus
	SessionState            SessionState
	ReadyToMerge            bool
	OriginalAgentType       string
	OriginalSkipPermissions bool
	InitialPrompt           string
	SpecContent             string
	ResumeAllowed           bool
	AmpThreadID             string
	VersionGroupID          string
	VersionNumber           int
	PRNumber                int
	PRURL                   string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	LastActivity            time.Time
}

// Spec is a pre-session markdown draft not yet materialized as a worktree.
type Spec struct {
	ID             string
	Name           string
	DisplayName    string
	Content        string
	RepositoryPath string
	RepositoryName string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ArchivedSpec is an immutable historical copy of a Spec whose session
// was archived.
type ArchivedSpec struct {
	ID             string
	Name           string
	DisplayName    string
	Content        string
	RepositoryPath string
	RepositoryName string
	ArchivedAt     time.Time
}

// GitStats is cached diff metrics for one session.
type GitStats struct {
	SessionID         string
	FilesChanged      int
	LinesAdded        int
	LinesRemoved      int
	HasUncommitted    bool
	CalculatedAt      time.Time
	LastDiffChangeTS  time.Time
}
