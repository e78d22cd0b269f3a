// Package control implements the Control Surface (C6): the in-process
// command table the desktop frontend dispatches against, and the
// loopback HTTP server MCP bridges and webhook senders talk to. Both
// entry points share the same per-project Core resolution and the same
// handler logic underneath.
package control

import (
	"time"

	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/merge"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// SessionDTO is the wire representation of a session, joined with its
// cached git stats. store.Session carries no JSON tags of its own (it is
// a persistence record, not a wire type), so every field is restated
// here under its snake_case name.
type SessionDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DisplayName    string    `json:"display_name"`
	Branch         string    `json:"branch"`
	ParentBranch   string    `json:"parent_branch"`
	WorktreePath   string    `json:"worktree_path"`
	RepositoryPath string    `json:"repository_path"`
	RepositoryName string    `json:"repository_name"`
	Status         string    `json:"status"`
	SessionState   string    `json:"session_state"`
	ReadyToMerge   bool      `json:"ready_to_merge"`
	AgentType      string    `json:"agent_type"`
	InitialPrompt  string    `json:"initial_prompt,omitempty"`
	ResumeAllowed  bool      `json:"resume_allowed"`
	PRNumber       int       `json:"pr_number,omitempty"`
	PRURL          string    `json:"pr_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Missing        bool      `json:"missing,omitempty"`
	IsSpec         bool      `json:"is_spec,omitempty"`
	Stats          *GitStatsDTO `json:"stats,omitempty"`
}

// GitStatsDTO is the wire representation of store.GitStats.
type GitStatsDTO struct {
	FilesChanged   int       `json:"files_changed"`
	LinesAdded     int       `json:"lines_added"`
	LinesRemoved   int       `json:"lines_removed"`
	HasUncommitted bool      `json:"has_uncommitted"`
	CalculatedAt   time.Time `json:"calculated_at"`
}

// PullRequestDTO is the wire representation of a GitHub CLI collaborator
// result: the branch it pushed and the PR it created or found.
type PullRequestDTO struct {
	Branch string `json:"branch"`
	URL    string `json:"url"`
	Number int    `json:"number,omitempty"`
}

// SpecDTO is the wire representation of store.Spec.
type SpecDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DisplayName    string    `json:"display_name"`
	Content        string    `json:"content"`
	RepositoryPath string    `json:"repository_path"`
	RepositoryName string    `json:"repository_name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toSessionDTO(es session.EnrichedSession) SessionDTO {
	sess := es.Session
	dto := SessionDTO{
		ID:             sess.ID,
		Name:           sess.Name,
		DisplayName:    sess.DisplayName,
		Branch:         sess.Branch,
		ParentBranch:   sess.ParentBranch,
		WorktreePath:   sess.WorktreePath,
		RepositoryPath: sess.RepositoryPath,
		RepositoryName: sess.RepositoryName,
		Status:         string(sess.Status),
		SessionState:   string(sess.SessionState),
		ReadyToMerge:   sess.ReadyToMerge,
		AgentType:      sess.OriginalAgentType,
		InitialPrompt:  sess.InitialPrompt,
		ResumeAllowed:  sess.ResumeAllowed,
		PRNumber:       sess.PRNumber,
		PRURL:          sess.PRURL,
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
		Missing:        es.Missing,
		IsSpec:         es.IsSpec,
	}
	if es.Stats != nil {
		dto.Stats = &GitStatsDTO{
			FilesChanged:   es.Stats.FilesChanged,
			LinesAdded:     es.Stats.LinesAdded,
			LinesRemoved:   es.Stats.LinesRemoved,
			HasUncommitted: es.Stats.HasUncommitted,
			CalculatedAt:   es.Stats.CalculatedAt,
		}
	}
	return dto
}

func toSpecDTO(sp *store.Spec) SpecDTO {
	return SpecDTO{
		ID:             sp.ID,
		Name:           sp.Name,
		DisplayName:    sp.DisplayName,
		Content:        sp.Content,
		RepositoryPath: sp.RepositoryPath,
		RepositoryName: sp.RepositoryName,
		CreatedAt:      sp.CreatedAt,
		UpdatedAt:      sp.UpdatedAt,
	}
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Name              string `json:"name"`
	Prompt            string `json:"prompt,omitempty"`
	BaseBranch        string `json:"base_branch,omitempty"`
	CustomBranch      string `json:"custom_branch,omitempty"`
	UseExistingBranch bool   `json:"use_existing_branch,omitempty"`
	SyncWithOrigin    bool   `json:"sync_with_origin,omitempty"`
	AgentType         string `json:"agent_type,omitempty"`
	SkipPermissions   *bool  `json:"skip_permissions,omitempty"`
}

func (r CreateSessionRequest) toParams() session.CreateParams {
	return session.CreateParams{
		Name:              r.Name,
		Prompt:            r.Prompt,
		BaseBranch:        r.BaseBranch,
		CustomBranch:      r.CustomBranch,
		UseExistingBranch: r.UseExistingBranch,
		SyncWithOrigin:    r.SyncWithOrigin,
		AgentType:         r.AgentType,
		SkipPermissions:   r.SkipPermissions,
	}
}

// CreateSpecRequest is the body of POST /api/specs.
type CreateSpecRequest struct {
	Name            string `json:"name"`
	Content         string `json:"content"`
	AgentType       string `json:"agent_type,omitempty"`
	SkipPermissions bool   `json:"skip_permissions,omitempty"`
}

// UpdateSpecRequest is the body of PATCH /api/specs/:name.
type UpdateSpecRequest struct {
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

// StartSpecRequest is the body of POST /api/specs/:name/start.
type StartSpecRequest struct {
	DisplayName     string `json:"display_name,omitempty"`
	AgentType       string `json:"agent_type,omitempty"`
	SkipPermissions *bool  `json:"skip_permissions,omitempty"`
}

// MergeRequest is the body of POST /api/sessions/:name/merge.
type MergeRequest struct {
	Mode             string `json:"mode"`
	CommitMessage    string `json:"commit_message,omitempty"`
	CancelAfterMerge bool   `json:"cancel_after_merge,omitempty"`
}

// MergeResultDTO is the wire representation of merge.Outcome.
type MergeResultDTO struct {
	SessionBranch string `json:"session_branch"`
	ParentBranch  string `json:"parent_branch"`
	NewCommit     string `json:"new_commit"`
	Mode          string `json:"mode"`
}

func toMergeResultDTO(o *merge.Outcome) MergeResultDTO {
	return MergeResultDTO{
		SessionBranch: o.SessionBranch,
		ParentBranch:  o.ParentBranch,
		NewCommit:     o.NewCommit,
		Mode:          string(o.Mode),
	}
}

// PreviewDTO is the wire representation of merge.Preview.
type PreviewDTO struct {
	SessionBranch        string   `json:"session_branch"`
	ParentBranch         string   `json:"parent_branch"`
	SquashCommands       []string `json:"squash_commands"`
	ReapplyCommands      []string `json:"reapply_commands"`
	DefaultCommitMessage string   `json:"default_commit_message"`
	HasConflicts         bool     `json:"has_conflicts"`
	ConflictingPaths     []string `json:"conflicting_paths,omitempty"`
	IsUpToDate           bool     `json:"is_up_to_date"`
}

func toPreviewDTO(p *merge.Preview) PreviewDTO {
	return PreviewDTO{
		SessionBranch:        p.SessionBranch,
		ParentBranch:         p.ParentBranch,
		SquashCommands:       p.SquashCommands,
		ReapplyCommands:      p.ReapplyCommands,
		DefaultCommitMessage: p.DefaultCommitMessage,
		HasConflicts:         p.HasConflicts,
		ConflictingPaths:     p.ConflictingPaths,
		IsUpToDate:           p.IsUpToDate,
	}
}

// DiffSummaryDTO is the paginated response of GET /api/diff/summary.
type DiffSummaryDTO struct {
	Files      []DiffFileEntryDTO `json:"files"`
	NextCursor int                `json:"next_cursor,omitempty"`
	HasMore    bool               `json:"has_more"`
}

// DiffFileEntryDTO is one row of a diff summary.
type DiffFileEntryDTO struct {
	Path         string `json:"path"`
	ChangeType   string `json:"change_type"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

func toDiffFileEntryDTO(fd gitfacade.FileDiff) DiffFileEntryDTO {
	return DiffFileEntryDTO{
		Path:         fd.Path,
		ChangeType:   fd.ChangeType,
		LinesAdded:   fd.LinesAdded,
		LinesRemoved: fd.LinesRemoved,
	}
}

// DiffFileDTO is the paginated response of GET /api/diff/file.
type DiffFileDTO struct {
	Path       string         `json:"path"`
	Lines      []DiffLineDTO  `json:"lines"`
	NextCursor int            `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// DiffLineDTO is one line of a unified diff.
type DiffLineDTO struct {
	Op      string `json:"op"`
	Content string `json:"content"`
}

// SetupScriptDTO is the body/response of GET/PUT /api/project/setup-script.
type SetupScriptDTO struct {
	SetupScript string `json:"setup_script"`
}

// CancelResultDTO is the wire representation of session.CancelResult.
type CancelResultDTO struct {
	TerminatedPIDs  []int32  `json:"terminated_pids,omitempty"`
	WorktreeRemoved bool     `json:"worktree_removed"`
	BranchDeleted   bool     `json:"branch_deleted"`
	Errors          []string `json:"errors,omitempty"`
}

func toCancelResultDTO(r *session.CancelResult) CancelResultDTO {
	return CancelResultDTO{
		TerminatedPIDs:  r.TerminatedPIDs,
		WorktreeRemoved: r.WorktreeRemoved,
		BranchDeleted:   r.BranchDeleted,
		Errors:          r.Errors,
	}
}
