package config

// ProjectConfig holds the per-project settings persisted to
// .schaltwerk/config.json by SaveProjectConfig and read back by
// LoadProjectConfig. It is loaded once per project and cached by the
// project registry; the fsnotify watcher started by Watch can report
// when the file changes on disk underneath a running process.
type ProjectConfig struct {
	// DefaultBaseBranch is used to resolve parent_branch when a session is
	// created without an explicit base and the repository has no usable
	// current HEAD (e.g. freshly initialized).
	DefaultBaseBranch string `koanf:"default_base_branch" json:"default_base_branch"`

	// BranchPrefix namespaces session branches, e.g. "schaltwerk/".
	BranchPrefix string `koanf:"branch_prefix" json:"branch_prefix"`

	// DefaultAgentType is the agent used for a new session when the
	// caller does not supply one. A per-session override always wins.
	DefaultAgentType string `koanf:"default_agent_type" json:"default_agent_type"`

	// DefaultSkipPermissions is the permission-mode default a new
	// session inherits absent a per-session override.
	DefaultSkipPermissions bool `koanf:"default_skip_permissions" json:"default_skip_permissions"`

	// SetupScript runs once after a worktree is created, before the agent
	// launches. Empty means no setup step.
	SetupScript string `koanf:"setup_script" json:"setup_script"`

	// ActionButtons are user-defined quick actions surfaced by the
	// frontend; the core only stores and returns them.
	ActionButtons []ActionButton `koanf:"action_buttons" json:"action_buttons"`

	// Merge holds default merge behavior for this project.
	Merge MergePreferences `koanf:"merge" json:"merge"`

	// EnvironmentVariables are injected into the agent's shell command
	// environment at launch time (not into the command line itself).
	EnvironmentVariables map[string]string `koanf:"environment_variables" json:"environment_variables"`

	// SessionsUI holds display preferences for the sessions list that the
	// core persists on the frontend's behalf.
	SessionsUI SessionsUIConfig `koanf:"sessions_ui" json:"sessions_ui"`

	// GitHubRepo is "owner/repo", used by the pull-request command.
	GitHubRepo string `koanf:"github_repo" json:"github_repo"`
}

// ActionButton is a user-defined quick action (label + shell template).
type ActionButton struct {
	Label   string `koanf:"label" json:"label"`
	Command string `koanf:"command" json:"command"`
}

// MergePreferences configures default merge behavior for a project.
type MergePreferences struct {
	DefaultMode       string `koanf:"default_mode" json:"default_mode"` // "squash" | "reapply"
	CancelAfterMerge  bool   `koanf:"cancel_after_merge" json:"cancel_after_merge"`
	RequireCleanWorktree bool `koanf:"require_clean_worktree" json:"require_clean_worktree"`
}

// SessionsUIConfig controls how the frontend should group/sort sessions;
// the core stores this verbatim and never interprets it.
type SessionsUIConfig struct {
	SortBy      string `koanf:"sort_by" json:"sort_by"`
	GroupByRepo bool   `koanf:"group_by_repo" json:"group_by_repo"`
}

// DefaultProjectConfig returns sensible defaults applied when a project
// has no config.json yet or a key is missing from it.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		DefaultBaseBranch:      "",
		BranchPrefix:           "schaltwerk/",
		DefaultAgentType:       "claude",
		DefaultSkipPermissions: false,
		Merge: MergePreferences{
			DefaultMode:          "squash",
			CancelAfterMerge:     false,
			RequireCleanWorktree: true,
		},
		EnvironmentVariables: map[string]string{},
		SessionsUI: SessionsUIConfig{
			SortBy:      "last_activity",
			GroupByRepo: false,
		},
	}
}

// AppConfig holds machine-wide preferences stored in the global app
// config database (SCHALTWERK_APP_CONFIG_DB_PATH overrides its path).
type AppConfig struct {
	DefaultOpenWithApp string            `koanf:"default_open_with_app" json:"default_open_with_app"`
	TelemetryEnabled   bool              `koanf:"telemetry_enabled" json:"telemetry_enabled"`
	Fields             map[string]string `koanf:"fields" json:"fields"`
}

// DefaultAppConfig returns the machine-wide defaults.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		DefaultOpenWithApp: "",
		TelemetryEnabled:   false,
		Fields:             map[string]string{},
	}
}
