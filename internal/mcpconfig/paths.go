package mcpconfig

import (
	"os"
	"path/filepath"
	"runtime"
)

// codexConfigPath resolves ~/.codex/config.toml, honoring CODEX_HOME like
// the Codex CLI itself does.
func codexConfigPath() (string, error) {
	if home := os.Getenv("CODEX_HOME"); home != "" {
		return filepath.Join(home, "config.toml"), nil
	}
	return userHomeConfigPath(".codex", "config.toml")
}

// opencodeConfigPath prefers a project-local opencode.json over the
// global ~/.opencode/config.json, matching how the OpenCode CLI itself
// resolves configuration.
func opencodeConfigPath(projectPath string) (string, error) {
	projectConfig := filepath.Join(projectPath, "opencode.json")
	if _, err := os.Stat(projectConfig); err == nil {
		return projectConfig, nil
	}
	return userHomeConfigPath(".opencode", "config.json")
}

// ampConfigPath resolves Amp's settings.json, which lives under
// %APPDATA% on Windows and ~/.config elsewhere.
func ampConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData, _ = os.UserConfigDir()
		}
		return filepath.Join(appData, "amp", "settings.json"), nil
	}
	return userHomeConfigPath(".config", "amp", "settings.json")
}

// droidConfigPath resolves Factory Droid's mcp.json, which lives under
// %USERPROFILE%\.factory on Windows and ~/.factory elsewhere.
func droidConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		profile := os.Getenv("USERPROFILE")
		if profile == "" {
			profile, _ = os.UserHomeDir()
		}
		return filepath.Join(profile, ".factory", "mcp.json"), nil
	}
	return userHomeConfigPath(".factory", "mcp.json")
}
