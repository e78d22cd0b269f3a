package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1 << 20 // 1MB, consistent with the app config DB guard

// LoadProjectConfig loads .schaltwerk/config.json for the given project
// root, falling back to defaults when the file is absent. Environment
// variables prefixed SCHALTWERK_PROJECT_ override individual fields
// (SCHALTWERK_PROJECT_BRANCH_PREFIX -> branch_prefix).
func LoadProjectConfig(projectRoot string) (*ProjectConfig, error) {
	path := filepath.Join(projectRoot, ".schaltwerk", "config.json")
	cfg := DefaultProjectConfig()
	if err := loadInto(path, "SCHALTWERK_PROJECT_", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveProjectConfig writes the config back to .schaltwerk/config.json with
// 0600 permissions, creating the .schaltwerk directory if necessary.
func SaveProjectConfig(projectRoot string, cfg *ProjectConfig) error {
	dir := filepath.Join(projectRoot, ".schaltwerk")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating .schaltwerk directory: %w", err)
	}
	return writeJSON(filepath.Join(dir, "config.json"), cfg)
}

// LoadAppConfig loads the machine-wide config database path override via
// SCHALTWERK_APP_CONFIG_DB_PATH, falling back to ~/.config/schaltwerk/app.json.
func LoadAppConfig() (*AppConfig, string, error) {
	path := os.Getenv("SCHALTWERK_APP_CONFIG_DB_PATH")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "schaltwerk", "app.json")
	}

	cfg := DefaultAppConfig()
	if err := loadInto(path, "SCHALTWERK_APP_", cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func loadInto(path, envPrefix string, out interface{}) error {
	k := koanf.New(".")

	if info, statErr := os.Stat(path); statErr == nil {
		if info.Size() > maxConfigFileSize {
			return fmt.Errorf("config file %s exceeds max size %d bytes", path, maxConfigFileSize)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}

		parser := parserFor(path)
		if err := k.Load(rawbytes.Provider(content), parser); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(s, v string) (string, interface{}) {
		return transform(s), v
	}), nil); err != nil {
		return fmt.Errorf("loading environment overrides: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}
	return nil
}

// parserFor picks a koanf parser by extension; JSON is the persisted
// format but YAML is accepted for hand-authored project config.json-like
// files during development.
func parserFor(path string) koanf.Parser {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return jsonParser{}
	}
}

// Watch starts an fsnotify watcher on path and invokes onChange whenever
// the file is written. The caller owns the returned watcher's lifecycle
// and must Close it on shutdown.
func Watch(path string, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) == filepath.Clean(path) &&
					(event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
