package mcpconfig

import (
	"os"
	"os/exec"
	"path/filepath"
)

// DetectedBinary is one candidate CLI binary found on disk, contributed by
// whatever agent-binary detector the caller runs (PATH scan, well-known
// install directories, etc). Recommended marks the detector's best guess.
type DetectedBinary struct {
	Path        string
	Recommended bool
}

// BinaryConfig is the user's persisted binary preference for one client:
// an explicit override path, plus whatever the detector most recently found.
type BinaryConfig struct {
	CustomPath string
	Detected   []DetectedBinary
}

// ResolveCLIPath picks the CLI binary to invoke for client, trying in
// order: the user's custom path, the detector's recommended binary, every
// other detected binary, and finally whatever PATH resolves the client's
// own command name to. The first candidate that exists, is a regular
// file, and is executable wins; duplicates are skipped. Returns "" if
// nothing on the candidate list is actually runnable.
func ResolveCLIPath(client Client, cfg *BinaryConfig) string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		candidates = append(candidates, path)
	}

	if cfg != nil {
		add(cfg.CustomPath)
		for _, d := range cfg.Detected {
			if d.Recommended {
				add(d.Path)
			}
		}
		for _, d := range cfg.Detected {
			add(d.Path)
		}
	}

	if found, err := exec.LookPath(client.String()); err == nil {
		add(found)
	}

	for _, c := range candidates {
		if isExecutable(c) {
			return c
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// resolveNodeCommand returns the node binary to run the MCP server with,
// falling back to the bare command name so PATH resolution happens at
// exec time if node isn't found up front.
func resolveNodeCommand() string {
	if path, err := exec.LookPath("node"); err == nil {
		return path
	}
	return "node"
}

func userHomeConfigPath(parts ...string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, parts...)...), nil
}
