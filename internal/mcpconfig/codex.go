package mcpconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const codexDefaultDoc = "# Generated by Schaltwerk\n\n"
const codexSectionHeader = "[mcp_servers.schaltwerk]\n"

// codexServer is encoded with BurntSushi/toml so the command/args values
// come out correctly TOML-escaped; the surrounding file is edited as text
// so every other section and comment in config.toml survives untouched.
type codexServer struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

func configureCodex(mcpServerPath string) (string, error) {
	path, err := codexConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving Codex config path: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("reading Codex config: %w", err)
		}
		content = []byte(codexDefaultDoc)
	} else if _, derr := decodeTOMLSections(content); derr != nil {
		return "", fmt.Errorf("parsing existing Codex config: %w", derr)
	}

	stripped := stripCodexSection(string(content))

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(codexServer{
		Command: resolveNodeCommand(),
		Args:    []string{mcpServerPath},
	}); err != nil {
		return "", fmt.Errorf("encoding Codex MCP section: %w", err)
	}

	updated := stripped + codexSectionHeader + buf.String() + "\n"

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("creating Codex config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		return "", fmt.Errorf("writing Codex config: %w", err)
	}
	return "Codex MCP configured in ~/.codex/config.toml", nil
}

func removeCodex() (string, error) {
	path, err := codexConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving Codex config path: %w", err)
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "Codex config not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading Codex config: %w", err)
	}
	if !strings.Contains(string(content), codexSectionHeader) {
		return "schaltwerk MCP not present in Codex config", nil
	}
	stripped := stripCodexSection(string(content))
	if err := os.WriteFile(path, []byte(stripped), 0600); err != nil {
		return "", fmt.Errorf("updating Codex config: %w", err)
	}
	return "Removed schaltwerk MCP from Codex config", nil
}

// stripCodexSection removes the [mcp_servers.schaltwerk] table, stopping
// at the next top-level "[" table header or end of file.
func stripCodexSection(content string) string {
	start := strings.Index(content, codexSectionHeader)
	if start < 0 {
		return content
	}
	rest := content[start+len(codexSectionHeader):]
	end := len(content)
	for i := 0; i < len(rest); i++ {
		if rest[i] == '\n' && i+1 < len(rest) && rest[i+1] == '[' {
			end = start + len(codexSectionHeader) + i + 1
			break
		}
	}
	return content[:start] + content[end:]
}

func decodeTOMLSections(content []byte) (map[string]any, error) {
	var out map[string]any
	_, err := toml.Decode(string(content), &out)
	return out, err
}
