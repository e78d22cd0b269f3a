package mcpconfig

import (
	"fmt"

	"github.com/tidwall/sjson"
)

const opencodeDefaultDoc = `{"$schema":"https://opencode.ai/config.json"}`

func configureOpenCode(projectPath, mcpServerPath string) (string, error) {
	path, err := opencodeConfigPath(projectPath)
	if err != nil {
		return "", fmt.Errorf("resolving OpenCode config path: %w", err)
	}
	doc, err := readJSONOrDefault(path, opencodeDefaultDoc)
	if err != nil {
		return "", err
	}
	doc, err = sjson.Set(doc, "mcp."+serverName, map[string]any{
		"type":    "local",
		"command": []string{"node", mcpServerPath},
		"enabled": true,
	})
	if err != nil {
		return "", fmt.Errorf("updating OpenCode config: %w", err)
	}
	if err := writeJSONFile(path, doc); err != nil {
		return "", fmt.Errorf("writing OpenCode config: %w", err)
	}
	return "OpenCode MCP configured successfully", nil
}

func removeOpenCode(projectPath string) (string, error) {
	path, err := opencodeConfigPath(projectPath)
	if err != nil {
		return "", fmt.Errorf("resolving OpenCode config path: %w", err)
	}
	doc, err := readJSONOrDefault(path, "")
	if err != nil {
		return "", err
	}
	if doc == "" {
		return "OpenCode config not found", nil
	}
	doc, err = sjson.Delete(doc, "mcp."+serverName)
	if err != nil {
		return "", fmt.Errorf("updating OpenCode config: %w", err)
	}
	doc = removeEmptyParent(doc, "mcp")
	if err := writeJSONFile(path, doc); err != nil {
		return "", fmt.Errorf("writing OpenCode config: %w", err)
	}
	return "Removed schaltwerk MCP from OpenCode config", nil
}
