package mcpconfig

import (
	"fmt"

	"github.com/tidwall/sjson"
)

const droidMCPServersKey = "mcpServers"

func configureDroid(mcpServerPath string) (string, error) {
	path, err := droidConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving Factory Droid config path: %w", err)
	}
	doc, err := readJSONOrDefault(path, "{}")
	if err != nil {
		return "", err
	}
	doc, err = sjson.Set(doc, droidMCPServersKey+"."+serverName, map[string]any{
		"type":     "stdio",
		"command":  "node",
		"args":     []string{mcpServerPath},
		"disabled": false,
	})
	if err != nil {
		return "", fmt.Errorf("updating Factory Droid config: %w", err)
	}
	if err := writeJSONFile(path, doc); err != nil {
		return "", fmt.Errorf("writing Factory Droid config: %w", err)
	}
	return "Factory Droid MCP configured in ~/.factory/mcp.json", nil
}

func removeDroid() (string, error) {
	path, err := droidConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving Factory Droid config path: %w", err)
	}
	doc, err := readJSONOrDefault(path, "")
	if err != nil {
		return "", err
	}
	if doc == "" {
		return "Factory Droid config not found", nil
	}
	doc, err = sjson.Delete(doc, droidMCPServersKey+"."+serverName)
	if err != nil {
		return "", fmt.Errorf("updating Factory Droid config: %w", err)
	}
	doc = removeEmptyParent(doc, droidMCPServersKey)
	if err := writeJSONFile(path, doc); err != nil {
		return "", fmt.Errorf("writing Factory Droid config: %w", err)
	}
	return "Removed schaltwerk MCP from Factory Droid config", nil
}
