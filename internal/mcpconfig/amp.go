package mcpconfig

import (
	"fmt"

	"github.com/tidwall/sjson"
)

const ampMCPServersKey = "amp.mcpServers"

func configureAmp(mcpServerPath string) (string, error) {
	path, err := ampConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving Amp config path: %w", err)
	}
	doc, err := readJSONOrDefault(path, "{}")
	if err != nil {
		return "", err
	}
	doc, err = sjson.Set(doc, ampMCPServersKey+"."+serverName, map[string]any{
		"command": "node",
		"args":    []string{mcpServerPath},
	})
	if err != nil {
		return "", fmt.Errorf("updating Amp config: %w", err)
	}
	if err := writeJSONFile(path, doc); err != nil {
		return "", fmt.Errorf("writing Amp config: %w", err)
	}
	return "Amp MCP configured in ~/.config/amp/settings.json", nil
}

func removeAmp() (string, error) {
	path, err := ampConfigPath()
	if err != nil {
		return "", fmt.Errorf("resolving Amp config path: %w", err)
	}
	doc, err := readJSONOrDefault(path, "")
	if err != nil {
		return "", err
	}
	if doc == "" {
		return "Amp config not found", nil
	}
	doc, err = sjson.Delete(doc, ampMCPServersKey+"."+serverName)
	if err != nil {
		return "", fmt.Errorf("updating Amp config: %w", err)
	}
	doc = removeEmptyParent(doc, ampMCPServersKey)
	if err := writeJSONFile(path, doc); err != nil {
		return "", fmt.Errorf("writing Amp config: %w", err)
	}
	return "Removed schaltwerk MCP from Amp config", nil
}
