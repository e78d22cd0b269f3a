package mcpconfig

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

func configureClaude(ctx context.Context, cliPath, projectPath, mcpServerPath string) (string, error) {
	cmd := exec.CommandContext(ctx, cliPath,
		"mcp", "add",
		"--transport", "stdio",
		"--scope", "project",
		serverName,
		"node", mcpServerPath,
	)
	cmd.Dir = projectPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("claude CLI failed: %s", stripANSI(stderr.String()))
	}
	return "MCP server configured successfully for this project", nil
}

func removeClaude(ctx context.Context, cliPath, projectPath string) (string, error) {
	cmd := exec.CommandContext(ctx, cliPath, "mcp", "remove", serverName)
	cmd.Dir = projectPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to remove MCP: %s", stripANSI(stderr.String()))
	}
	return "MCP server removed from project", nil
}

// stripANSI removes escape sequences from CLI output before it ends up in
// an error message or a log line.
func stripANSI(s string) string {
	var out bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1B {
			i++
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}
