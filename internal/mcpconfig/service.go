package mcpconfig

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
)

// Service configures and removes the schaltwerk MCP server registration
// across every supported agent CLI. Claude is the only client driven
// through its own CLI binary ("claude mcp add/remove"); the rest are
// edited directly as config files since they have no equivalent command.
type Service struct {
	logger    *logging.Logger
	claudeCfg *BinaryConfig
}

// New builds a Service. claudeCfg carries the user's Claude binary
// preference (custom path / detected candidates); it may be nil, in which
// case only PATH lookup is used to find the claude CLI.
func New(logger *logging.Logger, claudeCfg *BinaryConfig) *Service {
	return &Service{logger: logger, claudeCfg: claudeCfg}
}

func (s *Service) logInfo(ctx context.Context, msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Info(ctx, msg, fields...)
	}
}

// CheckAvailability reports whether client's CLI can be invoked at all.
// Only Claude has a CLI dependency; every other client is a config file
// this process can always write, so it is always reported available.
func (s *Service) CheckAvailability(client Client) bool {
	if client != ClientClaude {
		return true
	}
	return ResolveCLIPath(ClientClaude, s.claudeCfg) != ""
}

// Configure registers the schaltwerk MCP server for client.
func (s *Service) Configure(ctx context.Context, client Client, projectPath, mcpServerPath string) (string, error) {
	switch client {
	case ClientClaude:
		cliPath := ResolveCLIPath(ClientClaude, s.claudeCfg)
		if cliPath == "" {
			return "", &errs.AgentUnavailableError{Agent: "claude"}
		}
		s.logInfo(ctx, "configuring Claude MCP", zap.String("cli_path", cliPath))
		return configureClaude(ctx, cliPath, projectPath, mcpServerPath)
	case ClientCodex:
		return configureCodex(mcpServerPath)
	case ClientOpenCode:
		return configureOpenCode(projectPath, mcpServerPath)
	case ClientAmp:
		return configureAmp(mcpServerPath)
	case ClientDroid:
		return configureDroid(mcpServerPath)
	default:
		return "", fmt.Errorf("unsupported MCP client %q", client)
	}
}

// Remove unregisters the schaltwerk MCP server for client.
func (s *Service) Remove(ctx context.Context, client Client, projectPath string) (string, error) {
	switch client {
	case ClientClaude:
		cliPath := ResolveCLIPath(ClientClaude, s.claudeCfg)
		if cliPath == "" {
			return "", &errs.AgentUnavailableError{Agent: "claude"}
		}
		return removeClaude(ctx, cliPath, projectPath)
	case ClientCodex:
		return removeCodex()
	case ClientOpenCode:
		return removeOpenCode(projectPath)
	case ClientAmp:
		return removeAmp()
	case ClientDroid:
		return removeDroid()
	default:
		return "", fmt.Errorf("unsupported MCP client %q", client)
	}
}

// GenerateSetupCommand returns the manual setup snippet to show a user
// whose CLI (or config file location) this process can't reach directly.
func GenerateSetupCommand(client Client, mcpServerPath string) string {
	switch client {
	case ClientClaude:
		return fmt.Sprintf("claude mcp add --transport stdio --scope project schaltwerk node %q", mcpServerPath)
	case ClientCodex:
		return fmt.Sprintf("Add to ~/.codex/config.toml:\n[mcp_servers.schaltwerk]\ncommand = %q\nargs = [%q]",
			resolveNodeCommand(), mcpServerPath)
	case ClientOpenCode:
		return fmt.Sprintf("Add to opencode.json:\n{\n  \"mcp\": {\n    \"schaltwerk\": {\n      \"type\": \"local\",\n      \"command\": [\"node\", %q],\n      \"enabled\": true\n    }\n  }\n}", mcpServerPath)
	case ClientAmp:
		return fmt.Sprintf("Add to ~/.config/amp/settings.json:\n{\n  \"amp.mcpServers\": {\n    \"schaltwerk\": {\n      \"command\": \"node\",\n      \"args\": [%q]\n    }\n  }\n}", mcpServerPath)
	case ClientDroid:
		return fmt.Sprintf("Add to ~/.factory/mcp.json:\n{\n  \"mcpServers\": {\n    \"schaltwerk\": {\n      \"type\": \"stdio\",\n      \"command\": \"node\",\n      \"args\": [%q]\n    }\n  }\n}", mcpServerPath)
	default:
		return ""
	}
}
