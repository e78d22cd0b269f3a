package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/schaltwerk/schaltwerk-core/internal/mcpconfig"
)

var mcpServerPathFlag string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage the schaltwerk MCP server registration for an agent CLI",
	Long: `Manage the schaltwerk MCP server configuration in each agent CLI's
own settings (Claude, Codex, OpenCode, Amp, Droid).

Examples:
  schaltwerk mcp install claude
  schaltwerk mcp status codex
  schaltwerk mcp uninstall opencode`,
}

func init() {
	mcpCmd.PersistentFlags().StringVar(&mcpServerPathFlag, "mcp-server-path", "", "path to the schaltwerk MCP server script (defaults to a sibling of this binary)")
	mcpCmd.AddCommand(mcpInstallCmd)
	mcpCmd.AddCommand(mcpUninstallCmd)
	mcpCmd.AddCommand(mcpStatusCmd)
}

var mcpInstallCmd = &cobra.Command{
	Use:   "install <client> [directory]",
	Short: "Register schaltwerk as an MCP server for client",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMCPInstall,
}

var mcpUninstallCmd = &cobra.Command{
	Use:   "uninstall <client> [directory]",
	Short: "Remove the schaltwerk MCP server registration for client",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMCPUninstall,
}

var mcpStatusCmd = &cobra.Command{
	Use:   "status [client]",
	Short: "Check MCP server availability, for one client or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMCPStatus,
}

func runMCPInstall(cmd *cobra.Command, args []string) error {
	client, err := mcpconfig.ParseClient(args[0])
	if err != nil {
		return err
	}
	projectPath, err := resolveProjectPath(args[1:])
	if err != nil {
		return err
	}
	mcpServerPath, err := resolveMCPServerPath()
	if err != nil {
		return err
	}

	svc := mcpconfig.New(nil, nil)
	msg, err := svc.Configure(context.Background(), client, projectPath, mcpServerPath)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Automatic setup failed:", err)
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Configure it manually instead:")
		fmt.Fprintln(cmd.OutOrStdout(), mcpconfig.GenerateSetupCommand(client, mcpServerPath))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runMCPUninstall(cmd *cobra.Command, args []string) error {
	client, err := mcpconfig.ParseClient(args[0])
	if err != nil {
		return err
	}
	projectPath, err := resolveProjectPath(args[1:])
	if err != nil {
		return err
	}

	svc := mcpconfig.New(nil, nil)
	msg, err := svc.Remove(context.Background(), client, projectPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runMCPStatus(cmd *cobra.Command, args []string) error {
	svc := mcpconfig.New(nil, nil)
	clients := mcpconfig.Clients
	if len(args) == 1 {
		client, err := mcpconfig.ParseClient(args[0])
		if err != nil {
			return err
		}
		clients = []mcpconfig.Client{client}
	}

	for _, c := range clients {
		status := "not available"
		if svc.CheckAvailability(c) {
			status = "available"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", c, status)
	}
	return nil
}

// resolveMCPServerPath returns the MCP server script to register: an
// explicit --mcp-server-path flag, or a path alongside this binary
// (mirroring how a bundled daemon finds its own companion server).
func resolveMCPServerPath() (string, error) {
	if mcpServerPathFlag != "" {
		return mcpServerPathFlag, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving schaltwerk binary path: %w", err)
	}
	candidate := filepath.Join(filepath.Dir(exe), "schaltwerk-mcp-server.js")
	if _, statErr := os.Stat(candidate); statErr == nil {
		return candidate, nil
	}
	if path, lookErr := exec.LookPath("schaltwerk-mcp-server"); lookErr == nil {
		return path, nil
	}
	return candidate, nil
}
