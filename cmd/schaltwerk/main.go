// Command schaltwerk is the CLI entrypoint for the schaltwerk core: it
// starts the per-project control surface (serve) and manages the MCP
// server registration each agent CLI needs to talk back to it (mcp
// install/uninstall/status).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "schaltwerk [directory]",
	Short:   "Schaltwerk core: orchestrates concurrent AI coding agents on isolated git worktrees",
	Version: version,
	Args:    cobra.MaximumNArgs(1),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}

// resolveProjectPath picks the project directory a subcommand operates
// on: the positional argument, then SCHALTWERK_START_DIR, then the
// current working directory.
func resolveProjectPath(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if dir := os.Getenv("SCHALTWERK_START_DIR"); dir != "" {
		return dir, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving current directory: %w", err)
	}
	return dir, nil
}
