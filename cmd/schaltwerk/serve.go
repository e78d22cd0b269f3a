package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/control"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
	"github.com/schaltwerk/schaltwerk-core/internal/project"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve [directory]",
	Short: "Start the control surface HTTP server for one project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	projectPath, err := resolveProjectPath(args)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := project.NewRegistry(logger, session.NoopEmitter{})
	defer func() { _ = registry.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info(ctx, "received shutdown signal")
		cancel()
	}()

	if _, err := registry.Get(ctx, projectPath); err != nil {
		return fmt.Errorf("loading project %q: %w", projectPath, err)
	}

	ln, port, err := control.ResolveListener(projectPath)
	if err != nil {
		return fmt.Errorf("binding control surface listener: %w", err)
	}

	srv := control.NewServer(registry, logger, projectPath)
	logger.Info(ctx, "control surface listening", zap.String("project", projectPath), zap.Int("port", port))

	return srv.Start(ctx, ln)
}
