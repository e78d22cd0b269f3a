// Package project owns the per-project singletons the control surface
// dispatches commands and HTTP requests against: one persistence store,
// one session manager, and one merge service per project path, kept for
// the life of the process.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/agent"
	"github.com/schaltwerk/schaltwerk-core/internal/config"
	"github.com/schaltwerk/schaltwerk-core/internal/ghcli"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
	"github.com/schaltwerk/schaltwerk-core/internal/merge"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// Core bundles one project's backend singletons.
type Core struct {
	Path     string
	Config   *config.ProjectConfig
	Store    *store.Store
	Sessions *session.Manager
	Merge    *merge.Service
	Events   session.Emitter
	GHCli    *ghcli.Client

	// configWatcher is non-nil when config hot-reload started
	// successfully; Registry.Close stops it along with the store.
	configWatcher *fsnotify.Watcher
}

// Registry creates and caches a Core per absolute project path. Project
// identity is the filesystem path itself; there is no separate project
// ID, since a desktop orchestrator's projects are exactly the git
// repositories a user points it at.
type Registry struct {
	mu     sync.Mutex
	cores  map[string]*Core
	logger *logging.Logger
	events session.Emitter
}

// NewRegistry constructs an empty Registry. logger and events may be nil;
// every Core created from this registry shares them.
func NewRegistry(logger *logging.Logger, events session.Emitter) *Registry {
	return &Registry{cores: make(map[string]*Core), logger: logger, events: events}
}

// Get returns the Core for projectPath, creating and caching it on first
// access: opens (or creates) `.schaltwerk/sessions.db`, loads
// `.schaltwerk/config.json`, and wires a fresh agent registry, session
// manager, and merge service bound to that store.
func (r *Registry) Get(ctx context.Context, projectPath string) (*Core, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("resolve project path %q: %w", projectPath, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cores[abs]; ok {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Join(abs, ".schaltwerk"), 0o700); err != nil {
		return nil, fmt.Errorf("creating .schaltwerk directory: %w", err)
	}
	if err := ensureGitignoreEntry(abs, ".mcp.json"); err != nil && r.logger != nil {
		r.logger.Warn(ctx, "failed to update .gitignore", zap.Error(err))
	}

	cfg, err := config.LoadProjectConfig(abs)
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(abs, ".schaltwerk", "sessions.db")
	st, err := store.Open(ctx, dbPath, r.logger)
	if err != nil {
		return nil, err
	}

	reg := agent.NewRegistry()
	mgr := session.New(st, abs, filepath.Base(abs), cfg, reg, r.logger, r.events)
	svc := merge.New(st, r.logger, r.events)

	core := &Core{Path: abs, Config: cfg, Store: st, Sessions: mgr, Merge: svc, Events: r.events, GHCli: ghcli.New()}

	configPath := filepath.Join(abs, ".schaltwerk", "config.json")
	watcher, err := config.Watch(configPath, func() { r.reloadConfig(abs, cfg) })
	if err != nil && r.logger != nil {
		r.logger.Warn(ctx, "failed to start config hot-reload watcher", zap.Error(err))
	}
	core.configWatcher = watcher

	r.cores[abs] = core
	return core, nil
}

// reloadConfig re-reads a project's config.json in place so every holder
// of the Core's *config.ProjectConfig pointer (the session manager, the
// control surface) sees the change without a process restart.
func (r *Registry) reloadConfig(projectPath string, cfg *config.ProjectConfig) {
	reloaded, err := config.LoadProjectConfig(projectPath)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn(context.Background(), "failed to reload project config",
				zap.String("project", projectPath), zap.Error(err))
		}
		return
	}
	r.mu.Lock()
	*cfg = *reloaded
	r.mu.Unlock()
}

// Loaded reports whether projectPath already has a cached Core, without
// creating one.
func (r *Registry) Loaded(projectPath string) bool {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cores[abs]
	return ok
}

// Close closes every opened project store, in no particular order.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, c := range r.cores {
		if c.configWatcher != nil {
			_ = c.configWatcher.Close()
		}
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureGitignoreEntry appends pattern to <root>/.gitignore if it isn't
// already listed, creating the file if necessary. MCP client config
// files are project-local and machine-specific; they should never be
// committed.
func ensureGitignoreEntry(root, pattern string) error {
	path := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == pattern {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(pattern + "\n")
	return err
}
