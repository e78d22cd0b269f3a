// Package session implements the Session Manager (C4): the component
// that exclusively owns mutation of Session and Spec rows, coordinates
// worktree/branch creation and teardown through the Git Facade, and
// decides what shell command launches or resumes an agent in a given
// session's worktree.
//
// Every mutating entry point takes the per-project repository lock
// (internal/lockset.KeyedMutex, grounded the same way the merge
// service's per-session lock is) around its database writes.
// CreateSessionWithAgent holds it for its whole sequence; CancelSession
// and display-name renames do their worktree, branch and process work
// without it and lock only for the final database updates.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/schaltwerk/schaltwerk-core/internal/agent"
	"github.com/schaltwerk/schaltwerk-core/internal/config"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/lockset"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
	"github.com/schaltwerk/schaltwerk-core/internal/workerpool"
)

// DefaultAuthorName and DefaultAuthorEmail sign commits the manager
// creates on the caller's behalf (the initial commit in an empty
// repository). A project may not have git user.name/user.email
// configured yet when a session is first created there.
const (
	DefaultAuthorName  = "schaltwerk"
	DefaultAuthorEmail = "schaltwerk@localhost"
)

// staleStatsThreshold is how old cached git stats may be before
// list_enriched_sessions triggers a background refresh instead of
// serving the cached value untouched.
const staleStatsThreshold = 60 * time.Second

// Manager is the Session Manager for a single project repository. One
// Manager instance is created per open project.
type Manager struct {
	store          *store.Store
	repoPath       string
	repositoryName string
	cfg            *config.ProjectConfig
	registry       *agent.Registry
	repoLock       *lockset.KeyedMutex
	pool           *workerpool.Pool
	logger         *logging.Logger
	events         Emitter

	statsMu    sync.Mutex
	statsCache map[string]*store.GitStats
}

// New constructs a Manager bound to one project's repository path. cfg
// may be nil, in which case config.DefaultProjectConfig() is used.
// events may be nil, in which case events are discarded.
func New(st *store.Store, repoPath, repositoryName string, cfg *config.ProjectConfig, registry *agent.Registry, logger *logging.Logger, events Emitter) *Manager {
	if cfg == nil {
		cfg = config.DefaultProjectConfig()
	}
	if registry == nil {
		registry = agent.NewRegistry()
	}
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	if events == nil {
		events = NoopEmitter{}
	}
	return &Manager{
		store:          st,
		repoPath:       repoPath,
		repositoryName: repositoryName,
		cfg:            cfg,
		registry:       registry,
		repoLock:       lockset.NewKeyedMutex(),
		pool:           workerpool.New(4),
		logger:         logger,
		events:         events,
		statsCache:     make(map[string]*store.GitStats),
	}
}

func (m *Manager) lockRepo()   { m.repoLock.Lock(m.repoPath) }
func (m *Manager) unlockRepo() { m.repoLock.Unlock(m.repoPath) }

// resolveParentBranch implements the base-branch resolution order from
// the creation contract: explicit base (trimmed, normalized) first, then
// current HEAD, then the repository's default branch. Arbitrary revspecs
// (commit ids) are left untouched by normalization so they remain valid
// merge bases.
func (m *Manager) resolveParentBranch(f *gitfacade.Facade, requested string) (string, error) {
	if candidate := strings.TrimSpace(requested); candidate != "" {
		return m.normalizeBranchCandidate(f, candidate)
	}

	if current, err := f.GetCurrentBranch(); err == nil && current != "" {
		return m.normalizeBranchCandidate(f, current)
	}

	def := f.GetDefaultBranch()
	if def == "" {
		return "", fmt.Errorf("could not determine base branch for %s", m.repoPath)
	}
	return m.normalizeBranchCandidate(f, def)
}

// normalizeBranchCandidate maps origin/X to X when possible. An empty
// repository (no commits yet) defers normalization: the candidate is
// used as-is and becomes a real branch once bootstrap creates the
// initial commit.
func (m *Manager) normalizeBranchCandidate(f *gitfacade.Facade, branch string) (string, error) {
	if !f.RepositoryHasCommits() {
		return branch, nil
	}
	return f.NormalizeBranchToLocal(branch), nil
}

// ensureRepositoryInitialized creates an empty initial commit when the
// repository has no history yet, so that a fresh parent branch and the
// first worktree both have a valid HEAD to check out.
func (m *Manager) ensureRepositoryInitialized(f *gitfacade.Facade, parentBranch string) error {
	if f.RepositoryHasCommits() {
		return nil
	}
	if err := f.CreateInitialCommit(parentBranch, DefaultAuthorName, DefaultAuthorEmail); err != nil {
		return fmt.Errorf("create initial commit: %w", err)
	}
	return f.EnsureBranchAtHead(parentBranch)
}

