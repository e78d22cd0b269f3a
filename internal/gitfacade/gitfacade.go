// Package gitfacade provides the library-backed git operations the core
// runs against a project's repository: branch lookup and creation,
// worktree-status inspection, diff statistics, and the merge primitives
// the merge service builds on. Everything goes through
// github.com/go-git/go-git/v5 rather than a `git` subprocess, so callers
// share one consistent view of refs and the index and none of these
// operations needs a `git` binary on PATH.
//
// Worktree creation/removal (which go-git's public API has no direct
// equivalent for) lives in the sibling internal/worktree package.
package gitfacade

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

// DefaultBranchFallback is returned by GetDefaultBranch when the
// repository's HEAD symref cannot be resolved (freshly init'd, bare, or
// detached with no branches yet).
const DefaultBranchFallback = "main"

// Facade wraps one repository's *git.Repository and exposes the C2
// contract over it. A Facade is safe to share across goroutines for
// reads; callers serialize writes with the per-project repo lock
// (internal/lockset.KeyedMutex) before calling mutating methods.
type Facade struct {
	path string
	repo *git.Repository
}

// Open opens an existing repository at path.
func Open(path string) (*Facade, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("open %s: %w", path, errs.ErrRepoNotFound)
		}
		return nil, fmt.Errorf("open %s: %w: %v", path, errs.ErrIO, err)
	}
	return &Facade{path: path, repo: repo}, nil
}

// InitRepository creates a new non-bare repository at path if one does
// not already exist there.
func InitRepository(path string) (*Facade, error) {
	repo, err := git.PlainInit(path, false)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			return Open(path)
		}
		return nil, fmt.Errorf("init %s: %w: %v", path, errs.ErrIO, err)
	}
	return &Facade{path: path, repo: repo}, nil
}

// Path returns the repository's root directory.
func (f *Facade) Path() string { return f.path }

// Repository exposes the underlying go-git handle for callers (the merge
// service, C5) that need lower-level plumbing not wrapped here.
func (f *Facade) Repository() *git.Repository { return f.repo }

// RepositoryHasCommits reports whether HEAD resolves to a commit.
func (f *Facade) RepositoryHasCommits() bool {
	_, err := f.repo.Head()
	return err == nil
}

// HasRemote reports whether the repository has at least one configured
// remote. The GitHub CLI collaborator checks this before attempting any
// `gh` operation that assumes a remote exists.
func (f *Facade) HasRemote() bool {
	remotes, err := f.repo.Remotes()
	if err != nil {
		return false
	}
	for _, r := range remotes {
		if strings.TrimSpace(r.Config().Name) != "" {
			return true
		}
	}
	return false
}

// CreateInitialCommit creates an empty marker commit in an otherwise
// empty repository and points HEAD's default branch at it.
func (f *Facade) CreateInitialCommit(branch, authorName, authorEmail string) error {
	if f.RepositoryHasCommits() {
		return nil
	}
	wt, err := f.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	sig := Signature(authorName, authorEmail)
	hash, err := wt.Commit("Initial commit", &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return fmt.Errorf("create initial commit: %w: %v", errs.ErrIO, err)
	}
	refName := plumbing.NewBranchReferenceName(branch)
	ref := plumbing.NewHashReference(refName, hash)
	if err := f.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("point %s at initial commit: %w: %v", branch, errs.ErrIO, err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, refName)
	if err := f.repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("retarget HEAD: %w: %v", errs.ErrIO, err)
	}
	return nil
}

// GetDefaultBranch returns the repository's default branch. Ambiguous
// cases (no HEAD, detached HEAD, freshly init'd repo) fall back to
// DefaultBranchFallback.
func (f *Facade) GetDefaultBranch() string {
	head, err := f.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return DefaultBranchFallback
	}
	if head.Type() != plumbing.SymbolicReference {
		return DefaultBranchFallback
	}
	name := head.Target()
	if !name.IsBranch() {
		return DefaultBranchFallback
	}
	return name.Short()
}

// GetCurrentBranch returns the branch HEAD points to, or "" if detached.
func (f *Facade) GetCurrentBranch() (string, error) {
	head, err := f.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("read HEAD: %w: %v", errs.ErrIO, err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// ListBranches returns all local branch names.
func (f *Facade) ListBranches() ([]string, error) {
	iter, err := f.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w: %v", errs.ErrIO, err)
	}
	defer iter.Close()

	var out []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate branches: %w: %v", errs.ErrIO, err)
	}
	return out, nil
}

// BranchExists reports whether a local branch named name exists.
func (f *Facade) BranchExists(name string) bool {
	_, err := f.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	return err == nil
}

// EnsureBranchAtHead creates refs/heads/<name> pointing at HEAD if it
// does not already exist; a no-op if the branch already exists.
func (f *Facade) EnsureBranchAtHead(name string) error {
	if f.BranchExists(name) {
		return nil
	}
	head, err := f.repo.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w: %v", errs.ErrIO, err)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), head.Hash())
	if err := f.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("create branch %s: %w: %v", name, errs.ErrIO, err)
	}
	return nil
}

// NormalizeBranchToLocal maps "origin/X" to "X" when a local branch X
// exists; any other revspec (arbitrary commit ids, other remotes) is
// left untouched so that callers may pass commit-ids as merge bases.
func (f *Facade) NormalizeBranchToLocal(name string) string {
	const remotePrefix = "origin/"
	if len(name) > len(remotePrefix) && name[:len(remotePrefix)] == remotePrefix {
		candidate := name[len(remotePrefix):]
		if f.BranchExists(candidate) {
			return candidate
		}
	}
	return name
}

// RenameBranch renames oldName to newName, returning a rollback function
// that restores the original name if the caller needs to undo a
// downstream failure.
func (f *Facade) RenameBranch(oldName, newName string) (rollback func() error, err error) {
	oldRefName := plumbing.NewBranchReferenceName(oldName)
	oldRef, err := f.repo.Reference(oldRefName, false)
	if err != nil {
		return nil, fmt.Errorf("rename branch %s: %w", oldName, errs.ErrRefNotFound)
	}
	newRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName(newName), oldRef.Hash())
	if err := f.repo.Storer.SetReference(newRef); err != nil {
		return nil, fmt.Errorf("create branch %s: %w: %v", newName, errs.ErrIO, err)
	}
	if err := f.repo.Storer.RemoveReference(oldRefName); err != nil {
		_ = f.repo.Storer.RemoveReference(newRef.Name())
		return nil, fmt.Errorf("remove old branch %s: %w: %v", oldName, errs.ErrIO, err)
	}
	rollback = func() error {
		restored := plumbing.NewHashReference(oldRefName, oldRef.Hash())
		if err := f.repo.Storer.SetReference(restored); err != nil {
			return err
		}
		return f.repo.Storer.RemoveReference(newRef.Name())
	}
	return rollback, nil
}

// DeleteBranch removes refs/heads/<name>. Callers must ensure no
// worktree has the branch checked out first; go-git itself does not
// enforce this the way the git CLI does.
func (f *Facade) DeleteBranch(name string) error {
	refName := plumbing.NewBranchReferenceName(name)
	if _, err := f.repo.Reference(refName, false); err != nil {
		return fmt.Errorf("delete branch %s: %w", name, errs.ErrRefNotFound)
	}
	if err := f.repo.Storer.RemoveReference(refName); err != nil {
		return fmt.Errorf("delete branch %s: %w: %v", name, errs.ErrIO, err)
	}
	return nil
}
