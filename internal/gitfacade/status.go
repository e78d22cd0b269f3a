package gitfacade

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

// UncommittedStatus summarizes what's dirty in a worktree without
// enumerating every path.
type UncommittedStatus struct {
	HasTrackedChanges   bool
	HasUntrackedChanges bool
}

// HasUncommittedChanges reports whether the worktree has any pending
// change, tracked or untracked.
func (f *Facade) HasUncommittedChanges() (bool, error) {
	st, err := f.GetUncommittedChangesStatus()
	if err != nil {
		return false, err
	}
	return st.HasTrackedChanges || st.HasUntrackedChanges, nil
}

// GetUncommittedChangesStatus classifies the worktree's dirt into tracked
// vs untracked buckets, used by the safety rule in §4.2 to decide whether
// an operation may touch the working tree.
func (f *Facade) GetUncommittedChangesStatus() (UncommittedStatus, error) {
	wt, err := f.repo.Worktree()
	if err != nil {
		return UncommittedStatus{}, fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	status, err := wt.Status()
	if err != nil {
		return UncommittedStatus{}, fmt.Errorf("worktree status: %w: %v", errs.ErrIO, err)
	}

	var out UncommittedStatus
	for _, s := range status {
		if s.Worktree == git.Untracked && s.Staging == git.Untracked {
			out.HasUntrackedChanges = true
			continue
		}
		out.HasTrackedChanges = true
	}
	return out, nil
}

// UncommittedSamplePaths returns up to n dirty paths, deterministically
// ordered, for display in error messages and UI previews.
func (f *Facade) UncommittedSamplePaths(n int) ([]string, error) {
	wt, err := f.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w: %v", errs.ErrIO, err)
	}

	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	if n >= 0 && len(paths) > n {
		paths = paths[:n]
	}
	return paths, nil
}

// HasConflicts reports whether the index currently has any unmerged
// entries (a merge or rebase left conflict markers behind).
func (f *Facade) HasConflicts() (bool, error) {
	idx, err := f.repo.Storer.Index()
	if err != nil {
		return false, fmt.Errorf("read index: %w: %v", errs.ErrIO, err)
	}
	for _, e := range idx.Entries {
		if e.Stage != 0 {
			return true, nil
		}
	}
	return false, nil
}

// CommitAllChanges stages every pending change (tracked modifications,
// deletions, and new files) and creates a commit with message.
func (f *Facade) CommitAllChanges(message, authorName, authorEmail string) (string, error) {
	wt, err := f.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w: %v", errs.ErrIO, err)
	}
	sig := Signature(authorName, authorEmail)
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", fmt.Errorf("commit: %w: %v", errs.ErrIO, err)
	}
	return hash.String(), nil
}
