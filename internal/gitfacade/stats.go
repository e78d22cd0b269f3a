package gitfacade

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

// Stats summarizes a worktree's diff against a merge base.
type Stats struct {
	FilesChanged   int
	LinesAdded     int
	LinesRemoved   int
	HasUncommitted bool
}

// CalculateGitStatsFast diffs HEAD's committed tree against the
// merge-base of HEAD and parentBranch, the same metric the session list
// and merge preview display. Staged and unstaged changes on disk are not
// counted in the file and line totals; they only set HasUncommitted.
func (f *Facade) CalculateGitStatsFast(parentBranch string) (Stats, error) {
	head, err := f.repo.Head()
	if err != nil {
		return Stats{}, fmt.Errorf("read HEAD: %w: %v", errs.ErrIO, err)
	}
	headCommit, err := f.repo.CommitObject(head.Hash())
	if err != nil {
		return Stats{}, fmt.Errorf("load HEAD commit: %w: %v", errs.ErrIO, err)
	}

	parentRef, err := f.repo.Reference(plumbing.NewBranchReferenceName(parentBranch), false)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve parent branch %s: %w", parentBranch, errs.ErrRefNotFound)
	}
	parentCommit, err := f.repo.CommitObject(parentRef.Hash())
	if err != nil {
		return Stats{}, fmt.Errorf("load parent commit: %w: %v", errs.ErrIO, err)
	}

	bases, err := headCommit.MergeBase(parentCommit)
	if err != nil {
		return Stats{}, fmt.Errorf("compute merge base: %w: %v", errs.ErrIO, err)
	}
	baseCommit := headCommit
	if len(bases) > 0 {
		baseCommit = bases[0]
	}

	baseTree, err := baseCommit.Tree()
	if err != nil {
		return Stats{}, fmt.Errorf("load base tree: %w: %v", errs.ErrIO, err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return Stats{}, fmt.Errorf("load head tree: %w: %v", errs.ErrIO, err)
	}

	patch, err := baseTree.Patch(headTree)
	if err != nil {
		return Stats{}, fmt.Errorf("diff trees: %w: %v", errs.ErrIO, err)
	}

	var stats Stats
	for _, fs := range patch.Stats() {
		if fs.Addition > 0 || fs.Deletion > 0 {
			stats.FilesChanged++
		}
		stats.LinesAdded += fs.Addition
		stats.LinesRemoved += fs.Deletion
	}

	dirty, err := f.HasUncommittedChanges()
	if err != nil {
		return Stats{}, err
	}
	stats.HasUncommitted = dirty
	return stats, nil
}

// ResetWorktreeToBase hard-resets the worktree to parentBranch's tip,
// discarding any local commits and working-tree changes. Used as a
// defensive recovery when a session's worktree has drifted from its
// expected state.
func (f *Facade) ResetWorktreeToBase(parentBranch string) error {
	ref, err := f.repo.Reference(plumbing.NewBranchReferenceName(parentBranch), false)
	if err != nil {
		return fmt.Errorf("resolve parent branch %s: %w", parentBranch, errs.ErrRefNotFound)
	}
	wt, err := f.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("hard reset: %w: %v", errs.ErrIO, err)
	}
	return nil
}

// DiscardPathInWorktree restores a single path's content from
// parentBranch's tip, leaving the rest of the worktree untouched.
func (f *Facade) DiscardPathInWorktree(relpath, parentBranch string) error {
	ref, err := f.repo.Reference(plumbing.NewBranchReferenceName(parentBranch), false)
	if err != nil {
		return fmt.Errorf("resolve parent branch %s: %w", parentBranch, errs.ErrRefNotFound)
	}
	wt, err := f.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	commit, err := f.repo.CommitObject(ref.Hash())
	if err != nil {
		return fmt.Errorf("load parent commit: %w: %v", errs.ErrIO, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("load parent tree: %w: %v", errs.ErrIO, err)
	}
	file, err := tree.File(relpath)
	if err != nil {
		return fmt.Errorf("find %s in parent tree: %w: %v", relpath, errs.ErrIO, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return fmt.Errorf("read %s from parent tree: %w: %v", relpath, errs.ErrIO, err)
	}
	fsRoot := wt.Filesystem
	out, err := fsRoot.Create(relpath)
	if err != nil {
		return fmt.Errorf("open %s for write: %w: %v", relpath, errs.ErrIO, err)
	}
	defer out.Close()
	if _, err := out.Write([]byte(contents)); err != nil {
		return fmt.Errorf("write %s: %w: %v", relpath, errs.ErrIO, err)
	}
	if _, err := wt.Add(relpath); err != nil {
		return fmt.Errorf("stage restored %s: %w: %v", relpath, errs.ErrIO, err)
	}
	return nil
}
