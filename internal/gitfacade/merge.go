package gitfacade

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

// Signature builds a commit author/committer signature stamped with the
// current time, the shape every commit the core creates needs.
func Signature(name, email string) *object.Signature {
	return &object.Signature{Name: name, Email: email, When: time.Now()}
}

// MergeResult reports the outcome of a trial or real merge between a
// session branch and its parent.
type MergeResult struct {
	IsUpToDate       bool
	ConflictingPaths []string
}

// MergeCommits computes what merging sessionBranch into parentBranch
// would produce. With failOnConflict false this is a pure preview: no
// refs are touched regardless of the outcome.
func (f *Facade) MergeCommits(sessionBranch, parentBranch string, failOnConflict bool) (MergeResult, error) {
	sessionRef, err := f.repo.Reference(plumbing.NewBranchReferenceName(sessionBranch), false)
	if err != nil {
		return MergeResult{}, fmt.Errorf("resolve %s: %w", sessionBranch, errs.ErrRefNotFound)
	}
	parentRef, err := f.repo.Reference(plumbing.NewBranchReferenceName(parentBranch), false)
	if err != nil {
		return MergeResult{}, fmt.Errorf("resolve %s: %w", parentBranch, errs.ErrRefNotFound)
	}

	sessionCommit, err := f.repo.CommitObject(sessionRef.Hash())
	if err != nil {
		return MergeResult{}, fmt.Errorf("load %s: %w: %v", sessionBranch, errs.ErrIO, err)
	}
	parentCommit, err := f.repo.CommitObject(parentRef.Hash())
	if err != nil {
		return MergeResult{}, fmt.Errorf("load %s: %w: %v", parentBranch, errs.ErrIO, err)
	}

	if IsAncestor(f, parentCommit, sessionCommit) {
		return MergeResult{IsUpToDate: true}, nil
	}

	bases, err := sessionCommit.MergeBase(parentCommit)
	if err != nil {
		return MergeResult{}, fmt.Errorf("compute merge base: %w: %v", errs.ErrIO, err)
	}
	if len(bases) == 0 {
		return MergeResult{}, fmt.Errorf("no common ancestor between %s and %s: %w", sessionBranch, parentBranch, errs.ErrCorrupt)
	}
	base := bases[0]

	baseTree, err := base.Tree()
	if err != nil {
		return MergeResult{}, fmt.Errorf("load base tree: %w: %v", errs.ErrIO, err)
	}
	sessionTree, err := sessionCommit.Tree()
	if err != nil {
		return MergeResult{}, fmt.Errorf("load session tree: %w: %v", errs.ErrIO, err)
	}
	parentTree, err := parentCommit.Tree()
	if err != nil {
		return MergeResult{}, fmt.Errorf("load parent tree: %w: %v", errs.ErrIO, err)
	}

	sessionChanges, err := baseTree.Diff(sessionTree)
	if err != nil {
		return MergeResult{}, fmt.Errorf("diff base/session: %w: %v", errs.ErrIO, err)
	}
	parentChanges, err := baseTree.Diff(parentTree)
	if err != nil {
		return MergeResult{}, fmt.Errorf("diff base/parent: %w: %v", errs.ErrIO, err)
	}

	touchedBySession := make(map[string]bool, len(sessionChanges))
	for _, c := range sessionChanges {
		if p := changePath(c); p != "" {
			touchedBySession[p] = true
		}
	}

	var conflicts []string
	for _, c := range parentChanges {
		p := changePath(c)
		if p == "" || !touchedBySession[p] || isInternalStatePath(p) {
			continue
		}
		conflicts = append(conflicts, p)
		if len(conflicts) >= 5 {
			break
		}
	}

	if len(conflicts) > 0 && failOnConflict {
		return MergeResult{}, &errs.MergeConflictError{Paths: conflicts}
	}
	return MergeResult{ConflictingPaths: conflicts}, nil
}

// isInternalStatePath excludes the core's own on-disk state from conflict
// reporting; a diff under .schaltwerk/** is never a user-visible conflict.
func isInternalStatePath(p string) bool {
	const prefix = ".schaltwerk/"
	return len(p) >= len(prefix) && p[:len(prefix)] == prefix
}

func changePath(c object.Change) string {
	if c.To.Name != "" {
		return c.To.Name
	}
	return c.From.Name
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to)
// descendant, used for the fast-forward guard and "is up to date" checks.
func IsAncestor(f *Facade, ancestor, descendant *object.Commit) bool {
	if ancestor.Hash == descendant.Hash {
		return true
	}
	isAncestor, err := ancestor.IsAncestor(descendant)
	if err != nil {
		return false
	}
	return isAncestor
}

// SetTarget force-updates ref to point at hash without touching the
// working tree, the plumbing primitive behind fast-forwarding a branch
// and retargeting a session's HEAD after squash.
func (f *Facade) SetTarget(refName string, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(refName), hash)
	if err := f.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set %s to %s: %w: %v", refName, hash, errs.ErrIO, err)
	}
	return nil
}

// CheckoutHead refreshes the working tree onto branch, but only when HEAD
// is already a branch ref named branch — it never switches HEAD to a
// branch the caller isn't already on. This mirrors fast-forwarding a
// branch whose worktree happens to have it checked out: refs for any
// other branch are updated by the caller without ever touching that
// branch's own working tree. It also honors the §4.2 safety rule: if the
// worktree has tracked changes, the working-tree checkout is skipped.
// Untracked files are always preserved (go-git's Checkout never removes
// untracked files that are not check-out targets).
func (f *Facade) CheckoutHead(branch string) error {
	current, err := f.GetCurrentBranch()
	if err != nil {
		return err
	}
	if current != branch {
		return nil
	}

	status, err := f.GetUncommittedChangesStatus()
	if err != nil {
		return err
	}
	if status.HasTrackedChanges {
		return nil
	}
	wt, err := f.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
		return fmt.Errorf("checkout %s: %w: %v", branch, errs.ErrIO, err)
	}
	return nil
}

// SwitchBranch unconditionally moves HEAD and the working tree onto
// branch, creating the local branch ref at branch's current commit if it
// doesn't already exist. Unlike CheckoutHead, which only ever refreshes a
// branch the worktree is already on, this is the active "move to a
// different branch" primitive the GitHub CLI collaborator needs when it
// retargets a worktree still sitting on the project's default branch.
func (f *Facade) SwitchBranch(branch string) error {
	if err := f.EnsureBranchAtHead(branch); err != nil {
		return err
	}
	wt, err := f.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
		return fmt.Errorf("checkout %s: %w: %v", branch, errs.ErrIO, err)
	}
	return nil
}

// FastForward reports whether newHash is a descendant of currentHash, the
// guard every ref-advancing operation must pass before writing.
func (f *Facade) FastForward(currentHash, newHash plumbing.Hash) (bool, error) {
	if currentHash == newHash {
		return true, nil
	}
	current, err := f.repo.CommitObject(currentHash)
	if err != nil {
		return false, fmt.Errorf("load %s: %w: %v", currentHash, errs.ErrIO, err)
	}
	next, err := f.repo.CommitObject(newHash)
	if err != nil {
		return false, fmt.Errorf("load %s: %w: %v", newHash, errs.ErrIO, err)
	}
	return IsAncestor(f, current, next), nil
}
