// Package worktree creates and removes linked git worktrees by hand.
//
// go-git's public API has no equivalent of `git worktree add`: it can
// open a repository and check out a branch into its working tree, but it
// has no notion of several working trees sharing one object database.
// This package replicates the on-disk layout the git CLI itself uses for
// linked worktrees — a `<repo>/.git/worktrees/<name>/` administrative
// directory holding that worktree's own HEAD plus pointers back to the
// shared object/ref store, and a `.git` file in the worktree directory
// pointing at that administrative directory — and then opens the
// worktree as its own *git.Repository via
// git.PlainOpenWithOptions(..., EnableDotGitCommonDir: true), which reads
// exactly this layout. The result is indistinguishable on disk from a
// worktree `git worktree add` would have created.
package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
)

// CreateWorktreeFromBase creates branch (from base, if it doesn't already
// exist) and a linked worktree checking it out at worktreePath, as one
// logical operation. If branch already exists, it is used as-is and base
// is ignored, matching `git worktree add` semantics for an existing
// branch.
func CreateWorktreeFromBase(repoPath, branch, worktreePath, base string) error {
	f, err := gitfacade.Open(repoPath)
	if err != nil {
		return err
	}

	if !f.BranchExists(branch) {
		hash, err := resolveRevision(f, base)
		if err != nil {
			return fmt.Errorf("resolve base %s: %w", base, err)
		}
		if err := f.SetTarget(branch, hash); err != nil {
			return err
		}
	} else if inUse, err := branchCheckedOutElsewhere(repoPath, branch, ""); err != nil {
		return err
	} else if inUse {
		return fmt.Errorf("branch %s: %w", branch, errs.ErrBranchInUse)
	}

	if err := os.MkdirAll(worktreePath, 0o755); err != nil {
		return fmt.Errorf("create worktree dir: %w: %v", errs.ErrIO, err)
	}

	adminDir, err := newAdminDir(repoPath, worktreePath)
	if err != nil {
		return err
	}

	if err := writeAdminFiles(repoPath, adminDir, worktreePath, branch); err != nil {
		return err
	}

	repo, err := openLinked(worktreePath)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}); err != nil {
		return fmt.Errorf("checkout %s into %s: %w: %v", branch, worktreePath, errs.ErrIO, err)
	}
	return nil
}

// UpdateWorktreeBranch retargets an existing worktree's HEAD at a
// different (already existing) branch.
func UpdateWorktreeBranch(worktreePath, newBranch string) error {
	repo, err := openLinked(worktreePath)
	if err != nil {
		return err
	}
	if _, err := repo.Reference(plumbing.NewBranchReferenceName(newBranch), false); err != nil {
		return fmt.Errorf("resolve %s: %w", newBranch, errs.ErrRefNotFound)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree handle: %w: %v", errs.ErrIO, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(newBranch)}); err != nil {
		return fmt.Errorf("checkout %s into %s: %w: %v", newBranch, worktreePath, errs.ErrIO, err)
	}
	return nil
}

// RemoveWorktree prunes a worktree's administrative state and deletes its
// directory. It succeeds even if worktreePath is already gone, which
// happens when a user or an external tool deleted it out from under the
// core.
func RemoveWorktree(repoPath, worktreePath string) error {
	adminDir, found, err := findAdminDir(repoPath, worktreePath)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(worktreePath); err != nil {
		return fmt.Errorf("remove worktree dir: %w: %v", errs.ErrIO, err)
	}

	if found {
		if err := os.RemoveAll(adminDir); err != nil {
			return fmt.Errorf("remove worktree admin state: %w: %v", errs.ErrIO, err)
		}
	}
	return nil
}

func openLinked(worktreePath string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(worktreePath, &git.PlainOpenOptions{
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open worktree %s: %w: %v", worktreePath, errs.ErrWorktreeMissing, err)
	}
	return repo, nil
}

func resolveRevision(f *gitfacade.Facade, base string) (plumbing.Hash, error) {
	normalized := f.NormalizeBranchToLocal(base)
	if ref, err := f.Repository().Reference(plumbing.NewBranchReferenceName(normalized), false); err == nil {
		return ref.Hash(), nil
	}
	hash, err := f.Repository().ResolveRevision(plumbing.Revision(normalized))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%s does not resolve to a commit: %w", base, errs.ErrRefNotFound)
	}
	return *hash, nil
}

// newAdminDir picks a collision-free name for <repo>/.git/worktrees/<name>
// derived from the worktree's basename.
func newAdminDir(repoPath, worktreePath string) (string, error) {
	gitDir, err := mainGitDir(repoPath)
	if err != nil {
		return "", err
	}
	base := filepath.Base(worktreePath)
	candidate := filepath.Join(gitDir, "worktrees", base)
	for i := 2; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = filepath.Join(gitDir, "worktrees", fmt.Sprintf("%s-%d", base, i))
	}
}

func mainGitDir(repoPath string) (string, error) {
	gitDir := filepath.Join(repoPath, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w: %v", gitDir, errs.ErrRepoNotFound, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory (nested worktrees are not supported): %w", gitDir, errs.ErrUnsupported)
	}
	return gitDir, nil
}

func writeAdminFiles(repoPath, adminDir, worktreePath, branch string) error {
	if err := os.MkdirAll(adminDir, 0o755); err != nil {
		return fmt.Errorf("create admin dir: %w: %v", errs.ErrIO, err)
	}

	headContent := fmt.Sprintf("ref: refs/heads/%s\n", branch)
	if err := os.WriteFile(filepath.Join(adminDir, "HEAD"), []byte(headContent), 0o644); err != nil {
		return fmt.Errorf("write worktree HEAD: %w: %v", errs.ErrIO, err)
	}

	gitDir, err := mainGitDir(repoPath)
	if err != nil {
		return err
	}
	commonDirRel, err := filepath.Rel(adminDir, gitDir)
	if err != nil {
		return fmt.Errorf("compute commondir: %w: %v", errs.ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(adminDir, "commondir"), []byte(commonDirRel+"\n"), 0o644); err != nil {
		return fmt.Errorf("write commondir: %w: %v", errs.ErrIO, err)
	}

	worktreeGitDir := filepath.Join(worktreePath, ".git")
	if err := os.WriteFile(filepath.Join(adminDir, "gitdir"), []byte(worktreeGitDir+"\n"), 0o644); err != nil {
		return fmt.Errorf("write gitdir: %w: %v", errs.ErrIO, err)
	}

	pointer := fmt.Sprintf("gitdir: %s\n", adminDir)
	if err := os.WriteFile(worktreeGitDir, []byte(pointer), 0o644); err != nil {
		return fmt.Errorf("write worktree .git pointer: %w: %v", errs.ErrIO, err)
	}
	return nil
}

// findAdminDir locates the <repo>/.git/worktrees/<name> directory
// belonging to worktreePath by reading each candidate's gitdir pointer,
// so removal works even after the worktree directory itself is gone.
func findAdminDir(repoPath, worktreePath string) (string, bool, error) {
	gitDir, err := mainGitDir(repoPath)
	if err != nil {
		return "", false, nil
	}
	worktreesRoot := filepath.Join(gitDir, "worktrees")
	entries, err := os.ReadDir(worktreesRoot)
	if err != nil {
		return "", false, nil
	}

	wantGitFile := filepath.Join(worktreePath, ".git")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(worktreesRoot, e.Name())
		pointerBytes, err := os.ReadFile(filepath.Join(candidate, "gitdir"))
		if err != nil {
			continue
		}
		pointer := strings.TrimSpace(string(pointerBytes))
		if pointer == wantGitFile {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// IsBranchCheckedOutElsewhere reports whether branch is currently checked
// out by any linked worktree of repoPath. Used before binding an existing
// branch to a new session, so two sessions never share one branch.
func IsBranchCheckedOutElsewhere(repoPath, branch string) (bool, error) {
	return branchCheckedOutElsewhere(repoPath, branch, "")
}

// branchCheckedOutElsewhere reports whether branch is the current HEAD of
// any linked worktree other than excludeWorktree.
func branchCheckedOutElsewhere(repoPath, branch, excludeWorktree string) (bool, error) {
	gitDir, err := mainGitDir(repoPath)
	if err != nil {
		return false, err
	}
	worktreesRoot := filepath.Join(gitDir, "worktrees")
	entries, err := os.ReadDir(worktreesRoot)
	if err != nil {
		return false, nil
	}

	want := fmt.Sprintf("ref: refs/heads/%s\n", branch)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		adminDir := filepath.Join(worktreesRoot, e.Name())
		headBytes, err := os.ReadFile(filepath.Join(adminDir, "HEAD"))
		if err != nil {
			continue
		}
		if string(headBytes) != want {
			continue
		}
		gitdirBytes, err := os.ReadFile(filepath.Join(adminDir, "gitdir"))
		if err == nil {
			wtPath := filepath.Dir(strings.TrimSpace(string(gitdirBytes)))
			if wtPath == excludeWorktree {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}
