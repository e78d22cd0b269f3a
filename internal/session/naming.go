package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/schaltwerk/schaltwerk-core/internal/sanitize"
)

const randomSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// generateRandomSuffix returns n lowercase-alphanumeric characters, used
// to disambiguate a custom branch name that already exists.
func generateRandomSuffix(n int) (string, error) {
	out := make([]byte, n)
	bound := big.NewInt(int64(len(randomSuffixAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, bound)
		if err != nil {
			return "", fmt.Errorf("generate random suffix: %w", err)
		}
		out[i] = randomSuffixAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// worktreesRoot is the project-relative directory all session worktrees
// live under.
func worktreesRoot(repoPath string) string {
	return filepath.Join(repoPath, ".schaltwerk", "worktrees")
}

// specsRoot is the project-relative directory spec markdown is
// conceptually rooted under for display purposes (specs have no
// worktree of their own).
func specsRoot(repoPath string) string {
	return filepath.Join(repoPath, ".schaltwerk", "specs")
}

// findUniqueSessionPaths derives (name, branch, worktree_path) for a
// session created without a custom branch: the name is used as-is (its
// uniqueness among live sessions/specs was already checked under the
// repo lock by the caller), the branch is the configured prefix plus a
// sanitized identifier, and the worktree path is namespaced under
// worktreesRoot by that same name.
func (m *Manager) findUniqueSessionPaths(name string) (uniqueName, branch, worktreePath string) {
	branch = sanitize.BranchName(m.cfg.BranchPrefix, name)
	worktreePath = filepath.Join(worktreesRoot(m.repoPath), name)
	return name, branch, worktreePath
}

// resolveCustomBranch appends a short random suffix to customBranch if
// that branch name is already taken, so use_existing_branch callers
// never collide with an in-flight session reusing the same branch.
func resolveCustomBranch(exists bool, customBranch string) (string, error) {
	if !exists {
		return customBranch, nil
	}
	suffix, err := generateRandomSuffix(4)
	if err != nil {
		return "", err
	}
	return customBranch + "-" + suffix, nil
}
