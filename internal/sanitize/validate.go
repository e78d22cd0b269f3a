package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Validation errors.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidSessionName indicates a session name fails the
	// letters/digits/-/_ rule from the data model.
	ErrInvalidSessionName = errors.New("invalid session name")
)

// sessionNamePattern implements the data model's session name rule:
// letters, digits, hyphen, underscore; 1-64 characters.
var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ErrInvalidBranchName indicates a custom branch name fails git's
// reference-name rules (a conservative subset is enforced, not the full
// git-check-ref-format grammar).
var ErrInvalidBranchName = errors.New("invalid branch name")

var invalidBranchChars = regexp.MustCompile(`[\x00-\x1f\x7f ~^:?*\[\\]`)

// ValidateBranchName rejects the branch-name forms git itself rejects:
// empty, leading/trailing/doubled slashes, ".." sequences, a trailing
// ".lock", or any of the control/glob characters git-check-ref-format
// disallows.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBranchName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidBranchName, name)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return fmt.Errorf("%w: %q has an empty path component", ErrInvalidBranchName, name)
	}
	if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: %q ends with a reserved suffix", ErrInvalidBranchName, name)
	}
	if invalidBranchChars.MatchString(name) {
		return fmt.Errorf("%w: %q contains a disallowed character", ErrInvalidBranchName, name)
	}
	return nil
}

// ValidateSessionName checks a session name against the data model's
// uniqueness-eligible character set. It does not check uniqueness;
// callers must do that under the per-project repository lock.
func ValidateSessionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSessionName)
	}
	if !sessionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must contain only letters, digits, '-', '_' and be at most 64 characters", ErrInvalidSessionName, name)
	}
	return nil
}

// ValidatePath checks a path for directory traversal and, if allowedRoot
// is non-empty, confirms the resolved absolute path stays within it.
// Used before the Git Facade touches a worktree_path derived from
// user-controlled input.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("%w: resolves to traversal", ErrPathTraversal)
	}

	absPath := cleanPath
	if !filepath.IsAbs(cleanPath) {
		var err error
		absPath, err = filepath.Abs(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
	}

	if strings.Contains(absPath, "..") {
		return "", fmt.Errorf("%w: absolute path contains traversal", ErrPathTraversal)
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}

		rel, err := filepath.Rel(absRoot, absPath)
		if err != nil {
			return "", fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
		}
		if strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}

	return absPath, nil
}

// SafeBasename returns the base name of a path after validating it, a
// secure replacement for filepath.Base on untrusted input such as a
// project path supplied over the HTTP control surface.
func SafeBasename(path string) (string, error) {
	cleanPath, err := ValidatePath(path, "")
	if err != nil {
		return "", err
	}

	base := filepath.Base(cleanPath)
	if base == "" || base == "." || base == "/" || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid path base", ErrPathTraversal)
	}

	return base, nil
}
