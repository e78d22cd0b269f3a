package ghcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/sanitize"
)

// commitAuthorName and commitAuthorEmail sign the commit this
// collaborator creates when a worktree has uncommitted changes at PR
// time. Kept local rather than imported from internal/session so this
// package has no dependency on the session manager.
const (
	commitAuthorName  = "schaltwerk"
	commitAuthorEmail = "schaltwerk@localhost"
)

// PullRequestOptions describes one create-PR-from-worktree request.
type PullRequestOptions struct {
	// RepoPath is the main repository, checked for a configured remote
	// before anything else runs.
	RepoPath string
	// WorktreePath is the session's worktree: where the current branch,
	// any uncommitted changes, and the push originate.
	WorktreePath string
	SessionSlug  string
	DefaultBranch string
	// CommitMessage overrides the default "review: <slug>" message used
	// when committing uncommitted changes before pushing.
	CommitMessage string
	// Repository is an explicit "owner/repo" passed to `gh` via --repo;
	// empty lets gh infer it from the worktree's remote.
	Repository string
}

// PullRequestResult is what a caller persists against the session row.
type PullRequestResult struct {
	Branch string
	URL    string
}

// CreatePullRequest implements the "prepare worktree, push, open PR" flow:
// if the worktree is still on the project's default branch it first moves
// to a dedicated "reviewed/<slug>" branch (a session normally already has
// its own branch, so this only matters for specs/edge cases launched
// directly on the default branch), commits any uncommitted changes, pushes,
// and asks `gh` to create the PR — falling back to an existing PR for the
// same branch if creation fails.
func (c *Client) CreatePullRequest(ctx context.Context, opts PullRequestOptions) (PullRequestResult, error) {
	if err := ensureRemoteExists(opts.RepoPath); err != nil {
		return PullRequestResult{}, err
	}

	wt, err := gitfacade.Open(opts.WorktreePath)
	if err != nil {
		return PullRequestResult{}, err
	}

	currentBranch, err := wt.GetCurrentBranch()
	if err != nil {
		return PullRequestResult{}, err
	}
	targetBranch := currentBranch

	if currentBranch == opts.DefaultBranch {
		targetBranch = "reviewed/" + sanitize.Identifier(opts.SessionSlug)
		if err := wt.SwitchBranch(targetBranch); err != nil {
			return PullRequestResult{}, err
		}
	}

	commitMessage := strings.TrimSpace(opts.CommitMessage)
	if commitMessage == "" {
		commitMessage = fmt.Sprintf("review: %s", opts.SessionSlug)
	}
	dirty, err := wt.HasUncommittedChanges()
	if err != nil {
		return PullRequestResult{}, err
	}
	if dirty {
		if _, err := wt.CommitAllChanges(commitMessage, commitAuthorName, commitAuthorEmail); err != nil {
			return PullRequestResult{}, err
		}
	}

	if err := c.pushBranch(ctx, opts.WorktreePath, targetBranch); err != nil {
		return PullRequestResult{}, err
	}

	url, err := c.createPullRequest(ctx, targetBranch, opts.Repository, opts.WorktreePath)
	if err != nil {
		return PullRequestResult{}, err
	}
	return PullRequestResult{Branch: targetBranch, URL: url}, nil
}

// pushBranch pushes the current branch, retrying with an explicit
// upstream the first time a session branch has never been pushed before.
func (c *Client) pushBranch(ctx context.Context, worktreePath, branch string) error {
	env := []string{"GIT_TERMINAL_PROMPT=0"}

	out, err := c.runner.Run(ctx, worktreePath, env, "git", "push")
	if err != nil {
		return mapRunErr(err)
	}
	if out.Success() {
		return nil
	}

	retryArgs := []string{"push", "--set-upstream", "origin", branch}
	retryOut, err := c.runner.Run(ctx, worktreePath, env, "git", retryArgs...)
	if err != nil {
		return mapRunErr(err)
	}
	if retryOut.Success() {
		return nil
	}
	return commandFailure("git", retryArgs, retryOut)
}

func (c *Client) createPullRequest(ctx context.Context, branch, repository, worktreePath string) (string, error) {
	args := []string{"pr", "create", "--fill", "--web", "--head", branch}
	if repository != "" {
		args = append(args, "--repo", repository)
	}

	out, err := c.runner.Run(ctx, worktreePath, promptDisabledEnv, c.program, args...)
	if err != nil {
		return "", mapRunErr(err)
	}
	if !out.Success() {
		if url, viewErr := c.viewExistingPR(ctx, branch, repository, worktreePath); viewErr == nil && url != "" {
			return url, nil
		}
		return "", commandFailure(c.program, args, out)
	}

	combined := combineOutput(out)
	if url := extractPRURL(combined); url != "" {
		return url, nil
	}
	// --web opened a browser tab with no URL printed to stdout/stderr.
	return "", nil
}

func (c *Client) viewExistingPR(ctx context.Context, branch, repository, worktreePath string) (string, error) {
	args := []string{"pr", "view", branch, "--json", "url"}
	if repository != "" {
		args = append(args, "--repo", repository)
	}

	out, err := c.runner.Run(ctx, worktreePath, promptDisabledEnv, c.program, args...)
	if err != nil {
		return "", mapRunErr(err)
	}
	if !out.Success() {
		return "", nil
	}

	var payload struct {
		URL string `json:"url"`
	}
	clean := strings.TrimSpace(stripANSI(out.Stdout))
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return "", &errs.GitHubCLIError{Kind: errs.GitHubCLIInvalidOutput, Err: err}
	}
	return payload.URL, nil
}
