package control

import (
	"context"
	"strconv"
	"strings"

	"github.com/schaltwerk/schaltwerk-core/internal/ghcli"
	"github.com/schaltwerk/schaltwerk-core/internal/project"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

// createPullRequestForSession drives the GitHub CLI collaborator for one
// session and persists the resulting PR number/URL on its row. Shared by
// the HTTP handler and the in-process command so both entry points do
// exactly the same thing.
func createPullRequestForSession(ctx context.Context, core *project.Core, sess *store.Session) (PullRequestDTO, error) {
	result, err := core.GHCli.CreatePullRequest(ctx, ghcli.PullRequestOptions{
		RepoPath:      core.Path,
		WorktreePath:  sess.WorktreePath,
		SessionSlug:   sess.Name,
		DefaultBranch: sess.ParentBranch,
		Repository:    core.Config.GitHubRepo,
	})
	if err != nil {
		return PullRequestDTO{}, err
	}

	number := parsePRNumber(result.URL)
	if err := core.Store.SetSessionPullRequest(ctx, sess.ID, number, result.URL); err != nil {
		return PullRequestDTO{}, err
	}
	return PullRequestDTO{Branch: result.Branch, URL: result.URL, Number: number}, nil
}

// parsePRNumber extracts the trailing PR number from a
// "https://github.com/owner/repo/pull/123" URL; 0 if it can't.
func parsePRNumber(url string) int {
	const marker = "/pull/"
	idx := strings.LastIndex(url, marker)
	if idx < 0 {
		return 0
	}
	numStr := strings.TrimRight(url[idx+len(marker):], "/")
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0
	}
	return n
}
