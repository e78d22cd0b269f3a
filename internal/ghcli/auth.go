package ghcli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
)

// AuthStatus reports whether `gh` is authenticated and, if so, as whom.
type AuthStatus struct {
	Authenticated bool
	Login         string
}

// RepositoryInfo is the subset of `gh repo view` this collaborator needs.
type RepositoryInfo struct {
	NameWithOwner string
	DefaultBranch string
}

// EnsureInstalled runs `gh --version` and maps a missing binary to
// errs.GitHubCLINotInstalled.
func (c *Client) EnsureInstalled(ctx context.Context) error {
	out, err := c.runner.Run(ctx, "", nil, c.program, "--version")
	if err != nil {
		return mapRunErr(err)
	}
	if !out.Success() {
		return commandFailure(c.program, []string{"--version"}, out)
	}
	return nil
}

// CheckAuth runs `gh auth status` and, if authenticated, `gh api user` to
// resolve the logged-in account.
func (c *Client) CheckAuth(ctx context.Context) (AuthStatus, error) {
	out, err := c.runner.Run(ctx, "", promptDisabledEnv, c.program, "auth", "status", "--hostname", "github.com")
	if err != nil {
		return AuthStatus{}, mapRunErr(err)
	}
	if !out.Success() {
		return AuthStatus{Authenticated: false}, nil
	}

	login, err := c.currentLogin(ctx)
	if err != nil {
		return AuthStatus{Authenticated: true}, nil
	}
	return AuthStatus{Authenticated: true, Login: login}, nil
}

func (c *Client) currentLogin(ctx context.Context) (string, error) {
	out, err := c.runner.Run(ctx, "", promptDisabledEnv, c.program, "api", "user")
	if err != nil {
		return "", mapRunErr(err)
	}
	if !out.Success() {
		return "", commandFailure(c.program, []string{"api", "user"}, out)
	}
	var payload struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal([]byte(stripANSI(out.Stdout)), &payload); err != nil {
		return "", &errs.GitHubCLIError{Kind: errs.GitHubCLIInvalidOutput, Err: err}
	}
	return payload.Login, nil
}

// ViewRepository resolves the owner/repo slug and default branch of the
// project at projectPath, after confirming it has a remote to ask about.
func (c *Client) ViewRepository(ctx context.Context, projectPath string) (RepositoryInfo, error) {
	if err := ensureRemoteExists(projectPath); err != nil {
		return RepositoryInfo{}, err
	}

	args := []string{"repo", "view", "--json", "nameWithOwner,defaultBranchRef"}
	out, err := c.runner.Run(ctx, projectPath, promptDisabledEnv, c.program, args...)
	if err != nil {
		return RepositoryInfo{}, mapRunErr(err)
	}
	if !out.Success() {
		return RepositoryInfo{}, commandFailure(c.program, args, out)
	}

	var payload struct {
		NameWithOwner   string `json:"nameWithOwner"`
		DefaultBranchRef struct {
			Name string `json:"name"`
		} `json:"defaultBranchRef"`
	}
	clean := stripANSI(out.Stdout)
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &payload); err != nil {
		return RepositoryInfo{}, &errs.GitHubCLIError{Kind: errs.GitHubCLIInvalidOutput, Err: err}
	}
	return RepositoryInfo{NameWithOwner: payload.NameWithOwner, DefaultBranch: payload.DefaultBranchRef.Name}, nil
}

func ensureRemoteExists(projectPath string) error {
	f, err := gitfacade.Open(projectPath)
	if err != nil {
		return err
	}
	if !f.HasRemote() {
		return &errs.GitHubCLIError{Kind: errs.GitHubCLINoRemote}
	}
	return nil
}
