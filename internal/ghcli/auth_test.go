package ghcli

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
)

func TestEnsureInstalledSuccess(t *testing.T) {
	r := newFakeRunner()
	r.on(Output{ExitCode: 0, Stdout: "gh version 2.50.0"}, nil, "gh", "--version")
	c := newWithRunner(r)
	require.NoError(t, c.EnsureInstalled(context.Background()))
}

func TestEnsureInstalledNotFound(t *testing.T) {
	r := newFakeRunner()
	r.on(Output{}, &exec.Error{Name: "gh", Err: exec.ErrNotFound}, "gh", "--version")
	c := newWithRunner(r)
	err := c.EnsureInstalled(context.Background())
	require.Error(t, err)
	var ghErr *errs.GitHubCLIError
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, errs.GitHubCLINotInstalled, ghErr.Kind)
}

func TestCheckAuthAuthenticated(t *testing.T) {
	r := newFakeRunner()
	r.on(Output{ExitCode: 0}, nil, "gh", "auth", "status", "--hostname", "github.com")
	r.on(Output{ExitCode: 0, Stdout: `{"login":"octocat"}`}, nil, "gh", "api", "user")
	c := newWithRunner(r)

	status, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "octocat", status.Login)
}

func TestCheckAuthNotAuthenticated(t *testing.T) {
	r := newFakeRunner()
	r.on(Output{ExitCode: 1}, nil, "gh", "auth", "status", "--hostname", "github.com")
	c := newWithRunner(r)

	status, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
	assert.Empty(t, status.Login)
}

func TestCheckAuthRunnerError(t *testing.T) {
	r := newFakeRunner()
	r.on(Output{}, errors.New("boom"), "gh", "auth", "status", "--hostname", "github.com")
	c := newWithRunner(r)

	_, err := c.CheckAuth(context.Background())
	require.Error(t, err)
}

func TestViewRepositoryNoRemote(t *testing.T) {
	dir := t.TempDir()
	_, err := initBareLikeRepo(dir)
	require.NoError(t, err)

	c := newWithRunner(newFakeRunner())
	_, err = c.ViewRepository(context.Background(), dir)
	require.Error(t, err)
	var ghErr *errs.GitHubCLIError
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, errs.GitHubCLINoRemote, ghErr.Kind)
}
