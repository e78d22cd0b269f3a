package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/project"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	repoPath := t.TempDir()
	f, err := gitfacade.InitRepository(repoPath)
	require.NoError(t, err)
	require.NoError(t, f.CreateInitialCommit("main", "Test", "test@example.com"))

	registry := project.NewRegistry(nil, session.NoopEmitter{})
	t.Cleanup(func() { _ = registry.Close() })

	srv := NewServer(registry, nil, repoPath)
	return srv, repoPath
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleListSessions_Empty(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Empty(t, sessions)
}

func TestHandleCreateSession_ThenListAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "alpha"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "alpha", created.Name)
	require.Equal(t, "active", created.Status)

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, created.ID, fetched.ID)

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/alpha", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetSession_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/sessions/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMarkAndUnmarkReady(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "beta"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(t, srv, http.MethodPost, "/api/sessions/beta/mark-reviewed", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/beta", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.True(t, fetched.ReadyToMerge)

	rec = doRequest(t, srv, http.MethodPost, "/api/sessions/beta/unmark-reviewed", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleSpecLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/specs", CreateSpecRequest{Name: "gamma", Content: "draft content"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var spec SpecDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	require.Equal(t, "gamma", spec.Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/specs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var specs []SpecDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &specs))
	require.Len(t, specs, 1)

	rec = doRequest(t, srv, http.MethodPatch, "/api/specs/gamma", UpdateSpecRequest{Content: "revised content"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/specs/gamma", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	require.Equal(t, "revised content", spec.Content)

	rec = doRequest(t, srv, http.MethodDelete, "/api/specs/gamma", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/specs/gamma", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSetupScript(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/project/setup-script", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto SetupScriptDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	require.Empty(t, dto.SetupScript)

	rec = doRequest(t, srv, http.MethodPut, "/api/project/setup-script", SetupScriptDTO{SetupScript: "npm install"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/project/setup-script", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	require.Equal(t, "npm install", dto.SetupScript)
}

func TestHandleDiffSummaryAndFile(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "delta"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	require.NoError(t, os.WriteFile(filepath.Join(created.WorktreePath, "new.txt"), []byte("hello\nworld\n"), 0o644))
	wf, err := gitfacade.Open(created.WorktreePath)
	require.NoError(t, err)
	_, err = wf.CommitAllChanges("add new.txt", "Test", "test@example.com")
	require.NoError(t, err)

	rec = doRequest(t, srv, http.MethodGet, "/api/diff/summary?session=delta", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary DiffSummaryDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Len(t, summary.Files, 1)
	require.Equal(t, "new.txt", summary.Files[0].Path)
	require.False(t, summary.HasMore)

	rec = doRequest(t, srv, http.MethodGet, "/api/diff/file?session=delta&path=new.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fileDiff DiffFileDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fileDiff))
	require.NotEmpty(t, fileDiff.Lines)
}

func TestHandleDiffFile_MissingPath(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "epsilon"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/diff/file?session=epsilon", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectAffinityHeaderRoutesToDifferentProject(t *testing.T) {
	srv, defaultPath := newTestServer(t)

	otherPath := t.TempDir()
	f, err := gitfacade.InitRepository(otherPath)
	require.NoError(t, err)
	require.NoError(t, f.CreateInitialCommit("main", "Test", "test@example.com"))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(mustJSON(t, CreateSessionRequest{Name: "cross-project"})))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(projectAffinityHeader, otherPath)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions", nil)
	var defaultSessions []SessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defaultSessions))
	require.Empty(t, defaultSessions, "session created under X-Project-Path must not leak into the default project %q", defaultPath)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandlePreparePR(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "eta"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/sessions/eta/prepare-pr", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandleCreatePullRequest_NoRemote(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "theta"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/sessions/theta/pull-request", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWebhookFollowUpMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", CreateSessionRequest{Name: "zeta"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/webhook/follow-up-message", map[string]string{
		"session": "zeta",
		"message": "keep going",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
}
