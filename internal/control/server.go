package control

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/errs"
	"github.com/schaltwerk/schaltwerk-core/internal/gitfacade"
	"github.com/schaltwerk/schaltwerk-core/internal/logging"
	"github.com/schaltwerk/schaltwerk-core/internal/merge"
	"github.com/schaltwerk/schaltwerk-core/internal/project"
	"github.com/schaltwerk/schaltwerk-core/internal/session"
	"github.com/schaltwerk/schaltwerk-core/internal/store"
)

const defaultDiffPageSize = 200

// Server is the loopback HTTP face of the control surface: every route
// resolves the project for the request (the default project, or the one
// named by X-Project-Path) and delegates straight into that project's
// Core. It never holds state of its own beyond the registry.
type Server struct {
	echo     *echo.Echo
	registry *project.Registry
	logger   *logging.Logger
	metrics  *HTTPMetrics

	// defaultProjectPath is used when a request carries no
	// X-Project-Path header, e.g. the single-project desktop case.
	defaultProjectPath string
}

// NewServer builds a Server bound to registry, defaulting unaffinitized
// requests to defaultProjectPath.
func NewServer(registry *project.Registry, logger *logging.Logger, defaultProjectPath string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewHTTPMetrics(logger)

	s := &Server{
		echo:               e,
		registry:           registry,
		logger:             logger,
		metrics:            httpMetrics,
		defaultProjectPath: defaultProjectPath,
	}

	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(projectAffinityMiddleware())
	e.Use(httpMetrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if logger != nil {
				logger.Info(c.Request().Context(), "http request",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Path()),
					zap.Int("status", c.Response().Status),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				)
			}
			return err
		}
	})

	s.registerRoutes()
	return s
}

// Start serves on ln until the listener is closed or ctx is done.
func (s *Server) Start(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutdownCtx)
	}()
	if err := s.echo.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := errs.HTTPStatus(err)
	if httpErr, ok := err.(*echo.HTTPError); ok {
		status = httpErr.Code
	}
	if werr := c.JSON(status, map[string]string{"error": err.Error()}); werr != nil && s.logger != nil {
		s.logger.Warn(c.Request().Context(), "failed to write error response", zap.Error(werr))
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/webhook/session-added", s.handleWebhookSessionAdded)
	s.echo.POST("/webhook/session-removed", s.handleWebhookSessionRemoved)
	s.echo.POST("/webhook/follow-up-message", s.handleWebhookFollowUpMessage)
	s.echo.POST("/webhook/spec-created", s.handleWebhookSpecCreated)

	api := s.echo.Group("/api")

	api.GET("/diff/summary", s.handleDiffSummary)
	api.GET("/diff/file", s.handleDiffFile)

	api.GET("/specs", s.handleListSpecs)
	api.POST("/specs", s.handleCreateSpec)
	api.GET("/specs/:name", s.handleGetSpec)
	api.PATCH("/specs/:name", s.handleUpdateSpec)
	api.DELETE("/specs/:name", s.handleDeleteSpec)
	api.POST("/specs/:name/start", s.handleStartSpec)

	api.GET("/sessions", s.handleListSessions)
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions/:name", s.handleGetSession)
	api.DELETE("/sessions/:name", s.handleCancelSession)
	api.POST("/sessions/:name/merge", s.handleMergeSession)
	api.GET("/sessions/:name/merge-preview", s.handlePreviewMerge)
	api.POST("/sessions/:name/mark-reviewed", s.handleMarkReady)
	api.POST("/sessions/:name/unmark-reviewed", s.handleUnmarkReady)
	api.POST("/sessions/:name/convert-to-spec", s.handleConvertToSpec)
	api.POST("/sessions/:name/pull-request", s.handleCreatePullRequest)
	api.POST("/sessions/:name/prepare-pr", s.handlePreparePR)

	api.GET("/project/setup-script", s.handleGetSetupScript)
	api.PUT("/project/setup-script", s.handleSetSetupScript)
}

// resolveCore resolves the Core for the request's project: the
// X-Project-Path header's value if one was set by the affinity
// middleware, otherwise the server's default project.
func (s *Server) resolveCore(c echo.Context) (*project.Core, error) {
	path := s.defaultProjectPath
	if override, ok := ProjectPathFromContext(c.Request().Context()); ok {
		path = override
	}
	return s.registry.Get(c.Request().Context(), path)
}

func (s *Server) handleListSessions(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	enriched, err := core.Sessions.ListEnrichedSessions(c.Request().Context())
	if err != nil {
		return err
	}
	dtos := make([]SessionDTO, len(enriched))
	for i, es := range enriched {
		dtos[i] = toSessionDTO(es)
	}
	return c.JSON(http.StatusOK, dtos)
}

func (s *Server) handleGetSession(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	enriched, err := core.Sessions.ListEnrichedSessions(c.Request().Context())
	if err != nil {
		return err
	}
	for _, es := range enriched {
		if es.Session.ID == sess.ID {
			return c.JSON(http.StatusOK, toSessionDTO(es))
		}
	}
	return c.JSON(http.StatusOK, toSessionDTO(session.EnrichedSession{Session: sess}))
}

func (s *Server) handleCreateSession(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := core.Sessions.CreateSessionWithAgent(c.Request().Context(), req.toParams())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSessionDTO(session.EnrichedSession{Session: sess}))
}

func (s *Server) handleCancelSession(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	result, err := core.Sessions.CancelSession(c.Request().Context(), sess.ID, session.CancelConfig{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toCancelResultDTO(result))
}

func (s *Server) handleMarkReady(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	if err := core.Sessions.MarkReady(c.Request().Context(), sess.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnmarkReady(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	if err := core.Sessions.Unmark(c.Request().Context(), sess.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleConvertToSpec(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	sp, err := core.Sessions.ConvertToSpec(c.Request().Context(), sess.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSpecDTO(sp))
}

func (s *Server) handleCreatePullRequest(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	dto, err := createPullRequestForSession(c.Request().Context(), core, sess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto)
}

// handlePreparePR never touches git or GitHub itself: it just tells the
// frontend to open its own PR modal for this session, the UI-driven
// alternative to handleCreatePullRequest's backend-driven flow.
func (s *Server) handlePreparePR(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	core.Events.Emit(c.Request().Context(), session.EventPreparePR, map[string]string{"session": sess.Name})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePreviewMerge(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	preview, err := core.Merge.Preview(c.Request().Context(), sess.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPreviewDTO(preview))
}

func (s *Server) handleMergeSession(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.Param("name"))
	if err != nil {
		return err
	}
	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	outcome, err := core.Merge.Merge(c.Request().Context(), sess.Name, merge.Mode(req.Mode), req.CommitMessage)
	if err != nil {
		return err
	}
	if req.CancelAfterMerge {
		if _, cancelErr := core.Sessions.CancelSession(c.Request().Context(), sess.ID, session.CancelConfig{}); cancelErr != nil && s.logger != nil {
			s.logger.Warn(c.Request().Context(), "cancel after merge failed", zap.String("session", sess.Name), zap.Error(cancelErr))
		}
	}
	return c.JSON(http.StatusOK, toMergeResultDTO(outcome))
}

func (s *Server) handleListSpecs(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	specs, err := core.Store.ListSpecs(c.Request().Context())
	if err != nil {
		return err
	}
	dtos := make([]SpecDTO, len(specs))
	for i, sp := range specs {
		dtos[i] = toSpecDTO(sp)
	}
	return c.JSON(http.StatusOK, dtos)
}

func (s *Server) handleGetSpec(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sp, err := core.Store.GetSpecByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSpecDTO(sp))
}

func (s *Server) handleCreateSpec(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var req CreateSpecRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sp := &store.Spec{
		Name:           req.Name,
		DisplayName:    req.Name,
		Content:        req.Content,
		RepositoryPath: core.Path,
		RepositoryName: filepath.Base(core.Path),
	}
	if err := core.Store.CreateSpec(c.Request().Context(), sp); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSpecDTO(sp))
}

func (s *Server) handleUpdateSpec(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sp, err := core.Store.GetSpecByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	var req UpdateSpecRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := core.Store.UpdateSpecContentByID(c.Request().Context(), sp.ID, req.Content, req.Append); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteSpec(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sp, err := core.Store.GetSpecByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	if err := core.Store.DeleteSpec(c.Request().Context(), sp.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStartSpec(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var req StartSpecRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := core.Sessions.StartSpecSession(c.Request().Context(), c.Param("name"), req.DisplayName, session.CreateParams{
		AgentType:       req.AgentType,
		SkipPermissions: req.SkipPermissions,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSessionDTO(session.EnrichedSession{Session: sess}))
}

func (s *Server) handleGetSetupScript(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SetupScriptDTO{SetupScript: core.Config.SetupScript})
}

func (s *Server) handleSetSetupScript(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var req SetupScriptDTO
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	core.Config.SetupScript = req.SetupScript
	if err := saveProjectConfig(core); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDiffSummary(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.QueryParam("session"))
	if err != nil {
		return err
	}
	f, err := gitfacade.Open(sess.WorktreePath)
	if err != nil {
		return err
	}
	files, err := f.DiffSummary(sess.ParentBranch)
	if err != nil {
		return err
	}

	cursor := parseIntOrDefault(c.QueryParam("cursor"), 0)
	pageSize := parseIntOrDefault(c.QueryParam("page_size"), defaultDiffPageSize)
	page, nextCursor, hasMore := paginate(files, cursor, pageSize)

	entries := make([]DiffFileEntryDTO, len(page))
	for i, fd := range page {
		entries[i] = toDiffFileEntryDTO(fd)
	}
	return c.JSON(http.StatusOK, DiffSummaryDTO{Files: entries, NextCursor: nextCursor, HasMore: hasMore})
}

func (s *Server) handleDiffFile(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	sess, err := resolveSession(c.Request().Context(), core, c.QueryParam("session"))
	if err != nil {
		return err
	}
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	f, err := gitfacade.Open(sess.WorktreePath)
	if err != nil {
		return err
	}
	lines, err := f.DiffFile(sess.ParentBranch, path)
	if err != nil {
		return err
	}

	cursor := parseIntOrDefault(c.QueryParam("cursor"), 0)
	lineLimit := parseIntOrDefault(c.QueryParam("line_limit"), defaultDiffPageSize)
	page, nextCursor, hasMore := paginate(lines, cursor, lineLimit)

	dtoLines := make([]DiffLineDTO, len(page))
	for i, l := range page {
		dtoLines[i] = DiffLineDTO{Op: l.Op, Content: l.Content}
	}
	return c.JSON(http.StatusOK, DiffFileDTO{Path: path, Lines: dtoLines, NextCursor: nextCursor, HasMore: hasMore})
}

func (s *Server) handleWebhookSessionAdded(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	core.Events.Emit(c.Request().Context(), session.EventSessionAdded, payload)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleWebhookSessionRemoved(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	core.Events.Emit(c.Request().Context(), session.EventSessionRemoved, payload)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleWebhookFollowUpMessage(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	var payload struct {
		Session string `json:"session"`
		Message string `json:"message"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := resolveSession(c.Request().Context(), core, payload.Session)
	if err != nil {
		return err
	}
	if err := core.Sessions.OnFollowUpMessage(c.Request().Context(), sess.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleWebhookSpecCreated(c echo.Context) error {
	core, err := s.resolveCore(c)
	if err != nil {
		return err
	}
	core.Events.Emit(c.Request().Context(), session.EventSessionsRefresh, nil)
	return c.NoContent(http.StatusAccepted)
}

func parseIntOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// paginate slices items[cursor:cursor+size], reporting the cursor the
// caller should pass next and whether more items remain beyond it.
func paginate[T any](items []T, cursor, size int) ([]T, int, bool) {
	if cursor >= len(items) {
		return nil, 0, false
	}
	end := cursor + size
	if end >= len(items) {
		return items[cursor:], 0, false
	}
	return items[cursor:end], end, true
}
