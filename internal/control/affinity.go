package control

import (
	"context"

	"github.com/labstack/echo/v4"
)

// projectPathCtxKey scopes the X-Project-Path override to one request's
// context.Context, rather than a process-wide mutable cell: two
// concurrent requests for different projects must never see each
// other's override.
type projectPathCtxKey struct{}

// WithProjectPath attaches a project path override to ctx.
func WithProjectPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, projectPathCtxKey{}, path)
}

// ProjectPathFromContext returns the request-scoped project path
// override, if one was set.
func ProjectPathFromContext(ctx context.Context) (string, bool) {
	path, ok := ctx.Value(projectPathCtxKey{}).(string)
	return path, ok && path != ""
}

// projectAffinityHeader is read by every HTTP handler that needs to
// operate on a project other than the server's default, letting one MCP
// bridge process address multiple open projects.
const projectAffinityHeader = "X-Project-Path"

// projectAffinityMiddleware reads X-Project-Path off the request, if
// present, and installs it into the request's context for the handler
// to consult via ProjectPathFromContext.
func projectAffinityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if path := c.Request().Header.Get(projectAffinityHeader); path != "" {
				ctx := WithProjectPath(c.Request().Context(), path)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}
