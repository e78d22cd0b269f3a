// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	// Project context: which repository this operation is scoped to.
	if proj := ProjectFromContext(ctx); proj != nil {
		fields = append(fields,
			zap.String("project.path", proj.Path),
			zap.String("project.repo", proj.RepoName),
		)
	}

	// Session context
	if sessionName := SessionNameFromContext(ctx); sessionName != "" {
		fields = append(fields, zap.String("session.name", sessionName))
	}

	// Request ID
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// Context key types
type projectCtxKey struct{}
type sessionCtxKey struct{}
type requestCtxKey struct{}

// ProjectRef identifies the repository an operation is scoped to. This is
// the correlation payload attached to every log line emitted while
// handling a request for a given project, alongside the session name and
// request ID when those are set.
type ProjectRef struct {
	Path     string
	RepoName string
}

// Validation constants
const (
	maxProjectFieldLen = 4096 // filesystem paths can be long; IDs cannot
	maxIDLen           = 128
)

var (
	// idPattern allows alphanumeric, hyphen, underscore.
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateProjectField(field, name string) error {
	if field == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(field) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(field) > maxProjectFieldLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxProjectFieldLen)
	}
	return nil
}

// validateID validates a session or request ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// ProjectFromContext extracts the project reference from context.
func ProjectFromContext(ctx context.Context) *ProjectRef {
	if p, ok := ctx.Value(projectCtxKey{}).(*ProjectRef); ok {
		return p
	}
	return nil
}

// WithProject adds a project reference to context.
// Panics if proj is nil or contains invalid field values.
func WithProject(ctx context.Context, proj *ProjectRef) context.Context {
	if proj == nil {
		panic("logging: project cannot be nil")
	}
	if err := validateProjectField(proj.Path, "project.Path"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, projectCtxKey{}, proj)
}

// SessionNameFromContext extracts the session name from context.
func SessionNameFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSessionName adds a session name to context.
// Panics if sessionName is empty or contains invalid characters.
func WithSessionName(ctx context.Context, sessionName string) context.Context {
	if err := validateID(sessionName, "sessionName"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionName)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
