// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry)
//   - Automatic context field injection (trace_id, project, session, request)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithProject(ctx, &logging.ProjectRef{Path: repoPath, RepoName: "acme-api"})
//	ctx = logging.WithSessionName(ctx, "sess_123")
//	logger.Info(ctx, "request processed", zap.Duration("duration", d))
//
// Output includes automatic correlation (trace_id and span_id appear only
// when ctx carries a valid span):
//
//	{
//	  "level": "info",
//	  "ts": "2025-11-24T10:15:30.000Z",
//	  "caller": "api/handler.go:42",
//	  "msg": "request processed",
//	  "service": "schaltwerk",
//	  "trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
//	  "span_id": "00f067aa0ba902b7",
//	  "project.path": "/home/user/repos/acme-api",
//	  "project.repo": "acme-api",
//	  "session.name": "sess_123",
//	  "duration": 0.045
//	}
//
// # Configuration
//
// NewLogger uses the *Config it is given; this package reads no config
// file and no environment variables. The serve command passes
// NewDefaultConfig() unchanged.
//
// # Secret Redaction
//
// Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "auth received",
//	    logging.RedactedString("authorization", authHeader))
//
// # Sampling
//
// Level-aware sampling prevents log floods. Every level below Error is
// sampled with the Info entry of Sampling.Levels (by default the first
// 100 entries with the same message per second, then every 10th); the
// Trace, Debug and Warn entries of that map are not read. Error and
// above are never sampled.
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
//
// # Performance
//
// Logging overhead: <1ms per entry in hot paths
// Trace checks the level before building fields; the other level methods
// build the context fields first, so a disabled call still allocates them
// Sampling reduces volume by ~90% in high-throughput scenarios
package logging
