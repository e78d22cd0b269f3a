package control

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/schaltwerk/schaltwerk-core/internal/logging"
)

const httpInstrumentationName = "github.com/schaltwerk/schaltwerk-core/internal/control"

// HTTPMetrics holds the request-level OTEL metrics for the control
// surface's HTTP server.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *logging.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics constructs HTTPMetrics, registering its instruments
// against the global OTEL meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	m := &HTTPMetrics{meter: otel.Meter(httpInstrumentationName), logger: logger}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error
	m.requestsTotal, err = m.meter.Int64Counter(
		"schaltwerk.control.http.requests_total",
		metric.WithDescription("Total control-surface HTTP requests, labeled by method, route, and status."),
		metric.WithUnit("{request}"),
	)
	m.warnIfErr(err, "requests counter")

	m.requestDur, err = m.meter.Float64Histogram(
		"schaltwerk.control.http.request_duration_seconds",
		metric.WithDescription("Control-surface HTTP request duration in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	m.warnIfErr(err, "duration histogram")

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"schaltwerk.control.http.active_requests",
		metric.WithDescription("Number of in-flight control-surface HTTP requests."),
		metric.WithUnit("{request}"),
	)
	m.warnIfErr(err, "active requests gauge")
}

func (m *HTTPMetrics) warnIfErr(err error, what string) {
	if err != nil && m.logger != nil {
		m.logger.Warn(context.Background(), "failed to create metric", zap.String("instrument", what), zap.Error(err))
	}
}

// Middleware records request count, duration, and in-flight gauge for
// every request, labeled by the matched route so dynamic `:name`
// segments never explode metric cardinality.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
			}

			err := next(c)

			attrs := []attribute.KeyValue{
				attribute.String("method", c.Request().Method),
				attribute.String("route", c.Path()),
				attribute.Int("status", c.Response().Status),
			}
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
			}
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, -1)
			}
			return err
		}
	}
}
