package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/filingqa/internal/http"

// outcomeKey is the echo context key a handler sets to the qa status of the
// answer it returned.
const outcomeKey = "qa.status"

// HTTPMetrics records OpenTelemetry request metrics for the API. Answer
// latency is dominated by generation, so duration buckets run to a minute.
type HTTPMetrics struct {
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	outcomes metric.Int64Counter
}

// NewHTTPMetrics creates metrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{logger: logger}

	var err error
	if m.requests, err = meter.Int64Counter("filingqa.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status class"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}
	if m.duration, err = meter.Float64Histogram("filingqa.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration by method, route and status class"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	); err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	if m.active, err = meter.Int64UpDownCounter("filingqa.http.active_requests",
		metric.WithDescription("Requests in flight"),
		metric.WithUnit("{request}"),
	); err != nil {
		logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
	if m.outcomes, err = meter.Int64Counter("filingqa.http.ask_outcomes_total",
		metric.WithDescription("Answers returned over HTTP by qa status"),
		metric.WithUnit("{answer}"),
	); err != nil {
		logger.Warn("failed to create outcome counter", zap.Error(err))
	}
	return m
}

// MetricsMiddleware returns an Echo middleware that records request metrics
// and, for routes that set outcomeKey, the answer status.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.active != nil {
				m.active.Add(ctx, 1)
				defer m.active.Add(ctx, -1)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.String("status_class", statusClass(status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if outcome, ok := c.Get(outcomeKey).(string); ok && m.outcomes != nil {
				m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", outcome)))
			}
			return err
		}
	}
}

// routeLabel collapses unmatched requests into one label. Every registered
// route is static, so matched paths are already low cardinality.
func routeLabel(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

// statusClass maps 404 to "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
