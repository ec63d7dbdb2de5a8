package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
	"github.com/fyrsmithlabs/filingqa/internal/sanitize"
)

const instrumentationName = "github.com/fyrsmithlabs/filingqa/internal/mcp"

// Metrics records tool call counts, durations, failures and answer outcomes.
// Instruments that fail to register are left nil and skipped.
type Metrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	outcomes metric.Int64Counter
}

// NewMetrics creates metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(what string, err error) {
		if err != nil {
			logger.Warn("failed to create "+what, zap.Error(err))
		}
	}

	m := &Metrics{}
	var err error
	m.calls, err = meter.Int64Counter("filingqa.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool"),
		metric.WithUnit("{invocation}"))
	warn("invocations counter", err)

	m.duration, err = meter.Float64Histogram("filingqa.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call duration by tool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300))
	warn("duration histogram", err)

	m.failures, err = meter.Int64Counter("filingqa.mcp.tool.errors_total",
		metric.WithDescription("MCP tool calls that returned an error, by tool and reason"),
		metric.WithUnit("{error}"))
	warn("errors counter", err)

	m.inFlight, err = meter.Int64UpDownCounter("filingqa.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in flight"),
		metric.WithUnit("{request}"))
	warn("active requests gauge", err)

	m.outcomes, err = meter.Int64Counter("filingqa.mcp.ask.outcomes_total",
		metric.WithDescription("ask_filings answers by qa status"),
		metric.WithUnit("{answer}"))
	warn("outcome counter", err)

	return m
}

// Track marks a call to tool as started. The returned func must be called
// with the call's error when it finishes.
func (m *Metrics) Track(ctx context.Context, tool string) func(error) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, attrs)
	}
	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, attrs)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", categorizeError(err)),
			))
		}
	}
}

// RecordOutcome counts one ask_filings answer by status.
func (m *Metrics) RecordOutcome(ctx context.Context, status qa.Status) {
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

// categorizeError maps a tool error to a low-cardinality reason label.
func categorizeError(err error) string {
	var embErr *qa.EmbeddingServiceError
	var genErr *qa.GenerationServiceError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, qa.ErrIndexNotBuilt):
		return "not_indexed"
	case errors.Is(err, qa.ErrNoDocuments), errors.Is(err, qa.ErrAllDocumentsFailed):
		return "ingest_error"
	case errors.Is(err, sanitize.ErrPathTraversal), errors.Is(err, sanitize.ErrInvalidDocumentName),
		errors.Is(err, sanitize.ErrEmptyPath):
		return "rejected_document"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &embErr), errors.As(err, &genErr):
		return "model_error"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return "validation_error"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	default:
		return "internal_error"
	}
}
