package embeddings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/filingqa/internal/embeddings"

// Metrics records embedding call latency, text volume and failures for one
// model. Ingestion shows up as embed_documents, questions as embed_query.
type Metrics struct {
	model    attribute.KeyValue
	duration metric.Float64Histogram
	texts    metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates metrics for model on the global meter provider.
func NewMetrics(model string, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(embeddingsInstrumentationName)
	m := &Metrics{model: attribute.String("model", model)}

	var err error
	if m.duration, err = meter.Float64Histogram("filingqa.embedding.duration",
		metric.WithDescription("Embedding call duration by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30),
	); err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	if m.texts, err = meter.Int64Counter("filingqa.embedding.texts",
		metric.WithDescription("Texts embedded by model and operation"),
		metric.WithUnit("{text}"),
	); err != nil {
		logger.Warn("failed to create texts counter", zap.Error(err))
	}
	if m.errors, err = meter.Int64Counter("filingqa.embedding.errors",
		metric.WithDescription("Failed embedding calls by model, operation and reason"),
		metric.WithUnit("{error}"),
	); err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

// Record reports one call that embedded n texts.
func (m *Metrics) Record(ctx context.Context, operation string, n int, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(m.model, attribute.String("operation", operation))
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if err != nil {
		if m.errors != nil {
			m.errors.Add(ctx, 1, metric.WithAttributes(m.model,
				attribute.String("operation", operation),
				attribute.String("reason", failureReason(err))))
		}
		return
	}
	if m.texts != nil {
		m.texts.Add(ctx, int64(n), attrs)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	default:
		return "failed"
	}
}
