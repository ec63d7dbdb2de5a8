package workflows

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/filingqa/internal/workflows"

// activityMetrics are recorded from activities only; workflow code has no
// side effects so replays stay deterministic.
type activityMetrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	staged   metric.Int64Counter
}

// instruments is built on first use so it binds to whatever meter
// provider telemetry installed by then.
var instruments = sync.OnceValue(func() *activityMetrics {
	meter := otel.Meter(instrumentationName)
	m := &activityMetrics{}
	// Instrument errors only occur for invalid names; the noop instruments
	// returned alongside them are safe to use.
	m.duration, _ = meter.Float64Histogram("filingqa.workflows.activity.duration",
		metric.WithDescription("Duration of ingestion activity executions"),
		metric.WithUnit("s"))
	m.errors, _ = meter.Int64Counter("filingqa.workflows.activity.errors",
		metric.WithDescription("Ingestion activities that returned an error"),
		metric.WithUnit("{error}"))
	m.staged, _ = meter.Int64Counter("filingqa.workflows.documents.staged",
		metric.WithDescription("Documents extracted and staged for indexing"),
		metric.WithUnit("{document}"))
	return m
})

// observe records one activity run; errp is read after the activity returns.
func observe(ctx context.Context, activity string, start time.Time, errp *error) {
	m := instruments()
	attrs := metric.WithAttributes(attribute.String("activity", activity))
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if *errp != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
