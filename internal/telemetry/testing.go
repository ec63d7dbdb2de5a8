package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TestTelemetry records spans and metrics in memory for assertions.
type TestTelemetry struct {
	SpanRecorder   *tracetest.SpanRecorder
	Reader         *sdkmetric.ManualReader
	TracerProvider *trace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// NewTestTelemetry creates in-memory providers.
func NewTestTelemetry() *TestTelemetry {
	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		SpanRecorder:   recorder,
		Reader:         reader,
		TracerProvider: trace.NewTracerProvider(trace.WithSpanProcessor(recorder)),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// Install sets the in-memory providers as the global providers until the
// test finishes. Instruments created before Install keep their old provider.
func (t *TestTelemetry) Install(tb testing.TB) {
	tb.Helper()
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	otel.SetTracerProvider(t.TracerProvider)
	otel.SetMeterProvider(t.MeterProvider)
	tb.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})
}

// Tracer returns a tracer from the in-memory provider.
func (t *TestTelemetry) Tracer(name string) oteltrace.Tracer {
	return t.TracerProvider.Tracer(name)
}

// Meter returns a meter from the in-memory provider.
func (t *TestTelemetry) Meter(name string) metric.Meter {
	return t.MeterProvider.Meter(name)
}

// SpanNames returns the names of all ended spans.
func (t *TestTelemetry) SpanNames() []string {
	spans := t.SpanRecorder.Ended()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

// AssertSpanExists verifies a span with the given name was recorded.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	for _, n := range t.SpanNames() {
		if n == name {
			return
		}
	}
	tb.Errorf("expected span %q not found, got: %v", name, t.SpanNames())
}

// Collect gathers current metric data.
func (t *TestTelemetry) Collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	return rm
}

// HasMetric reports whether a metric with the given name was recorded.
func (t *TestTelemetry) HasMetric(tb testing.TB, name string) bool {
	tb.Helper()
	for _, sm := range t.Collect(tb).ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}
