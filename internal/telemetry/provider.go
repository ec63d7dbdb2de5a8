package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// newResource describes this process: service identity plus the pipeline
// attributes (models, index backend) so traces from different
// configurations can be told apart.
func newResource(cfg *Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// exporters builds OTLP exporters for the configured protocol. The HTTP
// exporters take host:port, so any URL scheme is stripped.
type exporters struct {
	http     bool
	endpoint string
	insecure bool
	tls      *tls.Config
}

func newExporters(cfg *Config) exporters {
	e := exporters{
		http:     cfg.Protocol == "http/protobuf",
		endpoint: cfg.Endpoint,
		insecure: cfg.Insecure,
	}
	if e.http {
		e.endpoint = stripScheme(cfg.Endpoint)
	}
	if !cfg.Insecure && cfg.TLSSkipVerify {
		e.tls = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via tls_skip_verify
	}
	return e
}

func (e exporters) spans(ctx context.Context) (trace.SpanExporter, error) {
	if e.http {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(e.endpoint)}
		switch {
		case e.insecure:
			opts = append(opts, otlptracehttp.WithInsecure())
		case e.tls != nil:
			opts = append(opts, otlptracehttp.WithTLSClientConfig(e.tls))
		}
		return otlptracehttp.New(ctx, opts...)
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(e.endpoint)}
	switch {
	case e.insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case e.tls != nil:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(e.tls)))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// metrics exports with cumulative temporality for Prometheus-style backends.
func (e exporters) metrics(ctx context.Context) (metric.Exporter, error) {
	cumulative := func(metric.InstrumentKind) metricdata.Temporality {
		return metricdata.CumulativeTemporality
	}
	if e.http {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(e.endpoint),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		switch {
		case e.insecure:
			opts = append(opts, otlpmetrichttp.WithInsecure())
		case e.tls != nil:
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(e.tls))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(e.endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	switch {
	case e.insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case e.tls != nil:
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(e.tls)))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func newTracerProvider(ctx context.Context, cfg *Config, exp exporters, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := exp.spans(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(sampler(cfg.SampleRate))),
	), nil
}

func sampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}

func newMeterProvider(ctx context.Context, cfg *Config, exp exporters, res *resource.Resource) (*metric.MeterProvider, error) {
	exporter, err := exp.metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(cfg.Metrics.ExportInterval.Duration()))),
	), nil
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
