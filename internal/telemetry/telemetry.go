package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry owns the process's OpenTelemetry providers. Exporter failures
// leave the affected signal on the no-op provider; the pipeline keeps
// answering questions either way.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	mu     sync.Mutex
	reason string
}

// New starts the configured exporters and installs their providers
// globally. A disabled config yields an instance with nothing to shut down.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	exp := newExporters(cfg)

	if tp, err := newTracerProvider(ctx, cfg, exp, res); err != nil {
		t.degrade("traces", err)
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.Metrics.Enabled {
		if mp, err := newMeterProvider(ctx, cfg, exp, res); err != nil {
			t.degrade("metrics", err)
		} else {
			t.meterProvider = mp
			otel.SetMeterProvider(mp)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// LoggerProvider returns the provider the zap bridge writes to: the global
// OpenTelemetry log provider when telemetry is enabled, nil otherwise.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.config == nil || !t.config.Enabled {
		return nil
	}
	return global.GetLoggerProvider()
}

// Shutdown flushes pending spans and metrics. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && t.config != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownAfter.Duration())
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Degraded reports whether any exporter failed to start, with the first
// failure.
func (t *Telemetry) Degraded() (bool, string) {
	if t == nil {
		return false, ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason != "", t.reason
}

func (t *Telemetry) degrade(signal string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reason == "" {
		t.reason = fmt.Sprintf("%s exporter failed: %v", signal, err)
	}
}
