// Package telemetry provides OpenTelemetry instrumentation for filingqa.
//
// It owns the TracerProvider and MeterProvider, exporting over OTLP (gRPC or
// HTTP/protobuf) to a collector. Telemetry is off by default; when enabled
// and the collector is unreachable the instance degrades to no-op providers
// instead of failing startup.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Pipeline packages obtain instruments from the global providers
// (otel.Tracer / otel.Meter), which New installs.
package telemetry
