package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/filingqa/internal/config"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string // grpc or http/protobuf
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	TLSSkipVerify  bool
	SampleRate     float64
	Metrics        MetricsConfig
	ShutdownAfter  config.Duration

	// Attributes are added to the resource, e.g. filingqa.embedding.model.
	Attributes map[string]string
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool
	ExportInterval config.Duration
}

// NewDefaultConfig returns telemetry defaults. Telemetry is disabled by
// default since most local runs have no collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       "grpc",
		ServiceName:    "filingqa",
		ServiceVersion: "dev",
		Insecure:       true,
		SampleRate:     1.0,
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		ShutdownAfter: config.Duration(5 * time.Second),
	}
}

// PipelineAttributes describes the models and index backend of cfg as
// resource attributes.
func PipelineAttributes(cfg *config.Config) map[string]string {
	attrs := map[string]string{
		"filingqa.embedding.provider":  cfg.Embeddings.Provider,
		"filingqa.embedding.model":     cfg.Embeddings.Model,
		"filingqa.generation.provider": cfg.Generation.Provider,
		"filingqa.generation.model":    cfg.Generation.Model,
		"filingqa.reranker.provider":   cfg.Reranker.Provider,
		"filingqa.index.backend":       cfg.Index.Backend,
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}

// FromSettings maps the application settings onto a telemetry config.
func FromSettings(s config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = s.Enabled
	if s.Endpoint != "" {
		cfg.Endpoint = s.Endpoint
	}
	if s.Protocol != "" {
		cfg.Protocol = s.Protocol
	}
	if s.ServiceName != "" {
		cfg.ServiceName = s.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Insecure = s.Insecure || isLocalEndpoint(cfg.Endpoint)
	cfg.SampleRate = s.SampleRate
	if s.ExportInterval > 0 {
		cfg.Metrics.ExportInterval = s.ExportInterval
	}
	return cfg
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; use TLS or a local endpoint")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("metrics export interval must be positive when metrics enabled")
	}
	return nil
}

// isLocalEndpoint reports whether endpoint points at the loopback interface.
func isLocalEndpoint(endpoint string) bool {
	host := stripScheme(endpoint)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			host = host[1:idx]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
