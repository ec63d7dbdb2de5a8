package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled skips validation", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local insecure", func(c *Config) { c.Enabled = true }, false},
		{"remote insecure rejected", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
		}, true},
		{"bad protocol", func(c *Config) {
			c.Enabled = true
			c.Protocol = "udp"
		}, true},
		{"bad sample rate", func(c *Config) {
			c.Enabled = true
			c.SampleRate = 2
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "http://127.0.0.1:4318",
		Protocol:    "http/protobuf",
		ServiceName: "filingqa-test",
		SampleRate:  0.5,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, 0.5, cfg.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, isLocalEndpoint("localhost:4317"))
	assert.True(t, isLocalEndpoint("127.0.0.1:4317"))
	assert.True(t, isLocalEndpoint("[::1]:4317"))
	assert.True(t, isLocalEndpoint("http://localhost:4318"))
	assert.False(t, isLocalEndpoint("collector.internal:4317"))
}

func TestTestTelemetry_Install(t *testing.T) {
	tt := NewTestTelemetry()
	tt.Install(t)

	_, span := otel.Tracer("test").Start(context.Background(), "filingqa.search")
	span.End()
	tt.AssertSpanExists(t, "filingqa.search")

	counter, err := otel.Meter("test").Int64Counter("filingqa.queries")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
	assert.True(t, tt.HasMetric(t, "filingqa.queries"))
}

func TestPipelineAttributes(t *testing.T) {
	cfg := config.Default()
	cfg.Embeddings.Provider = "tei"
	cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	cfg.Index.Backend = ""

	attrs := PipelineAttributes(cfg)
	assert.Equal(t, "tei", attrs["filingqa.embedding.provider"])
	assert.Equal(t, "BAAI/bge-small-en-v1.5", attrs["filingqa.embedding.model"])
	assert.Equal(t, cfg.Generation.Model, attrs["filingqa.generation.model"])
	assert.NotContains(t, attrs, "filingqa.index.backend")
}

func TestNewResource_IncludesAttributes(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Attributes = map[string]string{"filingqa.index.backend": "chromem"}

	res := newResource(cfg)
	v, ok := res.Set().Value("filingqa.index.backend")
	require.True(t, ok)
	assert.Equal(t, "chromem", v.AsString())

	v, ok = res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "filingqa", v.AsString())
}

func TestLoggerProvider_NilWhenDisabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, tel.LoggerProvider())

	var none *Telemetry
	assert.Nil(t, none.LoggerProvider())
}
