package logging

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/filingqa/internal/config"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level
	Format     string
	Output     OutputConfig
	Sampling   SamplingConfig
	Caller     CallerConfig
	Stacktrace StacktraceConfig
	Fields     map[string]string
	Redaction  RedactionConfig
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool
	OTEL   bool

	// Writer replaces stdout when set. CLI commands that print results to
	// stdout route logs to stderr through it.
	Writer io.Writer
}

// SamplingConfig controls log volume reduction.
type SamplingConfig struct {
	Enabled bool
	Tick    config.Duration
	Levels  map[zapcore.Level]LevelSamplingConfig
}

// LevelSamplingConfig defines sampling rate per level.
type LevelSamplingConfig struct {
	Initial    int
	Thereafter int
}

// CallerConfig controls caller information in logs. Skip 2 reports the
// caller of Logger.Info and friends.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stdout: true,
		},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    config.Duration(time.Second),
			Levels:  DefaultLevelSamplingConfig(),
		},
		Caller: CallerConfig{
			Enabled: true,
			Skip:    2,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "filingqa",
		},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "bearer", "credential",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`sk-[A-Za-z0-9_-]{16,}`,
			},
		},
	}
}

// FromSettings builds a logging config from the user-facing settings.
func FromSettings(s config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()

	level, err := LevelFromString(s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", s.Level, err)
	}
	cfg.Level = level
	if s.Format != "" {
		cfg.Format = s.Format
	}
	cfg.Output.OTEL = s.OTEL
	cfg.Sampling.Enabled = s.Sampling

	return cfg, nil
}

// TraceLevel sits below Debug. Per-chunk embedding and per-candidate
// rerank scores are logged at this level.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name. It accepts zap's names in any case,
// plus "trace" and "warning". Empty means info.
func LevelFromString(level string) (zapcore.Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(name)); err != nil {
			return zapcore.InfoLevel, err
		}
		return l, nil
	}
}

// DefaultLevelSamplingConfig returns default sampling config by level.
func DefaultLevelSamplingConfig() map[zapcore.Level]LevelSamplingConfig {
	return map[zapcore.Level]LevelSamplingConfig{
		TraceLevel:         {Initial: 1, Thereafter: 0},
		zapcore.DebugLevel: {Initial: 10, Thereafter: 0},
		zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
		zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick.Duration() <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}

	if c.Redaction.Enabled {
		for _, pattern := range c.Redaction.Patterns {
			if len(pattern) > 200 {
				return fmt.Errorf("redaction pattern too long (max 200 chars): %q", pattern)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
			}
		}
	}

	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}

	return nil
}
