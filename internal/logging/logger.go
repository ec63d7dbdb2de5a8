package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// instrumentationScope names filingqa log records in OpenTelemetry.
const instrumentationScope = "github.com/fyrsmithlabs/filingqa"

// Logger is a zap logger whose methods take a context, so query ids,
// document names and trace ids are attached to every entry.
type Logger struct {
	zap    *zap.Logger
	config *Config
}

// NewLogger builds a logger from cfg. otelProvider may be nil, in which case
// records only go to the local writer.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	core, err := buildCore(cfg, otelProvider)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if cfg.Caller.Enabled {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip))
	}
	if cfg.Stacktrace.Level != 0 {
		opts = append(opts, zap.AddStacktrace(cfg.Stacktrace.Level))
	}
	if len(cfg.Fields) > 0 {
		static := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			static = append(static, zap.String(k, v))
		}
		opts = append(opts, zap.Fields(static...))
	}

	return &Logger{zap: zap.New(core, opts...), config: cfg}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}

// buildCore tees the local encoder core with the OTEL bridge, then applies
// sampling to the result.
func buildCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, localWriter(cfg.Output), cfg.Level))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(instrumentationScope, otelzap.WithLoggerProvider(otelProvider)))
	}

	switch len(cores) {
	case 0:
		return nil, errors.New("no log output enabled")
	case 1:
		return newSampledCore(cores[0], cfg.Sampling), nil
	default:
		return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
	}
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if l == TraceLevel {
			enc.AppendString("trace")
			return
		}
		zapcore.LowercaseLevelEncoder(l, enc)
	}

	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// localWriter is cfg.Writer, or stdout.
func localWriter(cfg OutputConfig) zapcore.WriteSyncer {
	if cfg.Writer != nil {
		return zapcore.AddSync(cfg.Writer)
	}
	return zapcore.Lock(os.Stdout)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if ce := l.zap.Check(level, msg); ce != nil {
		ce.Write(append(ContextFields(ctx), fields...)...)
	}
}

func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// Named returns a child logger for one component, e.g. "qa" or "events".
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name), config: l.config}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

// Underlying returns the zap logger for libraries that take one.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}
