package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if queryID := QueryIDFromContext(ctx); queryID != "" {
		fields = append(fields, zap.String("query.id", queryID))
	}

	if doc := DocumentFromContext(ctx); doc != "" {
		fields = append(fields, zap.String("document", doc))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type queryCtxKey struct{}
type documentCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// WithQueryID tags the context with the id of the question being answered.
func WithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryCtxKey{}, queryID)
}

// QueryIDFromContext returns the query id, or "".
func QueryIDFromContext(ctx context.Context) string {
	if q, ok := ctx.Value(queryCtxKey{}).(string); ok {
		return q
	}
	return ""
}

// WithDocument tags the context with the document being ingested.
func WithDocument(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, documentCtxKey{}, name)
}

// DocumentFromContext returns the document name, or "".
func DocumentFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(documentCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// WithRequestID adds the HTTP request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
