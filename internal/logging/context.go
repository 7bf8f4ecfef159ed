package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type recordingCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields returns correlation fields carried by ctx: the active span,
// the recording being processed and the proxy request ID.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RecordingIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("recording.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// WithRecordingID tags ctx with the recording session being processed.
func WithRecordingID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recordingCtxKey{}, id)
}

// RecordingIDFromContext returns the recording ID or "".
func RecordingIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(recordingCtxKey{}).(string)
	return id
}

// WithRequestID tags ctx with an inbound HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
