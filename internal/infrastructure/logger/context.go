package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
	correlationIDKey
	userIDKey
)

// scopedValues are the request-scoped identifiers copied onto every
// context-aware log entry, in output order.
var scopedValues = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, "request_id"},
	{correlationIDKey, "correlation_id"},
	{userIDKey, "user_id"},
}

// WithContext attaches a logger to ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the attached logger or a nop logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

func withValue(ctx context.Context, l *zap.Logger, key ctxKey, field, value string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, key, value)
	return WithContext(ctx, l), l.With(zap.String(field, value))
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithRequestID stores the per-call request id
func WithRequestID(ctx context.Context, l *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return withValue(ctx, l, requestIDKey, "request_id", requestID)
}

// WithCorrelationID stores the correlation id. Unlike the request id it
// travels with emitted events and lands on audit records.
func WithCorrelationID(ctx context.Context, l *zap.Logger, correlationID string) (context.Context, *zap.Logger) {
	return withValue(ctx, l, correlationIDKey, "correlation_id", correlationID)
}

// WithUserID stores the acting user
func WithUserID(ctx context.Context, l *zap.Logger, userID string) (context.Context, *zap.Logger) {
	return withValue(ctx, l, userIDKey, "user_id", userID)
}

func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }
func GetCorrelationID(ctx context.Context) string { return stringValue(ctx, correlationIDKey) }
func GetUserID(ctx context.Context) string { return stringValue(ctx, userIDKey) }

// ContextLogger adds the active span and the request-scoped identifiers of
// its context to every entry.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L builds a ContextLogger from the logger attached to ctx
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger builds a ContextLogger around an explicit logger
func WithLogger(ctx context.Context, l *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: l}
}

// With returns a child carrying extra fields
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.base().With(fields...)}
}

func (cl *ContextLogger) base() *zap.Logger {
	if cl.logger == nil {
		return zap.NewNop()
	}
	return cl.logger
}

// Zap returns the enriched zap logger
func (cl *ContextLogger) Zap() *zap.Logger {
	l := cl.base()
	if sc := trace.SpanContextFromContext(cl.ctx); sc.IsValid() {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	for _, v := range scopedValues {
		if s := stringValue(cl.ctx, v.key); s != "" {
			l = l.With(zap.String(v.field, s))
		}
	}
	return l
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.Zap().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) { cl.Zap().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) { cl.Zap().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.Zap().Error(msg, fields...) }
