package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	ctxKeyTraceID      ctxKey = "trace_id"
	ctxKeyRoomID       ctxKey = "room_id"
	ctxKeyConnectionID ctxKey = "connection_id"
)

// WithTraceID returns a context carrying a trace id for log correlation.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, id)
}

// WithRoomID returns a context carrying the room id.
func WithRoomID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRoomID, id)
}

// WithConnectionID returns a context carrying the connection id.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyConnectionID, id)
}

// ContextLogger decorates a zap logger with fields extracted from contexts.
type ContextLogger struct {
	logger *zap.Logger
}

// NewContextLogger creates a new context logger.
func NewContextLogger(logger *zap.Logger) *ContextLogger {
	return &ContextLogger{logger: logger}
}

// WithContext adds the known context fields to the logger.
func (cl *ContextLogger) WithContext(ctx context.Context) *zap.Logger {
	fields := []zapcore.Field{}

	if v, ok := ctx.Value(ctxKeyTraceID).(string); ok && v != "" {
		fields = append(fields, zap.String("trace_id", v))
	}
	if v, ok := ctx.Value(ctxKeyRoomID).(string); ok && v != "" {
		fields = append(fields, zap.String("room_id", v))
	}
	if v, ok := ctx.Value(ctxKeyConnectionID).(string); ok && v != "" {
		fields = append(fields, zap.String("connection_id", v))
	}

	if len(fields) == 0 {
		return cl.logger
	}
	return cl.logger.With(fields...)
}

// LogError logs an error with context fields attached.
func (cl *ContextLogger) LogError(ctx context.Context, err error, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).With(zap.Error(err)).Error(message, fields...)
}

// LogInfo logs an info message with context fields attached.
func (cl *ContextLogger) LogInfo(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Info(message, fields...)
}

// LogDebug logs a debug message with context fields attached.
func (cl *ContextLogger) LogDebug(ctx context.Context, message string, fields ...zapcore.Field) {
	cl.WithContext(ctx).Debug(message, fields...)
}
