package logger

import (
	"context"

	"go.uber.org/zap"
)

// ContextFieldExtractor 从 context 提取日志字段
type ContextFieldExtractor func(ctx context.Context) []zap.Field

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerIDKey
	alertIDKey
)

// WithRequestID 在 context 中记录请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithCallerID 在 context 中记录调用方 ID
func WithCallerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

// WithAlertID 在 context 中记录当前处理的告警 ID
func WithAlertID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, alertIDKey, id)
}

// RequestIDFrom 读取请求 ID
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// FieldsFromContext 默认提取器: request_id / caller_id / alert_id
func FieldsFromContext(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v, ok := ctx.Value(callerIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("caller_id", v))
	}
	if v, ok := ctx.Value(alertIDKey).(string); ok && v != "" {
		fields = append(fields, zap.String("alert_id", v))
	}
	return fields
}
