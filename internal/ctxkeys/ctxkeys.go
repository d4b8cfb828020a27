package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	pauseReasonKey contextKey = "pause_reason"
	actorKey       contextKey = "actor"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPauseReason 设置暂停原因，PAUSE 副作用据此填写检查点元数据
func WithPauseReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, pauseReasonKey, reason)
}

// PauseReason 获取暂停原因
func PauseReason(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(pauseReasonKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithActor 设置操作发起方（写入检查点的 created_by）
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor 获取操作发起方
func Actor(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
