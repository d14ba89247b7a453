package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	serverKeyCtxKey ctxKey = iota
	taskIDCtxKey
)

// WithServerKey returns a context carrying the server key every log
// record in scope should be tagged with.
func WithServerKey(ctx context.Context, serverKey string) context.Context {
	return context.WithValue(ctx, serverKeyCtxKey, serverKey)
}

// WithTaskID returns a context carrying the logical task id of a
// long-running job.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDCtxKey, taskID)
}

// ServerKeyExtractor tags records with the server key from context.
func ServerKeyExtractor(ctx context.Context) (slog.Attr, bool) {
	if key, ok := ctx.Value(serverKeyCtxKey).(string); ok && key != "" {
		return slog.String("server_key", key), true
	}
	return slog.Attr{}, false
}

// TaskIDExtractor tags records with the task id from context.
func TaskIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id, ok := ctx.Value(taskIDCtxKey).(string); ok && id != "" {
		return slog.String("task_id", id), true
	}
	return slog.Attr{}, false
}
