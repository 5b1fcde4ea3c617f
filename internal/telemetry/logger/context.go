package logger

import "context"

type contextKey string

const (
	loggerKey       contextKey = "reactq.logger"
	checkpointIDKey contextKey = "reactq.checkpoint_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context, or the default logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithCheckpointID tags the context with the id of the checkpoint or
// recovery session in progress.
func WithCheckpointID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, checkpointIDKey, id)
}

// CheckpointIDFromContext returns the checkpoint id, or "".
func CheckpointIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(checkpointIDKey).(string); ok {
		return id
	}
	return ""
}

// L is FromContext enriched with the checkpoint id, if any.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id := CheckpointIDFromContext(ctx); id != "" {
		l = l.With("checkpoint_id", id)
	}
	return l
}
