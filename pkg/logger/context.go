package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// Into stores l as the request logger. Later With calls build on it.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, l)
}

// With tags the request logger with attrs, starting from the process logger
// when none was stored.
func With(ctx context.Context, attrs ...any) context.Context {
	return Into(ctx, From(ctx).With(attrs...))
}

func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return LoggerWrapper()
}
