package logger

import (
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Init configures the process-wide logger. An empty format means JSON in
// production and text everywhere else.
func Init(env, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, env)}

	var handler slog.Handler
	if format == "json" || (format == "" && env == "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler).With("service", "table-reservation")
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

func ParseLevel(level, env string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "production" {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		Init("development", "", "")
	}
	return defaultLogger
}

// Discard is used by tests and commands that must stay quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}
