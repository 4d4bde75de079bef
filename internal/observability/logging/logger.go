// Package logging provides structured logging setup on top of log/slog.
// Production output is JSON; development output uses a colorized console
// handler. The log level is controlled via the LOG_LEVEL environment
// variable (debug, info, warn, error; default info).
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger with JSON output for production.
func NewLogger() *slog.Logger {
	level := levelFromEnv()
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		// Source location only when the noise is worth it
		AddSource: level <= slog.LevelWarn,
	})
	return slog.New(handler)
}

// NewDevLogger creates a colorized console logger for local development.
func NewDevLogger() *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      levelFromEnv(),
		TimeFormat: "15:04:05",
	})
	return slog.New(handler)
}

// WithFields returns a logger with additional structured fields.
func WithFields(logger *slog.Logger, fields map[string]interface{}) *slog.Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return logger.With(args...)
}

// FromContext retrieves the logger from the context, or the default logger
// if none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"
