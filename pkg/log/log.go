// Package log carries a request-scoped slog.Logger through contexts so
// handlers and background loops can attach attributes once and keep them for
// every line they emit.
package log

import (
	"context"
	"log/slog"
	"os"
)

// defaultLogLevel's zero value is slog.LevelInfo, which is the level we want
// until main resolves the flag.
var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &defaultLogLevel,
	}))
)

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger carried by ctx, or the package default when the
// context has none.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a context carrying logger; later Ctx calls on derived contexts
// return it.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// SetDefaultLogLevel adjusts the level of the package default logger.
func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}
