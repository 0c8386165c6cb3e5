package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCtx(t *testing.T) {
	ctx := context.Background()
	assert.Same(t, defaultLogger, Ctx(ctx))

	scoped := Ctx(ctx).With(slog.String("instanceID", "home"))
	ctx = With(ctx, scoped)
	assert.Same(t, scoped, Ctx(ctx))

	// unrelated contexts keep the default
	assert.Same(t, defaultLogger, Ctx(context.Background()))
}

func TestSetDefaultLogLevel(t *testing.T) {
	defer SetDefaultLogLevel(slog.LevelInfo)

	SetDefaultLogLevel(slog.LevelWarn)
	assert.False(t, defaultLogger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, defaultLogger.Enabled(context.Background(), slog.LevelWarn))
}
