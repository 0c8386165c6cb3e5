package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tariffsaver/tariffsaver/pkg/coordinator"
	"github.com/tariffsaver/tariffsaver/pkg/log"
	"github.com/tariffsaver/tariffsaver/pkg/sampler"
	"github.com/tariffsaver/tariffsaver/pkg/server"
	"github.com/tariffsaver/tariffsaver/pkg/storage"
	"github.com/tariffsaver/tariffsaver/pkg/tariff"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// init packages
	client := tariff.Configured()
	db := storage.Configured()
	source := sampler.Configured()
	coord := coordinator.Configured(client, db, source)

	// init server
	srv := server.Configured(coord)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := coord.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := coord.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to load state", "error", err)
		os.Exit(1)
	}

	// the server and the fetch/book loop run until the context is canceled
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return coord.Run(gctx) })
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
