// Package app provides top-level application lifecycle management for the
// trade coordinator. It wires together stores, caches, the ledger client,
// and services, starts the background loops, and blocks until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/predictr-xyz/predictr/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the janitor and archiver loops, and
// blocks until the context is cancelled. The Services bundle on the returned
// Dependencies is the surface a transport layer would consume.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Janitor.Enabled {
		g.Go(func() error {
			return deps.Janitor.RunInterval(gctx, a.cfg.Janitor.Interval.Duration)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunInterval(gctx, a.cfg.Archiver.Interval.Duration)
		})
	}

	// With no background loops enabled, still block until shutdown.
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
