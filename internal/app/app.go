// Package app provides the top-level application lifecycle for lobwatch. It
// wires the transport, the dashboard loop, replay control and the local
// server, runs them under one errgroup, and tears them down in order.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/lobwatch/internal/config"
	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// shutdownTimeout bounds the HTTP server drain.
const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
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

// Run wires all dependencies, starts the goroutines, and blocks until the
// context is cancelled or a component fails. A stream that ends is not a
// failure: the dashboard keeps serving the last data it received.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("source", a.cfg.Stream.Source),
		slog.String("backend", a.cfg.Backend.HTTP),
		slog.Bool("server", a.cfg.Server.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Loop.Run(ctx)
	})

	g.Go(func() error {
		return deps.Hub.Run(ctx)
	})

	g.Go(func() error {
		err := deps.Ingestor.Run(ctx)
		if errors.Is(err, domain.ErrStreamClosed) {
			a.logger.WarnContext(ctx, "stream ended; views stay on the last data received")
			return nil
		}
		return err
	})

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return deps.Server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
