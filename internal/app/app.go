// Package app builds the bookmap runtime from configuration and runs one of
// its modes: live (feeds + engine + HTTP), relay (feeds to Redis only) or
// view (Redis stream + engine + HTTP).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/bookmap/internal/config"
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// cleanup holds teardown funcs, run last-in first-out by Close.
	cleanup []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger.With(slog.String("component", "app"))}
}

// Run blocks until ctx is cancelled or a mode returns an error.
func (a *App) Run(ctx context.Context) error {
	modes := map[string]func(context.Context, *Dependencies) error{
		ModeLive:  a.LiveMode,
		ModeRelay: a.RelayMode,
		ModeView:  a.ViewMode,
	}
	mode := strings.ToLower(a.cfg.Mode)
	runMode, ok := modes[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	deps, teardown, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.cleanup = append(a.cleanup, teardown)

	a.logger.InfoContext(ctx, "mode selected",
		slog.String("mode", mode),
		slog.String("symbol", a.cfg.Heatmap.Symbol),
	)
	return runMode(ctx, deps)
}

// Close is safe to call more than once.
func (a *App) Close() {
	for len(a.cleanup) > 0 {
		last := len(a.cleanup) - 1
		fn := a.cleanup[last]
		a.cleanup = a.cleanup[:last]
		fn()
	}
}
