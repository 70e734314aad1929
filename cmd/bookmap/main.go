// Command bookmap serves the multi-venue liquidity heatmap.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/bookmap/internal/app"
	"github.com/alanyoungcy/bookmap/internal/config"
)

func main() {
	path := flag.String("config", "config.toml", "TOML or YAML configuration file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*path, level, logger); err != nil {
		logger.Error("bookmap exited", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "bookmap: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, level *slog.LevelVar, logger *slog.Logger) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		logger.Warn("unknown log level, using info", slog.String("log_level", cfg.LogLevel))
		level.Set(slog.LevelInfo)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("bookmap starting",
		slog.String("config", path),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger)
	defer a.Close()

	err = a.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("bookmap stopped")
		return nil
	}
	return err
}
