package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bookmap/internal/feed"
	"github.com/alanyoungcy/bookmap/internal/heatmap"
	"github.com/alanyoungcy/bookmap/internal/server"
	"github.com/alanyoungcy/bookmap/internal/server/handler"
	"github.com/alanyoungcy/bookmap/internal/server/ws"
	"github.com/alanyoungcy/bookmap/internal/service"
)

// Run modes.
const (
	ModeLive  = "live"
	ModeRelay = "relay"
	ModeView  = "view"
)

const (
	shutdownTimeout  = 10 * time.Second
	relayLogInterval = time.Minute
)

// LiveMode streams the enabled venues straight into the engine and serves the
// API. With Redis enabled every book and trade is also mirrored to the relay
// stream so view instances can follow along.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "live mode: starting")

	svc, err := a.newService(deps)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}
	sources, venues, err := Sources(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("live mode: %w", err)
	}
	if _, err := svc.SyncCatalog(ctx, venues); err != nil {
		a.logger.WarnContext(ctx, "live mode: venue catalog sync failed", slog.String("error", err.Error()))
	}
	if _, err := svc.SeedPrice(ctx); err != nil {
		a.logger.WarnContext(ctx, "live mode: price seed failed", slog.String("error", err.Error()))
	}

	var sink feed.Sink = svc
	var relay *feed.Relay
	if a.cfg.Redis.Enabled {
		relay = feed.NewRelay(deps.SignalBus, a.cfg.Stream.Key, a.logger)
		sink = feed.Tee{svc, relay}
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, svc)
	for _, src := range sources {
		f := feed.NewVenueFeed(src, sink, a.logger)
		g.Go(func() error { return f.Run(ctx) })
	}
	if relay != nil {
		g.Go(func() error { return a.logRelay(ctx, relay) })
	}
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// RelayMode streams the enabled venues onto the Redis stream. No engine or
// API runs in this mode.
func (a *App) RelayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "relay mode: starting", slog.String("stream", a.cfg.Stream.Key))

	sources, _, err := Sources(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("relay mode: %w", err)
	}
	relay := feed.NewRelay(deps.SignalBus, a.cfg.Stream.Key, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		f := feed.NewVenueFeed(src, relay, a.logger)
		g.Go(func() error { return f.Run(ctx) })
	}
	g.Go(func() error { return a.logRelay(ctx, relay) })

	return g.Wait()
}

// ViewMode replays the relay stream into the engine, starting one window back
// so the heatmap is populated immediately, and serves the API.
func (a *App) ViewMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "view mode: starting", slog.String("stream", a.cfg.Stream.Key))

	svc, err := a.newService(deps)
	if err != nil {
		return fmt.Errorf("view mode: %w", err)
	}
	if _, err := svc.SyncCatalog(ctx, nil); err != nil {
		a.logger.WarnContext(ctx, "view mode: venue catalog sync failed", slog.String("error", err.Error()))
	}
	if _, err := svc.SeedPrice(ctx); err != nil {
		a.logger.WarnContext(ctx, "view mode: price seed failed", slog.String("error", err.Error()))
	}

	since := time.Now().Add(-a.cfg.Heatmap.TimeWindow())
	sf := feed.NewStreamFeed(deps.SignalBus, a.cfg.Stream.Key, a.cfg.Stream.Count, a.cfg.Stream.Block.Duration, since, svc, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	a.startEngine(ctx, g, svc)
	g.Go(func() error { return sf.Run(ctx) })
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

func (a *App) newService(deps *Dependencies) (*service.HeatmapService, error) {
	engine, err := heatmap.New(EngineConfig(a.cfg), a.logger, heatmap.WithRecorder(deps.Metrics))
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	sdeps := service.Deps{
		Bus:        deps.SignalBus,
		PriceCache: deps.PriceCache,
		BookCache:  deps.BookCache,
		Venues:     deps.VenueStore,
		Events:     deps.SessionStore,
	}
	return service.NewHeatmapService(engine, sdeps, a.cfg.Heatmap.PublishInterval.Duration, a.logger), nil
}

// startEngine runs the ingestion loop and the update publisher.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, svc *service.HeatmapService) {
	g.Go(func() error { return svc.Engine().Run(ctx) })
	g.Go(func() error { return svc.RunPublisher(ctx) })
}

// startHTTPServer adds the API server, the ws hub and a shutdown watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *service.HeatmapService) {
	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Symbol:   a.cfg.Heatmap.Symbol,
		Mode:     a.cfg.Mode,
		Channels: []string{service.UpdateChannel(a.cfg.Heatmap.Symbol), service.PricesChannel},
	}, a.logger)

	extras := server.Extras{Hub: hub, Limiter: deps.RateLimiter, Gatherer: deps.Registry}
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
		RateLimit:    a.cfg.Redis.RateLimit,
		RateWindow:   a.cfg.Redis.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(svc, a.cfg.Mode, time.Now()),
		Heatmap: handler.NewHeatmapHandler(svc),
		View:    handler.NewViewHandler(svc),
		Venues:  handler.NewVenueHandler(svc),
	}, extras, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// logRelay reports relay throughput until ctx is done.
func (a *App) logRelay(ctx context.Context, relay *feed.Relay) error {
	ticker := time.NewTicker(relayLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			published, failed := relay.Counts()
			a.logger.InfoContext(ctx, "relay: stream stats",
				slog.String("stream", a.cfg.Stream.Key),
				slog.Int64("published", published),
				slog.Int64("failed", failed),
			)
		}
	}
}

var _ feed.Sink = (*service.HeatmapService)(nil)
