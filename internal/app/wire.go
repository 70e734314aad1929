package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alanyoungcy/bookmap/internal/cache/memory"
	"github.com/alanyoungcy/bookmap/internal/cache/redis"
	"github.com/alanyoungcy/bookmap/internal/config"
	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/feed"
	"github.com/alanyoungcy/bookmap/internal/heatmap"
	"github.com/alanyoungcy/bookmap/internal/instrumentation"
	"github.com/alanyoungcy/bookmap/internal/platform/binance"
	"github.com/alanyoungcy/bookmap/internal/platform/okx"
	"github.com/alanyoungcy/bookmap/internal/platform/uniswap"
	"github.com/alanyoungcy/bookmap/internal/store/postgres"
)

// bookTTL bounds how long a venue's last book stays in the cache without
// updates.
const bookTTL = 10 * time.Minute

// Dependencies bundles the infrastructure the run modes share. It is built by
// Wire and released by the cleanup function Wire returns.
type Dependencies struct {
	// Always set. Backed by Redis when enabled, in-process otherwise.
	SignalBus domain.SignalBus

	// Redis-backed, nil when Redis is disabled.
	PriceCache  domain.PriceCache
	BookCache   domain.BookCache
	RateLimiter domain.RateLimiter

	// Postgres-backed, nil when Postgres is disabled.
	VenueStore   domain.VenueStore
	SessionStore domain.SessionEventStore

	Registry *prometheus.Registry
	Metrics  *instrumentation.Metrics
}

// Wire constructs the infrastructure described by cfg and returns it with a
// cleanup function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Registry = reg
	deps.Metrics = instrumentation.NewMetrics(reg)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		namespace := "bookmap:" + cfg.Heatmap.Symbol
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Stream.MaxLen)
		deps.PriceCache = redis.NewPriceCache(redisClient, namespace)
		deps.BookCache = redis.NewBookCache(redisClient, namespace, bookTTL)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		logger.InfoContext(ctx, "wire: redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.SignalBus = memory.NewBus(int(cfg.Stream.MaxLen))
		logger.InfoContext(ctx, "wire: redis disabled, using in-process signal bus")
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.VenueStore = postgres.NewVenueStore(pool)
		deps.SessionStore = postgres.NewSessionEventStore(pool)
	}

	return deps, cleanup, nil
}

// EngineConfig maps the file configuration onto the engine parameters.
func EngineConfig(cfg *config.Config) heatmap.Config {
	return heatmap.Config{
		Symbol:                   cfg.Heatmap.Symbol,
		Venues:                   cfg.VenueIDs(),
		BucketSize:               cfg.Heatmap.BucketSize,
		TimeWindow:               cfg.Heatmap.TimeWindow(),
		Resolution:               cfg.Heatmap.SnapshotResolution.Duration,
		MinPriceLevels:           cfg.Heatmap.MinPriceLevels,
		LayoutMode:               domain.LayoutMode(cfg.View.LayoutMode),
		VisiblePriceRangePercent: cfg.View.VisiblePriceRangePercent,
		Zoom:                     heatmap.ZoomBounds{Min: cfg.View.MinZoom, Max: cfg.View.MaxZoom},
		IntensityScale:           heatmap.IntensityScale(cfg.View.IntensityScale),
		Palette:                  cfg.View.Palette,
		PanelGap:                 cfg.View.PanelGap,
		PriceTicks:               cfg.View.PriceTicks,
		TimeTicks:                cfg.View.TimeTicks,
		ShowMinimap:              cfg.View.ShowMinimap,
		QueueSize:                cfg.Heatmap.QueueSize,
		EvictInterval:            cfg.Heatmap.EvictInterval.Duration,
	}
}

// Sources builds a feed source for every enabled venue together with its
// catalog entry.
func Sources(cfg *config.Config, logger *slog.Logger) ([]feed.Source, []domain.Venue, error) {
	var (
		sources []feed.Source
		venues  []domain.Venue
	)
	symbol := cfg.Heatmap.Symbol

	if c := cfg.Binance; c.Enabled {
		client := binance.NewClient(binance.Config{
			VenueID:     c.VenueID,
			WsHost:      c.WsHost,
			Symbol:      c.Symbol,
			DepthLevels: c.DepthLevels,
			UpdateSpeed: c.UpdateSpeed,
		}, logger)
		sources = append(sources, client)
		venues = append(venues, domain.Venue{ID: c.VenueID, Kind: domain.VenueKindCEX, Symbol: symbol, Endpoint: c.WsHost, Enabled: true})
	}

	if c := cfg.OKX; c.Enabled {
		client := okx.NewClient(okx.Config{
			VenueID:      c.VenueID,
			WsHost:       c.WsHost,
			InstID:       c.InstID,
			PingInterval: c.PingInterval.Duration,
		}, logger)
		sources = append(sources, client)
		venues = append(venues, domain.Venue{ID: c.VenueID, Kind: domain.VenueKindCEX, Symbol: symbol, Endpoint: c.WsHost, Enabled: true})
	}

	if c := cfg.Uniswap; c.Enabled {
		poller, err := uniswap.NewPoller(uniswap.Config{
			VenueID:     c.VenueID,
			Symbol:      symbol,
			RPCURL:      c.RPCURL,
			PoolAddress: c.PoolAddress,
			Pricing: uniswap.Pricing{
				Token0Decimals: c.Token0Decimals,
				Token1Decimals: c.Token1Decimals,
				Invert:         c.Invert,
			},
			Step:         cfg.Heatmap.BucketSize,
			Levels:       c.Levels,
			PollInterval: c.PollInterval.Duration,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: uniswap: %w", err)
		}
		sources = append(sources, poller)
		venues = append(venues, domain.Venue{ID: c.VenueID, Kind: domain.VenueKindDEX, Symbol: symbol, Endpoint: c.PoolAddress, Enabled: true})
	}

	return sources, venues, nil
}
