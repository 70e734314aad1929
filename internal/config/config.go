// Package config defines the top-level configuration for the bookmap service
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// or YAML file and then optionally overridden by BOOKMAP_* environment
// variables.
type Config struct {
	Heatmap  HeatmapConfig  `toml:"heatmap" yaml:"heatmap" envPrefix:"HEATMAP_"`
	View     ViewConfig     `toml:"view" yaml:"view" envPrefix:"VIEW_"`
	Binance  BinanceConfig  `toml:"binance" yaml:"binance" envPrefix:"BINANCE_"`
	OKX      OKXConfig      `toml:"okx" yaml:"okx" envPrefix:"OKX_"`
	Uniswap  UniswapConfig  `toml:"uniswap" yaml:"uniswap" envPrefix:"UNISWAP_"`
	Stream   StreamConfig   `toml:"stream" yaml:"stream" envPrefix:"STREAM_"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis" envPrefix:"REDIS_"`
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres" envPrefix:"POSTGRES_"`
	Server   ServerConfig   `toml:"server" yaml:"server" envPrefix:"SERVER_"`
	Mode     string         `toml:"mode" yaml:"mode" env:"MODE"`
	LogLevel string         `toml:"log_level" yaml:"log_level" env:"LOG_LEVEL"`
}

// HeatmapConfig holds the aggregation and windowing parameters.
type HeatmapConfig struct {
	Symbol             string   `toml:"symbol" yaml:"symbol" env:"SYMBOL"`
	Venues             []string `toml:"venues" yaml:"venues" env:"VENUES"`
	BucketSize         float64  `toml:"bucket_size" yaml:"bucket_size" env:"BUCKET_SIZE"`
	TimeWindowSeconds  int      `toml:"time_window_seconds" yaml:"time_window_seconds" env:"TIME_WINDOW_SECONDS"`
	SnapshotResolution Duration `toml:"snapshot_resolution" yaml:"snapshot_resolution" env:"SNAPSHOT_RESOLUTION"`
	MinPriceLevels     int      `toml:"min_price_levels" yaml:"min_price_levels" env:"MIN_PRICE_LEVELS"`
	QueueSize          int      `toml:"queue_size" yaml:"queue_size" env:"QUEUE_SIZE"`
	EvictInterval      Duration `toml:"evict_interval" yaml:"evict_interval" env:"EVICT_INTERVAL"`
	PublishInterval    Duration `toml:"publish_interval" yaml:"publish_interval" env:"PUBLISH_INTERVAL"`
}

// TimeWindow returns the window as a duration.
func (h HeatmapConfig) TimeWindow() time.Duration {
	return time.Duration(h.TimeWindowSeconds) * time.Second
}

// ViewConfig holds the initial display parameters.
type ViewConfig struct {
	LayoutMode               string   `toml:"layout_mode" yaml:"layout_mode" env:"LAYOUT_MODE"`
	VisiblePriceRangePercent float64  `toml:"visible_price_range_percent" yaml:"visible_price_range_percent" env:"VISIBLE_PRICE_RANGE_PERCENT"`
	MinZoom                  float64  `toml:"min_zoom" yaml:"min_zoom" env:"MIN_ZOOM"`
	MaxZoom                  float64  `toml:"max_zoom" yaml:"max_zoom" env:"MAX_ZOOM"`
	IntensityScale           string   `toml:"intensity_scale" yaml:"intensity_scale" env:"INTENSITY_SCALE"`
	Palette                  []string `toml:"palette" yaml:"palette" env:"PALETTE"`
	PanelGap                 float64  `toml:"panel_gap" yaml:"panel_gap" env:"PANEL_GAP"`
	PriceTicks               int      `toml:"price_ticks" yaml:"price_ticks" env:"PRICE_TICKS"`
	TimeTicks                int      `toml:"time_ticks" yaml:"time_ticks" env:"TIME_TICKS"`
	ShowMinimap              bool     `toml:"show_minimap" yaml:"show_minimap" env:"SHOW_MINIMAP"`
}

// BinanceConfig holds the Binance spot WebSocket parameters.
type BinanceConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	VenueID     string `toml:"venue_id" yaml:"venue_id" env:"VENUE_ID"`
	WsHost      string `toml:"ws_host" yaml:"ws_host" env:"WS_HOST"`
	Symbol      string `toml:"symbol" yaml:"symbol" env:"SYMBOL"`
	DepthLevels int    `toml:"depth_levels" yaml:"depth_levels" env:"DEPTH_LEVELS"`
	UpdateSpeed string `toml:"update_speed" yaml:"update_speed" env:"UPDATE_SPEED"`
}

// OKXConfig holds the OKX public WebSocket parameters.
type OKXConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	VenueID      string   `toml:"venue_id" yaml:"venue_id" env:"VENUE_ID"`
	WsHost       string   `toml:"ws_host" yaml:"ws_host" env:"WS_HOST"`
	InstID       string   `toml:"inst_id" yaml:"inst_id" env:"INST_ID"`
	PingInterval Duration `toml:"ping_interval" yaml:"ping_interval" env:"PING_INTERVAL"`
}

// UniswapConfig holds the Uniswap v3 pool poller parameters.
type UniswapConfig struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	VenueID        string   `toml:"venue_id" yaml:"venue_id" env:"VENUE_ID"`
	RPCURL         string   `toml:"rpc_url" yaml:"rpc_url" env:"RPC_URL"`
	PoolAddress    string   `toml:"pool_address" yaml:"pool_address" env:"POOL_ADDRESS"`
	Token0Decimals int      `toml:"token0_decimals" yaml:"token0_decimals" env:"TOKEN0_DECIMALS"`
	Token1Decimals int      `toml:"token1_decimals" yaml:"token1_decimals" env:"TOKEN1_DECIMALS"`
	Invert         bool     `toml:"invert" yaml:"invert" env:"INVERT"`
	Levels         int      `toml:"levels" yaml:"levels" env:"LEVELS"`
	PollInterval   Duration `toml:"poll_interval" yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// StreamConfig holds the Redis stream used between relay and view modes.
type StreamConfig struct {
	Key    string   `toml:"key" yaml:"key" env:"KEY"`
	MaxLen int64    `toml:"max_len" yaml:"max_len" env:"MAX_LEN"`
	Count  int      `toml:"count" yaml:"count" env:"COUNT"`
	Block  Duration `toml:"block" yaml:"block" env:"BLOCK"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Addr       string   `toml:"addr" yaml:"addr" env:"ADDR"`
	Password   string   `toml:"password" yaml:"password" env:"PASSWORD"`
	DB         int      `toml:"db" yaml:"db" env:"DB"`
	PoolSize   int      `toml:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	MaxRetries int      `toml:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
	TLSEnabled bool     `toml:"tls_enabled" yaml:"tls_enabled" env:"TLS_ENABLED"`
	RateLimit  int      `toml:"rate_limit" yaml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow Duration `toml:"rate_window" yaml:"rate_window" env:"RATE_WINDOW"`
}

// PostgresConfig holds connection parameters for the venue catalog.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	DSN           string `toml:"dsn" yaml:"dsn" env:"DSN"`
	Host          string `toml:"host" yaml:"host" env:"HOST"`
	Port          int    `toml:"port" yaml:"port" env:"PORT"`
	Database      string `toml:"database" yaml:"database" env:"DATABASE"`
	User          string `toml:"user" yaml:"user" env:"USER"`
	Password      string `toml:"password" yaml:"password" env:"PASSWORD"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode" env:"SSL_MODE"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns" env:"POOL_MAX_CONNS"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns" env:"POOL_MIN_CONNS"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations" env:"RUN_MIGRATIONS"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port" yaml:"port" env:"PORT"`
	CORSOrigins  []string `toml:"cors_origins" yaml:"cors_origins" env:"CORS_ORIGINS"`
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// Duration wraps time.Duration so config files can use strings such as
// "100ms" or "5s".
type Duration struct {
	time.Duration
}

// Dur is shorthand for building a Duration.
func Dur(d time.Duration) Duration {
	return Duration{d}
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder and
// environment overrides.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts the same strings as UnmarshalText.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Defaults returns a Config populated with a working single-venue setup on
// Binance BTCUSDT.
func Defaults() Config {
	return Config{
		Heatmap: HeatmapConfig{
			Symbol:             "BTC-USDT",
			BucketSize:         10,
			TimeWindowSeconds:  300,
			SnapshotResolution: Dur(time.Second),
			MinPriceLevels:     50,
			QueueSize:          4096,
			EvictInterval:      Dur(time.Second),
			PublishInterval:    Dur(250 * time.Millisecond),
		},
		View: ViewConfig{
			LayoutMode:               string(domain.LayoutGrid),
			VisiblePriceRangePercent: 2,
			MinZoom:                  0.1,
			MaxZoom:                  50,
			IntensityScale:           "sqrt",
			Palette:                  []string{"#0b1026", "#1f4e9c", "#22c1c3", "#f6d743", "#ffffff"},
			PanelGap:                 8,
			PriceTicks:               8,
			TimeTicks:                6,
			ShowMinimap:              true,
		},
		Binance: BinanceConfig{
			Enabled:     true,
			VenueID:     "binance",
			WsHost:      "wss://stream.binance.com:9443",
			Symbol:      "btcusdt",
			DepthLevels: 20,
			UpdateSpeed: "100ms",
		},
		OKX: OKXConfig{
			VenueID:      "okx",
			WsHost:       "wss://ws.okx.com:8443/ws/v5/public",
			InstID:       "BTC-USDT",
			PingInterval: Dur(25 * time.Second),
		},
		Uniswap: UniswapConfig{
			VenueID:        "uniswap",
			PoolAddress:    "0x99ac8cA7087fA4A2A1FB6357269965A2014ABc35",
			Token0Decimals: 8,
			Token1Decimals: 6,
			Levels:         25,
			PollInterval:   Dur(2 * time.Second),
		},
		Stream: StreamConfig{
			Key:    "bookmap:snapshots",
			MaxLen: 100_000,
			Count:  256,
			Block:  Dur(2 * time.Second),
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			RateLimit:  120,
			RateWindow: Dur(time.Minute),
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bookmap",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:  Dur(15 * time.Second),
			WriteTimeout: Dur(15 * time.Second),
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// VenueIDs returns the configured venue list followed by the id of every
// enabled feed not already listed.
func (c *Config) VenueIDs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, v := range c.Heatmap.Venues {
		add(v)
	}
	if c.Binance.Enabled {
		add(c.Binance.VenueID)
	}
	if c.OKX.Enabled {
		add(c.OKX.VenueID)
	}
	if c.Uniswap.Enabled {
		add(c.Uniswap.VenueID)
	}
	return out
}

// FeedsEnabled reports whether any venue feed is switched on.
func (c *Config) FeedsEnabled() bool {
	return c.Binance.Enabled || c.OKX.Enabled || c.Uniswap.Enabled
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":  true,
	"relay": true,
	"view":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validScales = map[string]bool{
	"sqrt": true,
	"log":  true,
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found. The error matches
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, relay, view)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Heatmap
	h := c.Heatmap
	if strings.TrimSpace(h.Symbol) == "" {
		errs = append(errs, "heatmap: symbol must not be empty")
	}
	if h.BucketSize <= 0 {
		errs = append(errs, fmt.Sprintf("heatmap: bucket_size must be > 0, got %v", h.BucketSize))
	}
	if h.TimeWindowSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("heatmap: time_window_seconds must be > 0, got %d", h.TimeWindowSeconds))
	}
	if h.SnapshotResolution.Duration <= 0 {
		errs = append(errs, "heatmap: snapshot_resolution must be > 0")
	}
	if h.MinPriceLevels < 2 {
		errs = append(errs, fmt.Sprintf("heatmap: min_price_levels must be >= 2, got %d", h.MinPriceLevels))
	}
	if h.QueueSize < 1 {
		errs = append(errs, "heatmap: queue_size must be >= 1")
	}
	if h.EvictInterval.Duration <= 0 {
		errs = append(errs, "heatmap: evict_interval must be > 0")
	}
	if mode != "relay" && len(c.VenueIDs()) == 0 {
		errs = append(errs, "heatmap: no venues configured (set heatmap.venues or enable a feed)")
	}
	for _, v := range c.VenueIDs() {
		if v == domain.CombinedVenue {
			errs = append(errs, fmt.Sprintf("heatmap: venue id %q is reserved", v))
		}
	}

	// View
	v := c.View
	if _, err := domain.ParseLayoutMode(v.LayoutMode); err != nil {
		errs = append(errs, fmt.Sprintf("view: unknown layout_mode %q (valid: single, grid, combined, split)", v.LayoutMode))
	}
	if v.VisiblePriceRangePercent <= 0 || v.VisiblePriceRangePercent > 100 {
		errs = append(errs, fmt.Sprintf("view: visible_price_range_percent must be in (0, 100], got %v", v.VisiblePriceRangePercent))
	}
	if v.MinZoom <= 0 || v.MinZoom > 1 || v.MaxZoom < 1 {
		errs = append(errs, fmt.Sprintf("view: zoom bounds must satisfy 0 < min_zoom <= 1 <= max_zoom, got [%v, %v]", v.MinZoom, v.MaxZoom))
	}
	if !validScales[strings.ToLower(v.IntensityScale)] {
		errs = append(errs, fmt.Sprintf("view: unknown intensity_scale %q (valid: sqrt, log)", v.IntensityScale))
	}
	if len(v.Palette) > 0 && len(v.Palette) < 2 {
		errs = append(errs, "view: palette needs at least two colors")
	}
	if v.PanelGap < 0 {
		errs = append(errs, "view: panel_gap must be >= 0")
	}

	// Feeds
	if mode != "view" {
		if !c.FeedsEnabled() {
			errs = append(errs, "feeds: at least one of binance, okx, uniswap must be enabled for mode "+mode)
		}
		if c.Binance.Enabled {
			if c.Binance.VenueID == "" || c.Binance.Symbol == "" {
				errs = append(errs, "binance: venue_id and symbol are required")
			}
			if err := checkWSURL(c.Binance.WsHost); err != nil {
				errs = append(errs, "binance: "+err.Error())
			}
			switch c.Binance.DepthLevels {
			case 5, 10, 20:
			default:
				errs = append(errs, fmt.Sprintf("binance: depth_levels must be 5, 10 or 20, got %d", c.Binance.DepthLevels))
			}
		}
		if c.OKX.Enabled {
			if c.OKX.VenueID == "" || c.OKX.InstID == "" {
				errs = append(errs, "okx: venue_id and inst_id are required")
			}
			if err := checkWSURL(c.OKX.WsHost); err != nil {
				errs = append(errs, "okx: "+err.Error())
			}
		}
		if c.Uniswap.Enabled {
			if c.Uniswap.VenueID == "" || c.Uniswap.RPCURL == "" || c.Uniswap.PoolAddress == "" {
				errs = append(errs, "uniswap: venue_id, rpc_url and pool_address are required")
			}
			if c.Uniswap.Levels < 1 {
				errs = append(errs, "uniswap: levels must be >= 1")
			}
			if c.Uniswap.PollInterval.Duration <= 0 {
				errs = append(errs, "uniswap: poll_interval must be > 0")
			}
		}
	}

	// Redis and the stream are required whenever the stream is the transport.
	if mode == "relay" || mode == "view" {
		if !c.Redis.Enabled {
			errs = append(errs, "redis: must be enabled for mode "+mode)
		}
		if c.Stream.Key == "" {
			errs = append(errs, "stream: key must not be empty")
		}
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if mode != "relay" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed:\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("ws_host %q: %v", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("ws_host %q must use ws:// or wss://", raw)
	}
	return nil
}
