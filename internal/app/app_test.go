package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/cache/memory"
	"github.com/alanyoungcy/bookmap/internal/config"
	"github.com/alanyoungcy/bookmap/internal/domain"
	"github.com/alanyoungcy/bookmap/internal/heatmap"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestEngineConfigFromDefaults(t *testing.T) {
	cfg := config.Defaults()
	cfg.OKX.Enabled = true

	ec := EngineConfig(&cfg)
	assert.Equal(t, []string{"binance", "okx"}, ec.Venues)
	assert.Equal(t, domain.LayoutGrid, ec.LayoutMode)
	assert.Equal(t, cfg.Heatmap.TimeWindow(), ec.TimeWindow)

	engine, err := heatmap.New(ec, discard())
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", engine.Symbol())
}

func TestSources(t *testing.T) {
	cfg := config.Defaults()
	cfg.OKX.Enabled = true
	cfg.Uniswap.Enabled = true
	cfg.Uniswap.RPCURL = "http://localhost:8545"

	sources, venues, err := Sources(&cfg, discard())
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "binance", sources[0].VenueID())
	assert.Equal(t, "okx", sources[1].VenueID())
	assert.Equal(t, "uniswap", sources[2].VenueID())
	assert.Equal(t, domain.VenueKindDEX, venues[2].Kind)
	for _, v := range venues {
		assert.Equal(t, "BTC-USDT", v.Symbol)
		assert.True(t, v.Enabled)
	}

	cfg.Uniswap.PoolAddress = "not-an-address"
	_, _, err = Sources(&cfg, discard())
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestWireWithoutInfrastructure(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.Bus{}, deps.SignalBus)
	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.RateLimiter)
	assert.Nil(t, deps.VenueStore)
	require.NotNil(t, deps.Metrics)

	families, err := deps.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	svc, err := New(&cfg, discard()).newService(deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"binance"}, svc.Engine().Venues())
}
