package uniswap

import (
	"io"
	"log/slog"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func x96(sqrtPrice float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(sqrtPrice), q96)
	i, _ := f.Int(nil)
	return i
}

func TestPrice(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), 96)

	assert.InDelta(t, 1.0, Pricing{}.Price(one), 1e-12)
	assert.InDelta(t, 4.0, Pricing{}.Price(x96(2)), 1e-9)
	// WBTC (8) / USDC (6): raw 1 is 100 USDC per WBTC.
	assert.InDelta(t, 100.0, Pricing{Token0Decimals: 8, Token1Decimals: 6}.Price(one), 1e-9)
	assert.InDelta(t, 0.01, Pricing{Token0Decimals: 8, Token1Decimals: 6, Invert: true}.Price(one), 1e-12)
}

func TestDepthToken0Bands(t *testing.T) {
	state := PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Liquidity: big.NewInt(1000)}

	price, bids, asks, err := Pricing{}.Depth(state, 0.1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, price, 1e-12)
	require.Len(t, asks, 2)
	require.Len(t, bids, 2)

	assert.InDelta(t, 1.05, asks[0].Price, 1e-12)
	assert.InDelta(t, 1000*(1-1/math.Sqrt(1.1)), asks[0].Size, 1e-9)
	assert.InDelta(t, 1000*(1/math.Sqrt(1.1)-1/math.Sqrt(1.2)), asks[1].Size, 1e-9)

	assert.InDelta(t, 0.95, bids[0].Price, 1e-12)
	assert.InDelta(t, 1000*(1/math.Sqrt(0.9)-1), bids[0].Size, 1e-9)

	// Bands telescope: their sum equals one band spanning all of them.
	total := asks[0].Size + asks[1].Size
	assert.InDelta(t, 1000*(1-1/math.Sqrt(1.2)), total, 1e-9)
}

func TestDepthInvertedUsesToken1(t *testing.T) {
	state := PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Liquidity: big.NewInt(1000)}
	p := Pricing{Invert: true}

	price, _, asks, err := p.Depth(state, 0.5, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, price, 1e-12)
	// Display prices [1, 1.5] are raw prices [1/1.5, 1].
	assert.InDelta(t, 1000*(1-math.Sqrt(1/1.5)), asks[0].Size, 1e-9)
}

func TestDepthSkipsNonPositiveBids(t *testing.T) {
	state := PoolState{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Liquidity: big.NewInt(10)}
	_, bids, asks, err := Pricing{}.Depth(state, 0.4, 3)
	require.NoError(t, err)
	assert.Len(t, asks, 3)
	assert.Len(t, bids, 2)
	for _, b := range bids {
		assert.Greater(t, b.Price, 0.0)
		assert.Greater(t, b.Size, 0.0)
	}
}

func TestDepthRejectsBadInput(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), 96)

	_, _, _, err := Pricing{}.Depth(PoolState{SqrtPriceX96: big.NewInt(0), Liquidity: big.NewInt(1)}, 1, 1)
	assert.ErrorIs(t, err, domain.ErrMalformedSnapshot)
	_, _, _, err = Pricing{}.Depth(PoolState{SqrtPriceX96: one, Liquidity: big.NewInt(1)}, 0, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	price, bids, asks, err := Pricing{}.Depth(PoolState{SqrtPriceX96: one, Liquidity: big.NewInt(0)}, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, price, 1e-12)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestPollerToDomain(t *testing.T) {
	_, err := NewPoller(Config{PoolAddress: "not-an-address"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	p, err := NewPoller(Config{
		VenueID:     "uniswap",
		Symbol:      "BTC-USDT",
		PoolAddress: "0x99ac8cA7087fA4A2A1FB6357269965A2014ABc35",
		Pricing:     Pricing{Token0Decimals: 8, Token1Decimals: 6},
		Step:        10,
		Levels:      3,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ts := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	book, trade, err := p.toDomain(PoolState{SqrtPriceX96: x96(20), Liquidity: big.NewInt(1e12)}, ts)
	require.NoError(t, err)
	assert.InDelta(t, 40000.0, trade.Price, 1e-6)
	assert.Equal(t, "uniswap", book.VenueID)
	assert.Len(t, book.Asks, 3)
	assert.Len(t, book.Bids, 3)
	assert.Equal(t, ts, book.Timestamp)
}
