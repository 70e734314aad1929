package heatmap

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func TestPriceHistoryAppendAndTrim(t *testing.T) {
	h := NewPriceHistory(10 * time.Second)

	for i := 0; i < 20; i++ {
		require.NoError(t, h.Append(domain.PricePoint{Timestamp: t0.Add(time.Duration(i) * time.Second), Price: 100 + float64(i)}))
	}
	assert.Equal(t, 11, h.Len())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 119.0, last.Price)

	h.Trim(t0.Add(time.Minute))
	assert.Equal(t, 0, h.Len())
	_, ok = h.Last()
	assert.False(t, ok)
}

func TestPriceHistoryRejects(t *testing.T) {
	h := NewPriceHistory(time.Minute)
	require.NoError(t, h.Append(domain.PricePoint{Timestamp: t0, Price: 100}))

	err := h.Append(domain.PricePoint{Timestamp: t0.Add(-time.Second), Price: 100})
	assert.ErrorIs(t, err, domain.ErrOutOfOrder)

	for _, p := range []float64{0, -3, math.NaN(), math.Inf(1)} {
		err = h.Append(domain.PricePoint{Timestamp: t0.Add(time.Second), Price: p})
		assert.ErrorIs(t, err, domain.ErrMalformedSnapshot)
	}
	assert.Equal(t, 1, h.Len())

	// Equal timestamps are accepted.
	require.NoError(t, h.Append(domain.PricePoint{Timestamp: t0, Price: 101}))
}

func TestPriceHistoryRange(t *testing.T) {
	h := NewPriceHistory(time.Minute)
	for i := 0; i < 10; i++ {
		require.NoError(t, h.Append(domain.PricePoint{Timestamp: t0.Add(time.Duration(i) * time.Second), Price: 100}))
	}

	got := h.Range(domain.TimeRange{From: t0.Add(2 * time.Second), To: t0.Add(4 * time.Second)})
	require.Len(t, got, 3)
	assert.Equal(t, t0.Add(2*time.Second), got[0].Timestamp)

	assert.Empty(t, h.Range(domain.TimeRange{From: t0.Add(time.Hour), To: t0.Add(2 * time.Hour)}))
}
