package heatmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func snapshot(venue string, ts time.Time, levels ...float64) domain.VenueSnapshot {
	s := domain.VenueSnapshot{VenueID: venue, Timestamp: ts, Liquidity: map[float64]float64{}}
	for i := 0; i+1 < len(levels); i += 2 {
		s.Prices = append(s.Prices, levels[i])
		s.Liquidity[levels[i]] = levels[i+1]
	}
	return s
}

func newTestBuffer(t *testing.T) *WindowBuffer {
	t.Helper()
	w, err := NewWindowBuffer(time.Second)
	require.NoError(t, err)
	return w
}

var everything = domain.PriceRange{Min: 0, Max: 1e9}

func TestWindowBufferMergesSameSlot(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 101, 3, 100, 5)))
	require.NoError(t, w.Append(snapshot("B", t0.Add(300*time.Millisecond), 102, 4, 100, 2)))

	snaps := w.Snapshots()
	require.Len(t, snaps, 1)
	s := snaps[0]
	assert.Equal(t, t0, s.Timestamp)
	assert.Equal(t, []string{"A", "B"}, s.Venues)
	assert.Equal(t, []float64{102, 101, 100}, s.Prices)
	assert.Equal(t, []float64{102, 101, 100}, w.Prices())
	assert.Equal(t, []string{"A", "B"}, w.Venues())
}

func TestWindowBufferBackfillsNewPricesWithZero(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 101, 3, 100, 5)))
	before := w.Snapshots()[0]

	require.NoError(t, w.Append(snapshot("B", t0, 102, 4, 100, 2)))
	after := w.Snapshots()[0]

	assert.Equal(t, 0.0, after.Value("A", 102), "A never reported 102")
	assert.Equal(t, 5.0, after.Value("A", 100))
	assert.Equal(t, 3.0, after.Value("A", 101))
	assert.Equal(t, 4.0, after.Value("B", 102))
	assert.Equal(t, 0.0, after.Value("B", 101))

	// The previously published snapshot is untouched.
	assert.Equal(t, []float64{101, 100}, before.Prices)
	assert.Equal(t, []string{"A"}, before.Venues)
	assert.Equal(t, [][]float64{{3, 5}}, before.Matrix)
}

func TestWindowBufferReplacesVenueRowInSlot(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 100, 5)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(500*time.Millisecond), 100, 1)))

	require.Equal(t, 1, w.Len())
	assert.Equal(t, 1.0, w.Snapshots()[0].Value("A", 100))
}

func TestWindowBufferRejectsOutOfOrder(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 100, 1)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(5*time.Second), 100, 1)))
	version := w.Version()

	err := w.Append(snapshot("B", t0.Add(2*time.Second), 100, 1))
	assert.ErrorIs(t, err, domain.ErrOutOfOrder)
	assert.Equal(t, version, w.Version())
	assert.Equal(t, 2, w.Len())

	// A late report for a retained slot is merged instead.
	require.NoError(t, w.Append(snapshot("B", t0, 100, 2)))
	assert.Equal(t, 2.0, w.Snapshots()[0].Value("B", 100))
}

func TestWindowBufferEvictsByWindow(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 100, 1)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(61*time.Second), 200, 1)))

	n := w.Evict(t0.Add(61*time.Second), 60*time.Second)
	assert.Equal(t, 1, n)

	got := w.QueryRange(domain.TimeRange{From: t0.Add(-time.Hour), To: t0.Add(time.Hour)}, everything)
	require.Len(t, got, 1)
	assert.Equal(t, t0.Add(61*time.Second), got[0].Timestamp)
	assert.Equal(t, []float64{200}, w.Prices(), "evicted prices leave the axis")
}

func TestWindowBufferEvictKeepsBoundary(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 100, 1)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(60*time.Second), 100, 1)))

	assert.Equal(t, 0, w.Evict(t0.Add(60*time.Second), 60*time.Second))
	assert.Equal(t, 2, w.Len())
}

func TestWindowBufferNeverHoldsExpiredAfterEvict(t *testing.T) {
	w := newTestBuffer(t)
	window := 10 * time.Second
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * 700 * time.Millisecond)
		require.NoError(t, w.Append(snapshot("A", now, 100+float64(i%7), 1)))
		w.Evict(now, window)
		for _, s := range w.Snapshots() {
			assert.False(t, s.Timestamp.Before(now.Add(-window)))
		}
	}
}

func TestWindowBufferQueryRangeFilters(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 100, 1)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(time.Second), 150, 1)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(2*time.Second), 200, 1)))

	got := w.QueryRange(domain.TimeRange{From: t0, To: t0.Add(2 * time.Second)}, domain.PriceRange{Min: 140, Max: 210})
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(time.Second), got[0].Timestamp)

	got = w.QueryRange(domain.TimeRange{From: t0.Add(time.Second), To: t0.Add(time.Second)}, everything)
	require.Len(t, got, 1)

	assert.Empty(t, w.QueryRange(domain.TimeRange{From: t0.Add(time.Hour), To: t0.Add(2 * time.Hour)}, everything))
}

func TestWindowBufferQueryIsStableAcrossEviction(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 100, 1)))
	require.NoError(t, w.Append(snapshot("A", t0.Add(time.Second), 100, 2)))

	got := w.QueryRange(domain.TimeRange{From: t0, To: t0.Add(time.Second)}, everything)
	w.Evict(t0.Add(time.Hour), time.Second)

	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Value("A", 100))
	assert.Equal(t, 0, w.Len())
	_, ok := w.PriceBounds()
	assert.False(t, ok)
}

func TestWindowBufferPriceBounds(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 103, 1, 99, 1)))
	require.NoError(t, w.Append(snapshot("B", t0, 101, 1)))

	r, ok := w.PriceBounds()
	require.True(t, ok)
	assert.Equal(t, domain.PriceRange{Min: 99, Max: 103}, r)
}

func TestNewWindowBufferRejectsResolution(t *testing.T) {
	_, err := NewWindowBuffer(0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
