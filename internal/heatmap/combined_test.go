package heatmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinedLiquidityAcrossVenues(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 101, 3, 100, 5)))
	require.NoError(t, w.Append(snapshot("B", t0, 102, 4, 100, 2)))
	require.NoError(t, w.Append(snapshot("C", t0)))
	s := w.Snapshots()[0]

	at100 := CombinedLiquidity(s, 100)
	assert.Equal(t, 7.0, at100.Total)
	assert.Equal(t, map[string]float64{"A": 5, "B": 2}, at100.Breakdown)

	assert.Equal(t, 3.0, CombinedLiquidity(s, 101).Total)
	assert.Equal(t, map[string]float64{"A": 3}, CombinedLiquidity(s, 101).Breakdown)
	assert.Equal(t, 4.0, CombinedLiquidity(s, 102).Total)

	missing := CombinedLiquidity(s, 250)
	assert.Zero(t, missing.Total)
	assert.Empty(t, missing.Breakdown)
}

func TestCombinedTotalEqualsMatrixSum(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 105, 1.5, 103, 2, 100, 5)))
	require.NoError(t, w.Append(snapshot("B", t0, 104, 4, 103, 0.25)))
	require.NoError(t, w.Append(snapshot("C", t0, 103, 7, 100, 1)))
	s := w.Snapshots()[0]

	totals := CombinedTotals(s)
	for pi, p := range s.Prices {
		var sum float64
		for vi := range s.Venues {
			sum += s.Matrix[vi][pi]
		}
		assert.InDelta(t, sum, CombinedLiquidity(s, p).Total, 1e-12, "price %v", p)
		assert.InDelta(t, sum, totals[pi], 1e-12, "price %v", p)
	}
}

func TestMaxLiquidity(t *testing.T) {
	w := newTestBuffer(t)
	require.NoError(t, w.Append(snapshot("A", t0, 101, 3, 100, 5)))
	require.NoError(t, w.Append(snapshot("B", t0, 100, 4)))
	require.NoError(t, w.Append(snapshot("B", t0.Add(1e9), 100, 6)))
	snaps := w.Snapshots()

	assert.Equal(t, 5.0, maxVenueLiquidity(snaps, "A"))
	assert.Equal(t, 6.0, maxVenueLiquidity(snaps, "B"))
	assert.Equal(t, 0.0, maxVenueLiquidity(snaps, "Z"))
	assert.Equal(t, 9.0, maxCombinedLiquidity(snaps))
}
