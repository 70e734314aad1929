package heatmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func venueIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("v%d", i)
	}
	return out
}

func TestComputeLayoutGridIsNearSquare(t *testing.T) {
	for n := 1; n <= 20; n++ {
		layout, err := ComputeLayout(venueIDs(n), domain.LayoutGrid)
		require.NoError(t, err)

		cells := layout.Rows * layout.Cols
		assert.GreaterOrEqual(t, cells, n+1, "n=%d", n)
		assert.Less(t, cells-(n+1), max(layout.Rows, layout.Cols), "n=%d", n)
		require.Len(t, layout.Panels, n+1)
		assert.True(t, layout.Panels[0].IsCombined)

		// Every grid cell is covered exactly once.
		covered := make(map[[2]int]int)
		for _, p := range layout.Panels {
			for c := p.Col; c < p.Col+p.WidthSpan; c++ {
				covered[[2]int{p.Row, c}]++
			}
		}
		assert.Len(t, covered, cells, "n=%d", n)
		for k, v := range covered {
			assert.Equal(t, 1, v, "n=%d cell %v", n, k)
		}
	}
}

func TestComputeLayoutModes(t *testing.T) {
	venues := []string{"binance", "okx", "uniswap"}

	single, err := ComputeLayout(venues, domain.LayoutSingle)
	require.NoError(t, err)
	assert.Equal(t, 1, single.Rows)
	assert.Equal(t, 1, single.Cols)
	require.Len(t, single.Panels, 1)
	assert.Equal(t, "binance", single.Panels[0].Venue)
	assert.False(t, single.Panels[0].IsCombined)

	combined, err := ComputeLayout(venues, domain.LayoutCombined)
	require.NoError(t, err)
	require.Len(t, combined.Panels, 1)
	assert.True(t, combined.Panels[0].IsCombined)

	split, err := ComputeLayout(venues, domain.LayoutSplit)
	require.NoError(t, err)
	assert.Equal(t, 4, split.Rows)
	assert.Equal(t, 1, split.Cols)
	require.Len(t, split.Panels, 4)
	assert.True(t, split.Panels[0].IsCombined)
	for i, p := range split.Panels {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, i, p.Row)
		if i > 0 {
			assert.Equal(t, venues[i-1], p.Venue)
			assert.False(t, p.IsCombined)
		}
	}
}

func TestComputeLayoutEmptyAndInvalid(t *testing.T) {
	layout, err := ComputeLayout(nil, domain.LayoutGrid)
	require.NoError(t, err)
	assert.Empty(t, layout.Panels)

	_, err = ComputeLayout([]string{"a"}, domain.LayoutMode("mosaic"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestPanelRects(t *testing.T) {
	layout, err := ComputeLayout([]string{"a", "b", "c", "d"}, domain.LayoutGrid)
	require.NoError(t, err)
	require.Equal(t, 2, layout.Rows)
	require.Equal(t, 3, layout.Cols)

	rects := PanelRects(layout, domain.Rect{W: 620, H: 410}, 10)
	require.Len(t, rects, 5)
	assert.Equal(t, domain.Rect{X: 0, Y: 0, W: 200, H: 200}, rects[0])
	assert.Equal(t, domain.Rect{X: 210, Y: 0, W: 200, H: 200}, rects[1])
	assert.Equal(t, domain.Rect{X: 0, Y: 210, W: 200, H: 200}, rects[3])
	// The last panel widens over the spare cell.
	assert.Equal(t, domain.Rect{X: 210, Y: 210, W: 410, H: 200}, rects[4])
}
