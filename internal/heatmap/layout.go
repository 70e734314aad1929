package heatmap

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// ComputeLayout arranges venues into panels for mode. It never reads the
// window: the result depends only on its arguments. An empty venue list yields
// a layout with no panels.
//
//   - single: the first venue alone, 1x1.
//   - grid: one combined panel followed by one panel per venue on a near
//     square grid; the last panel of a short final row widens to fill it.
//   - combined: one combined panel.
//   - split: the combined panel on top with each venue stacked below it.
func ComputeLayout(venues []string, mode domain.LayoutMode) (domain.LayoutConfig, error) {
	out := domain.LayoutConfig{Mode: mode, Panels: []domain.Panel{}}

	switch mode {
	case domain.LayoutSingle, domain.LayoutGrid, domain.LayoutCombined, domain.LayoutSplit:
	default:
		return out, fmt.Errorf("heatmap: layout mode %q: %w", mode, domain.ErrInvalidConfig)
	}
	if len(venues) == 0 {
		return out, nil
	}

	combined := domain.Panel{Venue: domain.CombinedVenue, WidthSpan: 1, IsCombined: true}
	venuePanel := func(v string) domain.Panel {
		return domain.Panel{Venue: v, WidthSpan: 1}
	}

	switch mode {
	case domain.LayoutSingle:
		out.Rows, out.Cols = 1, 1
		out.Panels = append(out.Panels, venuePanel(venues[0]))

	case domain.LayoutCombined:
		out.Rows, out.Cols = 1, 1
		out.Panels = append(out.Panels, combined)

	case domain.LayoutSplit:
		out.Rows, out.Cols = len(venues)+1, 1
		out.Panels = append(out.Panels, combined)
		for i, v := range venues {
			p := venuePanel(v)
			p.Row = i + 1
			out.Panels = append(out.Panels, p)
		}

	case domain.LayoutGrid:
		total := len(venues) + 1
		cols := int(math.Ceil(math.Sqrt(float64(total))))
		rows := (total + cols - 1) / cols
		out.Rows, out.Cols = rows, cols

		panels := make([]domain.Panel, 0, total)
		panels = append(panels, combined)
		for _, v := range venues {
			panels = append(panels, venuePanel(v))
		}
		for i := range panels {
			panels[i].Row = i / cols
			panels[i].Col = i % cols
		}
		if spare := rows*cols - total; spare > 0 {
			panels[total-1].WidthSpan += spare
		}
		out.Panels = panels
	}

	for i := range out.Panels {
		out.Panels[i].Index = i
	}
	return out, nil
}

// PanelRects divides canvas among the panels of layout, leaving gap pixels
// between neighbouring panels. The result is indexed like layout.Panels.
func PanelRects(layout domain.LayoutConfig, canvas domain.Rect, gap float64) []domain.Rect {
	rects := make([]domain.Rect, len(layout.Panels))
	if layout.Rows == 0 || layout.Cols == 0 {
		return rects
	}

	cellW := (canvas.W - gap*float64(layout.Cols-1)) / float64(layout.Cols)
	cellH := (canvas.H - gap*float64(layout.Rows-1)) / float64(layout.Rows)
	for i, p := range layout.Panels {
		span := p.WidthSpan
		if span < 1 {
			span = 1
		}
		rects[i] = domain.Rect{
			X: canvas.X + float64(p.Col)*(cellW+gap),
			Y: canvas.Y + float64(p.Row)*(cellH+gap),
			W: cellW*float64(span) + gap*float64(span-1),
			H: cellH,
		}
	}
	return rects
}
