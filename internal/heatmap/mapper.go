package heatmap

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// IntensityScale names the compression applied to liquidity ratios before
// coloring.
type IntensityScale string

const (
	ScaleSqrt IntensityScale = "sqrt"
	ScaleLog  IntensityScale = "log"
)

// ParseIntensityScale converts s into an IntensityScale.
func ParseIntensityScale(s string) (IntensityScale, error) {
	switch sc := IntensityScale(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScaleSqrt, ScaleLog:
		return sc, nil
	default:
		return "", fmt.Errorf("heatmap: intensity scale %q: %w", s, domain.ErrInvalidConfig)
	}
}

// logCurve controls how strongly the log scale lifts small ratios.
const logCurve = 9.0

// Apply maps a liquidity ratio in [0, 1] to an intensity in [0, 1]. Both
// scales lift small values and compress the long tail of very deep levels.
func (sc IntensityScale) Apply(ratio float64) float64 {
	if ratio <= 0 || math.IsNaN(ratio) {
		return 0
	}
	if ratio > 1 {
		ratio = 1
	}
	if sc == ScaleLog {
		return math.Log1p(logCurve*ratio) / math.Log1p(logCurve)
	}
	return math.Sqrt(ratio)
}

type rgb struct{ r, g, b float64 }

// Palette is an ordered list of color stops from background to hottest.
type Palette []rgb

// DefaultPalette runs from near background through cyan and yellow to white.
var DefaultPalette = []string{"#0b1026", "#1f4e9c", "#22c1c3", "#f6d743", "#ffffff"}

// ParsePalette converts hex color stops ("#rrggbb") into a Palette.
func ParsePalette(stops []string) (Palette, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("heatmap: palette needs at least two stops: %w", domain.ErrInvalidConfig)
	}
	out := make(Palette, 0, len(stops))
	for _, s := range stops {
		h := strings.TrimPrefix(strings.TrimSpace(s), "#")
		if len(h) != 6 {
			return nil, fmt.Errorf("heatmap: palette stop %q: %w", s, domain.ErrInvalidConfig)
		}
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("heatmap: palette stop %q: %w", s, domain.ErrInvalidConfig)
		}
		out = append(out, rgb{float64(v >> 16 & 0xff), float64(v >> 8 & 0xff), float64(v & 0xff)})
	}
	return out, nil
}

// Color interpolates the palette at intensity t in [0, 1].
func (p Palette) Color(t float64) string {
	if len(p) == 0 {
		return "#000000"
	}
	t = math.Min(1, math.Max(0, t))
	pos := t * float64(len(p)-1)
	i := int(pos)
	if i >= len(p)-1 {
		c := p[len(p)-1]
		return hex(c)
	}
	f := pos - float64(i)
	a, b := p[i], p[i+1]
	return hex(rgb{a.r + (b.r-a.r)*f, a.g + (b.g-a.g)*f, a.b + (b.b-a.b)*f})
}

func hex(c rgb) string {
	return fmt.Sprintf("#%02x%02x%02x", uint8(math.Round(c.r)), uint8(math.Round(c.g)), uint8(math.Round(c.b)))
}

// Mapper converts window data into panel-local pixels. It is a plain value
// with no hidden state; the same inputs always produce the same cells.
type Mapper struct {
	Width        float64
	Height       float64
	Time         domain.TimeRange
	Price        domain.PriceRange
	MaxLiquidity float64
	CellDuration time.Duration
	BucketSize   float64
	Scale        IntensityScale
	Palette      Palette

	// Venues restricts combined cells to these rows. Empty means all.
	Venues []string
}

// X maps a timestamp onto the horizontal axis.
func (m Mapper) X(t time.Time) float64 {
	span := m.Time.Duration()
	if span <= 0 {
		return 0
	}
	return float64(t.Sub(m.Time.From)) / float64(span) * m.Width
}

// Y maps a price onto the vertical axis, higher prices nearer the top.
func (m Mapper) Y(p float64) float64 {
	span := m.Price.Span()
	if span <= 0 {
		return 0
	}
	return (m.Price.Max - p) / span * m.Height
}

// Intensity returns the compressed intensity of liquidity relative to the
// window maximum.
func (m Mapper) Intensity(liquidity float64) float64 {
	if m.MaxLiquidity <= 0 {
		return 0
	}
	return m.Scale.Apply(liquidity / m.MaxLiquidity)
}

// MapVenue returns the cells of one venue's row in s. Cells with no liquidity
// or entirely outside the panel are skipped.
func (m Mapper) MapVenue(s *domain.AggregateSnapshot, venue string) []domain.Cell {
	vi, ok := s.VenueIndex(venue)
	if !ok {
		return nil
	}
	row := s.Matrix[vi]
	return m.mapRow(s, func(pi int) (float64, map[string]float64) { return row[pi], nil })
}

// MapCombined returns the combined cells of s, each carrying its per-venue
// breakdown.
func (m Mapper) MapCombined(s *domain.AggregateSnapshot) []domain.Cell {
	totals := CombinedTotals(s, m.Venues...)
	return m.mapRow(s, func(pi int) (float64, map[string]float64) {
		if totals[pi] == 0 {
			return 0, nil
		}
		return totals[pi], CombinedLiquidity(s, s.Prices[pi], m.Venues...).Breakdown
	})
}

func (m Mapper) mapRow(s *domain.AggregateSnapshot, value func(pi int) (float64, map[string]float64)) []domain.Cell {
	if m.Width <= 0 || m.Height <= 0 || m.Price.Empty() || m.Time.Duration() <= 0 {
		return nil
	}

	x := m.X(s.Timestamp)
	w := float64(m.CellDuration) / float64(m.Time.Duration()) * m.Width
	if x >= m.Width || x+w <= 0 {
		return nil
	}
	halfBucket := m.BucketSize / 2
	h := m.BucketSize / m.Price.Span() * m.Height

	// Prices are descending: skip rows whose bottom edge is above the panel.
	start := sort.Search(len(s.Prices), func(i int) bool { return s.Prices[i]-halfBucket <= m.Price.Max })

	var cells []domain.Cell
	for pi := start; pi < len(s.Prices); pi++ {
		p := s.Prices[pi]
		if p+halfBucket < m.Price.Min {
			break
		}
		v, breakdown := value(pi)
		if v <= 0 {
			continue
		}
		intensity := m.Intensity(v)
		cells = append(cells, domain.Cell{
			X:         x,
			Y:         m.Y(p + halfBucket),
			W:         w,
			H:         h,
			Timestamp: s.Timestamp,
			Price:     p,
			Liquidity: v,
			Intensity: intensity,
			Color:     m.Palette.Color(intensity),
			Breakdown: breakdown,
		})
	}
	return cells
}

// MapTrace returns the trace vertices inside the panel's time range.
func (m Mapper) MapTrace(points []domain.PricePoint) []domain.TracePoint {
	out := make([]domain.TracePoint, 0, len(points))
	for _, p := range points {
		if !m.Time.Contains(p.Timestamp) {
			continue
		}
		out = append(out, domain.TracePoint{
			X:         m.X(p.Timestamp),
			Y:         m.Y(p.Price),
			Timestamp: p.Timestamp,
			Price:     p.Price,
		})
	}
	return out
}

// Downsample reduces cells to at most one per canvas pixel, keyed by the
// pixel holding each cell's top-left corner. The most liquid cell of a pixel
// survives, stretched to cover the extent of the cells it replaces.
func Downsample(cells []domain.Cell) []domain.Cell {
	type pixel struct{ x, y int }
	index := make(map[pixel]int, len(cells))
	out := make([]domain.Cell, 0, len(cells))
	for _, c := range cells {
		k := pixel{int(math.Floor(c.X)), int(math.Floor(c.Y))}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, c)
			continue
		}
		kept := out[i]
		x0, y0 := math.Min(kept.X, c.X), math.Min(kept.Y, c.Y)
		x1, y1 := math.Max(kept.X+kept.W, c.X+c.W), math.Max(kept.Y+kept.H, c.Y+c.H)
		if c.Liquidity > kept.Liquidity {
			kept = c
		}
		kept.X, kept.Y, kept.W, kept.H = x0, y0, x1-x0, y1-y0
		out[i] = kept
	}
	return out
}
