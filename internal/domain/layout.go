package domain

import (
	"fmt"
	"strings"
	"time"
)

// LayoutMode selects how venues are arranged into panels.
type LayoutMode string

const (
	LayoutSingle   LayoutMode = "single"
	LayoutGrid     LayoutMode = "grid"
	LayoutCombined LayoutMode = "combined"
	LayoutSplit    LayoutMode = "split"
)

// ParseLayoutMode converts s into a LayoutMode.
func ParseLayoutMode(s string) (LayoutMode, error) {
	switch m := LayoutMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LayoutSingle, LayoutGrid, LayoutCombined, LayoutSplit:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown layout mode %q", ErrInvalidConfig, s)
	}
}

// CombinedVenue is the pseudo venue id carried by combined panels.
const CombinedVenue = "combined"

// Panel is one cell of a layout. Combined panels read the sum over all
// venues; the rest read a single venue's row.
type Panel struct {
	Index      int    `json:"index"`
	Venue      string `json:"venue"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
	WidthSpan  int    `json:"width_span"`
	IsCombined bool   `json:"is_combined"`
}

// LayoutConfig is derived from the venue set and mode; it is never stored.
type LayoutConfig struct {
	Mode   LayoutMode `json:"mode"`
	Rows   int        `json:"rows"`
	Cols   int        `json:"cols"`
	Panels []Panel    `json:"panels"`
}

// ViewState holds interactive, data-independent display parameters.
type ViewState struct {
	PriceZoom                float64       `json:"price_zoom"`
	TimeOffset               time.Duration `json:"time_offset"`
	VisiblePriceRangePercent float64       `json:"visible_price_range_percent"`
	LayoutMode               LayoutMode    `json:"layout_mode"`
}

// Rect is a pixel rectangle with its origin at the top-left.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PriceSource tells the renderer where a visible price range came from.
type PriceSource string

const (
	PriceSourceTrade PriceSource = "trade"
	PriceSourceData  PriceSource = "data"
	PriceSourceNone  PriceSource = "none"
)

// VisiblePanel is a panel positioned on the canvas with the ranges it shows.
type VisiblePanel struct {
	Panel
	Rect        Rect        `json:"rect"`
	Time        TimeRange   `json:"time"`
	Price       PriceRange  `json:"price"`
	PriceSource PriceSource `json:"price_source"`
}

// Cell is one colored heatmap rectangle in panel-local pixels.
type Cell struct {
	X         float64            `json:"x"`
	Y         float64            `json:"y"`
	W         float64            `json:"w"`
	H         float64            `json:"h"`
	Timestamp time.Time          `json:"timestamp"`
	Price     float64            `json:"price"`
	Liquidity float64            `json:"liquidity"`
	Intensity float64            `json:"intensity"`
	Color     string             `json:"color"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// TracePoint is a price trace vertex in panel-local pixels.
type TracePoint struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Tick is an axis label positioned in panel-local pixels.
type Tick struct {
	Pos   float64 `json:"pos"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// PanelFrame is everything the renderer needs to draw one panel.
type PanelFrame struct {
	Panel        VisiblePanel `json:"panel"`
	Cells        []Cell       `json:"cells"`
	Trace        []TracePoint `json:"trace"`
	PriceTicks   []Tick       `json:"price_ticks"`
	TimeTicks    []Tick       `json:"time_ticks"`
	MaxLiquidity float64      `json:"max_liquidity"`
}

// Minimap is a combined overview of the whole window with the rectangle the
// main view currently covers.
type Minimap struct {
	Frame    PanelFrame `json:"frame"`
	Viewport Rect       `json:"viewport"`
}
