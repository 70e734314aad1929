package heatmap

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// ZoomBounds limits how far the price axis may be zoomed.
type ZoomBounds struct {
	Min float64
	Max float64
}

// View holds the session's interactive display state. It is safe for
// concurrent use and never touches the window.
type View struct {
	mu       sync.RWMutex
	state    domain.ViewState
	defaults domain.ViewState
	bounds   ZoomBounds
}

// NewView returns a View initialised to zoom 1 and no pan.
func NewView(rangePercent float64, mode domain.LayoutMode, bounds ZoomBounds) (*View, error) {
	if bounds.Min <= 0 || bounds.Min > 1 || bounds.Max < 1 {
		return nil, fmt.Errorf("heatmap: zoom bounds [%v, %v]: %w", bounds.Min, bounds.Max, domain.ErrInvalidConfig)
	}
	def := domain.ViewState{
		PriceZoom:                1,
		VisiblePriceRangePercent: rangePercent,
		LayoutMode:               mode,
	}
	if err := ValidateView(def); err != nil {
		return nil, err
	}
	return &View{state: def, defaults: def, bounds: bounds}, nil
}

// ValidateView checks v for values the range computations cannot use.
func ValidateView(v domain.ViewState) error {
	if math.IsNaN(v.PriceZoom) || v.PriceZoom <= 0 {
		return fmt.Errorf("heatmap: price zoom %v must be > 0: %w", v.PriceZoom, domain.ErrInvalidConfig)
	}
	if v.TimeOffset < 0 {
		return fmt.Errorf("heatmap: time offset %s must be >= 0: %w", v.TimeOffset, domain.ErrInvalidConfig)
	}
	if math.IsNaN(v.VisiblePriceRangePercent) || v.VisiblePriceRangePercent <= 0 || v.VisiblePriceRangePercent > 100 {
		return fmt.Errorf("heatmap: visible price range %v%% must be in (0, 100]: %w", v.VisiblePriceRangePercent, domain.ErrInvalidConfig)
	}
	if _, err := domain.ParseLayoutMode(string(v.LayoutMode)); err != nil {
		return err
	}
	return nil
}

// State returns the current view state.
func (v *View) State() domain.ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Set replaces the view state after validating it. Zoom is clamped to the
// configured bounds.
func (v *View) Set(s domain.ViewState) (domain.ViewState, error) {
	if err := ValidateView(s); err != nil {
		return v.State(), err
	}
	s.PriceZoom = v.clamp(s.PriceZoom)
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
	return s, nil
}

// Zoom multiplies the price zoom by factor. Factors above 1 narrow the
// visible price span.
func (v *View) Zoom(factor float64) (domain.ViewState, error) {
	if math.IsNaN(factor) || factor <= 0 {
		return v.State(), fmt.Errorf("heatmap: zoom factor %v must be > 0: %w", factor, domain.ErrInvalidConfig)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.PriceZoom = v.clamp(v.state.PriceZoom * factor)
	return v.state, nil
}

// Pan shifts the right edge of the visible time window by delta. Positive
// deltas move back into history; the offset never goes below zero and
// saturates instead of wrapping.
func (v *View) Pan(delta time.Duration) domain.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	off := v.state.TimeOffset
	switch {
	case delta > 0 && off > math.MaxInt64-delta:
		off = math.MaxInt64
	default:
		off += delta
	}
	v.state.TimeOffset = max(off, 0)
	return v.state
}

// SetLayoutMode changes the layout mode and keeps everything else.
func (v *View) SetLayoutMode(mode domain.LayoutMode) (domain.ViewState, error) {
	if _, err := domain.ParseLayoutMode(string(mode)); err != nil {
		return v.State(), err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.LayoutMode = mode
	return v.state, nil
}

// Reset restores zoom 1 and no pan. The range percentage and layout mode are
// left as chosen.
func (v *View) Reset() domain.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.PriceZoom = v.defaults.PriceZoom
	v.state.TimeOffset = 0
	return v.state
}

func (v *View) clamp(z float64) float64 {
	return math.Min(v.bounds.Max, math.Max(v.bounds.Min, z))
}

// VisiblePriceRange returns the price span shown for s. With a current trade
// price the span is centred on it:
//
//	halfSpan = current * percent/100 / zoom
//
// Without one (a stale price) the span is derived from the data's own min/max,
// zoomed around its midpoint. With neither, the range is empty and the source
// is PriceSourceNone.
func VisiblePriceRange(s domain.ViewState, current float64, hasCurrent bool, data domain.PriceRange, hasData bool) (domain.PriceRange, domain.PriceSource) {
	zoom := s.PriceZoom
	if zoom <= 0 {
		zoom = 1
	}
	if hasCurrent && current > 0 {
		halfSpan := current * (s.VisiblePriceRangePercent / 100) / zoom
		return domain.PriceRange{Min: current - halfSpan, Max: current + halfSpan}, domain.PriceSourceTrade
	}
	if !hasData {
		return domain.PriceRange{}, domain.PriceSourceNone
	}
	mid := (data.Min + data.Max) / 2
	halfSpan := (data.Max - data.Min) / 2 / zoom
	return domain.PriceRange{Min: mid - halfSpan, Max: mid + halfSpan}, domain.PriceSourceData
}

// VisibleTimeRange returns [now - offset - window, now - offset].
func VisibleTimeRange(s domain.ViewState, now time.Time, window time.Duration) domain.TimeRange {
	to := now.Add(-s.TimeOffset)
	return domain.TimeRange{From: to.Add(-window), To: to}
}
