package heatmap

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// PriceHistory is the live trade price trace, kept to the same time window as
// the heatmap so the overlay lines up with the cells.
type PriceHistory struct {
	mu     sync.RWMutex
	points []domain.PricePoint
	window time.Duration
}

// NewPriceHistory creates an empty trace retaining window of history.
func NewPriceHistory(window time.Duration) *PriceHistory {
	return &PriceHistory{window: window}
}

// Append records a new observation and trims points that have fallen out of
// the window. Points older than the newest one are dropped with
// domain.ErrOutOfOrder.
func (h *PriceHistory) Append(p domain.PricePoint) error {
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0 || p.Timestamp.IsZero() {
		return fmt.Errorf("heatmap: trace point %v at %s: %w", p.Price, p.Timestamp, domain.ErrMalformedSnapshot)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.points); n > 0 && p.Timestamp.Before(h.points[n-1].Timestamp) {
		return fmt.Errorf("heatmap: trace point at %s: %w", p.Timestamp.Format(time.RFC3339Nano), domain.ErrOutOfOrder)
	}
	h.points = append(h.points, p)
	h.trim(p.Timestamp)
	return nil
}

// Trim drops points older than now - window.
func (h *PriceHistory) Trim(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trim(now)
}

// Last returns the most recent point.
func (h *PriceHistory) Last() (domain.PricePoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.points) == 0 {
		return domain.PricePoint{}, false
	}
	return h.points[len(h.points)-1], true
}

// Range returns a copy of the points inside tr.
func (h *PriceHistory) Range(tr domain.TimeRange) []domain.PricePoint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := sort.Search(len(h.points), func(i int) bool { return !h.points[i].Timestamp.Before(tr.From) })
	out := make([]domain.PricePoint, 0, len(h.points)-start)
	for _, p := range h.points[start:] {
		if p.Timestamp.After(tr.To) {
			break
		}
		out = append(out, p)
	}
	return out
}

// Len returns the number of retained points.
func (h *PriceHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points)
}

// trim removes all points older than window relative to now. The caller must
// hold h.mu.
func (h *PriceHistory) trim(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(h.points) && h.points[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.points = append(h.points[:0:0], h.points[i:]...)
	}
}
