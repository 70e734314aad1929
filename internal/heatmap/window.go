package heatmap

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// WindowBuffer is the time-ordered collection of AggregateSnapshots retained
// for the active window, plus the running union of prices and venues they
// contain.
//
// Snapshots are immutable once stored: a merge builds a replacement and swaps
// the pointer, so readers holding the result of QueryRange never observe a
// partially merged matrix.
type WindowBuffer struct {
	mu         sync.RWMutex
	resolution time.Duration
	snaps      []*domain.AggregateSnapshot
	priceRefs  map[float64]int
	venueRefs  map[string]int
	version    uint64
}

// NewWindowBuffer creates an empty buffer. Snapshot timestamps are aligned
// down to resolution so that venues reporting within the same slot share one
// AggregateSnapshot.
func NewWindowBuffer(resolution time.Duration) (*WindowBuffer, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("heatmap: snapshot resolution %s: %w", resolution, domain.ErrInvalidConfig)
	}
	return &WindowBuffer{
		resolution: resolution,
		priceRefs:  make(map[float64]int),
		venueRefs:  make(map[string]int),
	}, nil
}

// Align returns the slot timestamp t is stored under.
func (w *WindowBuffer) Align(t time.Time) time.Time {
	return t.Truncate(w.resolution)
}

// Append folds snap into the AggregateSnapshot for its aligned timestamp,
// creating one when the timestamp is newer than everything retained. A
// snapshot older than the newest slot that matches no retained slot is
// rejected with domain.ErrOutOfOrder.
func (w *WindowBuffer) Append(snap domain.VenueSnapshot) error {
	key := w.Align(snap.Timestamp)

	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.snaps)
	if n == 0 || key.After(w.snaps[n-1].Timestamp) {
		agg := newAggregate(key, snap)
		w.snaps = append(w.snaps, agg)
		w.retain(agg)
		w.version++
		return nil
	}

	i := sort.Search(n, func(i int) bool { return !w.snaps[i].Timestamp.Before(key) })
	if i < n && w.snaps[i].Timestamp.Equal(key) {
		old := w.snaps[i]
		merged := mergeAggregate(old, snap)
		w.release(old)
		w.retain(merged)
		w.snaps[i] = merged
		w.version++
		return nil
	}

	return fmt.Errorf("heatmap: append %s at %s (newest %s): %w",
		snap.VenueID, key.Format(time.RFC3339Nano),
		w.snaps[n-1].Timestamp.Format(time.RFC3339Nano), domain.ErrOutOfOrder)
}

// Evict drops every snapshot older than now - window and returns how many
// were removed.
func (w *WindowBuffer) Evict(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)

	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.snaps), func(i int) bool { return !w.snaps[i].Timestamp.Before(cutoff) })
	if i == 0 {
		return 0
	}
	for _, s := range w.snaps[:i] {
		w.release(s)
	}
	kept := make([]*domain.AggregateSnapshot, len(w.snaps)-i)
	copy(kept, w.snaps[i:])
	w.snaps = kept
	w.version++
	return i
}

// QueryRange returns the snapshots with timestamps inside tr that hold at
// least one price inside pr. The returned slice is a copy; the snapshots it
// points to must not be modified.
func (w *WindowBuffer) QueryRange(tr domain.TimeRange, pr domain.PriceRange) []*domain.AggregateSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	start := sort.Search(len(w.snaps), func(i int) bool { return !w.snaps[i].Timestamp.Before(tr.From) })
	out := make([]*domain.AggregateSnapshot, 0, len(w.snaps)-start)
	for _, s := range w.snaps[start:] {
		if s.Timestamp.After(tr.To) {
			break
		}
		if overlapsPrices(s.Prices, pr) {
			out = append(out, s)
		}
	}
	return out
}

// Snapshots returns every retained snapshot, oldest first.
func (w *WindowBuffer) Snapshots() []*domain.AggregateSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*domain.AggregateSnapshot, len(w.snaps))
	copy(out, w.snaps)
	return out
}

// Prices returns the price axis: every price present in a retained snapshot,
// sorted descending.
func (w *WindowBuffer) Prices() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]float64, 0, len(w.priceRefs))
	for p := range w.priceRefs {
		out = append(out, p)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// PriceBounds returns the lowest and highest price on the axis.
func (w *WindowBuffer) PriceBounds() (domain.PriceRange, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.priceRefs) == 0 {
		return domain.PriceRange{}, false
	}
	first := true
	var r domain.PriceRange
	for p := range w.priceRefs {
		if first {
			r = domain.PriceRange{Min: p, Max: p}
			first = false
			continue
		}
		if p < r.Min {
			r.Min = p
		}
		if p > r.Max {
			r.Max = p
		}
	}
	return r, true
}

// Venues returns every venue present in a retained snapshot, sorted.
func (w *WindowBuffer) Venues() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.venueRefs))
	for v := range w.venueRefs {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of retained snapshots.
func (w *WindowBuffer) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.snaps)
}

// Bounds returns the oldest and newest retained timestamps.
func (w *WindowBuffer) Bounds() (domain.TimeRange, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.snaps) == 0 {
		return domain.TimeRange{}, false
	}
	return domain.TimeRange{From: w.snaps[0].Timestamp, To: w.snaps[len(w.snaps)-1].Timestamp}, true
}

// Version changes every time the buffer contents change.
func (w *WindowBuffer) Version() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// retain and release maintain the price and venue reference counts. The
// caller must hold w.mu.
func (w *WindowBuffer) retain(s *domain.AggregateSnapshot) {
	for _, p := range s.Prices {
		w.priceRefs[p]++
	}
	for _, v := range s.Venues {
		w.venueRefs[v]++
	}
}

func (w *WindowBuffer) release(s *domain.AggregateSnapshot) {
	for _, p := range s.Prices {
		if w.priceRefs[p] <= 1 {
			delete(w.priceRefs, p)
		} else {
			w.priceRefs[p]--
		}
	}
	for _, v := range s.Venues {
		if w.venueRefs[v] <= 1 {
			delete(w.venueRefs, v)
		} else {
			w.venueRefs[v]--
		}
	}
}

func newAggregate(ts time.Time, snap domain.VenueSnapshot) *domain.AggregateSnapshot {
	prices := make([]float64, len(snap.Prices))
	copy(prices, snap.Prices)
	index := make(map[float64]int, len(prices))
	row := make([]float64, len(prices))
	for i, p := range prices {
		index[p] = i
		row[i] = snap.Liquidity[p]
	}
	return &domain.AggregateSnapshot{
		Timestamp:  ts,
		Venues:     []string{snap.VenueID},
		Prices:     prices,
		PriceIndex: index,
		Matrix:     [][]float64{row},
	}
}

// mergeAggregate returns a copy of old with snap's row written in. Prices
// introduced by snap become new columns, zero for every other venue. A venue
// already present has its row replaced.
func mergeAggregate(old *domain.AggregateSnapshot, snap domain.VenueSnapshot) *domain.AggregateSnapshot {
	prices, index := old.Prices, old.PriceIndex
	grown := false
	for _, p := range snap.Prices {
		if _, ok := old.PriceIndex[p]; !ok {
			grown = true
			break
		}
	}
	if grown {
		set := make(map[float64]struct{}, len(old.Prices)+len(snap.Prices))
		for _, p := range old.Prices {
			set[p] = struct{}{}
		}
		for _, p := range snap.Prices {
			set[p] = struct{}{}
		}
		prices = make([]float64, 0, len(set))
		for p := range set {
			prices = append(prices, p)
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(prices)))
		index = make(map[float64]int, len(prices))
		for i, p := range prices {
			index[p] = i
		}
	}

	venues := make([]string, len(old.Venues), len(old.Venues)+1)
	copy(venues, old.Venues)
	target, ok := old.VenueIndex(snap.VenueID)
	if !ok {
		target = len(venues)
		venues = append(venues, snap.VenueID)
	}

	matrix := make([][]float64, len(venues))
	for vi := range old.Venues {
		if vi == target {
			continue
		}
		if !grown {
			matrix[vi] = old.Matrix[vi]
			continue
		}
		row := make([]float64, len(prices))
		for pi, p := range old.Prices {
			row[index[p]] = old.Matrix[vi][pi]
		}
		matrix[vi] = row
	}

	row := make([]float64, len(prices))
	for p, v := range snap.Liquidity {
		row[index[p]] = v
	}
	matrix[target] = row

	return &domain.AggregateSnapshot{
		Timestamp:  old.Timestamp,
		Venues:     venues,
		Prices:     prices,
		PriceIndex: index,
		Matrix:     matrix,
	}
}

// overlapsPrices reports whether any of the descending prices lies in pr.
func overlapsPrices(prices []float64, pr domain.PriceRange) bool {
	i := sort.Search(len(prices), func(i int) bool { return prices[i] <= pr.Max })
	return i < len(prices) && prices[i] >= pr.Min
}
