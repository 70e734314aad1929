package heatmap

import (
	"fmt"
	"math"
	"sort"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// Normalizer converts one venue's raw book into a sparse VenueSnapshot on the
// shared price grid. Dense alignment across venues happens later in the
// WindowBuffer.
type Normalizer struct {
	bucketer  *Bucketer
	minLevels int
}

// NewNormalizer returns a Normalizer that pads the price axis up to minLevels
// distinct buckets. minLevels of 0 or 1 disables padding.
func NewNormalizer(b *Bucketer, minLevels int) (*Normalizer, error) {
	if b == nil {
		return nil, fmt.Errorf("heatmap: normalizer needs a bucketer: %w", domain.ErrInvalidConfig)
	}
	if minLevels < 0 {
		return nil, fmt.Errorf("heatmap: min price levels %d: %w", minLevels, domain.ErrInvalidConfig)
	}
	return &Normalizer{bucketer: b, minLevels: minLevels}, nil
}

// Normalize validates book, buckets its levels (summing levels that land in
// the same bucket, bids and asks alike) and returns the venue snapshot.
// axis is the current global price axis; when it and the reported buckets
// together hold fewer than the configured minimum, evenly spaced interpolated
// buckets are added to Prices with no liquidity.
func (n *Normalizer) Normalize(book domain.VenueBook, axis []float64) (domain.VenueSnapshot, error) {
	if err := validateBook(book); err != nil {
		return domain.VenueSnapshot{}, err
	}

	levels := book.Levels()
	liquidity := make(map[float64]float64, len(levels))
	for _, l := range levels {
		liquidity[n.bucketer.Bucket(l.Price)] += l.Size
	}

	prices := make([]float64, 0, len(liquidity))
	for p := range liquidity {
		prices = append(prices, p)
	}
	prices = append(prices, n.padding(axis, liquidity)...)
	sort.Sort(sort.Reverse(sort.Float64Slice(prices)))

	return domain.VenueSnapshot{
		VenueID:   book.VenueID,
		Timestamp: book.Timestamp,
		Prices:    prices,
		Liquidity: liquidity,
	}, nil
}

// padding returns the interpolated buckets missing from axis and reported.
func (n *Normalizer) padding(axis []float64, reported map[float64]float64) []float64 {
	if n.minLevels < 2 {
		return nil
	}

	known := make(map[float64]struct{}, len(axis)+len(reported))
	lo, hi := math.Inf(1), math.Inf(-1)
	add := func(p float64) {
		known[p] = struct{}{}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	for _, p := range axis {
		add(p)
	}
	for p := range reported {
		add(p)
	}
	if len(known) == 0 || len(known) >= n.minLevels {
		return nil
	}

	var pads []float64
	for _, p := range n.grid(lo, hi) {
		if _, ok := known[p]; !ok {
			pads = append(pads, p)
		}
	}
	return pads
}

// grid returns at least minLevels evenly spaced buckets covering [lo, hi].
// When the range holds too few grid points it is widened around its centre,
// never below the first positive bucket.
func (n *Normalizer) grid(lo, hi float64) []float64 {
	b := n.bucketer
	steps := b.Steps(lo, hi)

	if steps+1 < n.minLevels {
		extra := n.minLevels - (steps + 1)
		below := extra / 2
		for below > 0 && b.Offset(lo, -below) <= 0 {
			below--
		}
		lo = b.Offset(lo, -below)
		steps += extra

		out := make([]float64, 0, steps+1)
		for i := 0; i <= steps; i++ {
			out = append(out, b.Offset(lo, i))
		}
		return out
	}

	stride := steps / (n.minLevels - 1)
	out := make([]float64, 0, n.minLevels+1)
	for i := 0; i <= steps; i += stride {
		out = append(out, b.Offset(lo, i))
	}
	if last := out[len(out)-1]; last != hi {
		out = append(out, hi)
	}
	return out
}

func validateBook(book domain.VenueBook) error {
	if book.VenueID == "" {
		return fmt.Errorf("heatmap: %w: missing venue id", domain.ErrMalformedSnapshot)
	}
	if book.Timestamp.IsZero() {
		return fmt.Errorf("heatmap: %w: venue %s: missing timestamp", domain.ErrMalformedSnapshot, book.VenueID)
	}
	for _, l := range book.Levels() {
		if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) || l.Price <= 0 {
			return fmt.Errorf("heatmap: %w: venue %s: price %v", domain.ErrMalformedSnapshot, book.VenueID, l.Price)
		}
		if math.IsNaN(l.Size) || math.IsInf(l.Size, 0) || l.Size < 0 {
			return fmt.Errorf("heatmap: %w: venue %s: volume %v at %v", domain.ErrMalformedSnapshot, book.VenueID, l.Size, l.Price)
		}
	}
	return nil
}
