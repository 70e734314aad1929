package domain

import "time"

// VenueSnapshot is one venue's liquidity at one instant after bucketing.
// Liquidity holds only the buckets the venue actually reported; Prices also
// carries interpolated padding buckets, sorted descending.
type VenueSnapshot struct {
	VenueID   string
	Timestamp time.Time
	Prices    []float64
	Liquidity map[float64]float64
}

// AggregateSnapshot is the unit stored in the window: a dense
// venue-by-price matrix for one aligned timestamp. Values are never mutated
// once the snapshot has been published to readers; merges produce a
// replacement.
type AggregateSnapshot struct {
	Timestamp  time.Time
	Venues     []string
	Prices     []float64 // descending
	PriceIndex map[float64]int
	Matrix     [][]float64 // [venue][price]
}

// VenueIndex returns the matrix row of venueID.
func (s *AggregateSnapshot) VenueIndex(venueID string) (int, bool) {
	for i, v := range s.Venues {
		if v == venueID {
			return i, true
		}
	}
	return -1, false
}

// Value returns the liquidity of venueID at price, or 0 when either is
// absent from the snapshot.
func (s *AggregateSnapshot) Value(venueID string, price float64) float64 {
	vi, ok := s.VenueIndex(venueID)
	if !ok {
		return 0
	}
	pi, ok := s.PriceIndex[price]
	if !ok {
		return 0
	}
	return s.Matrix[vi][pi]
}

// Liquidity is the combined liquidity at one cell together with the share of
// each contributing venue. Breakdown omits venues contributing zero.
type Liquidity struct {
	Total     float64            `json:"total"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

// PricePoint is one sample of the live trade price trace.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// TimeRange is a closed interval of time.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t lies within the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Duration returns the span of the range.
func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// PriceRange is a closed interval of prices.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether p lies within the range.
func (r PriceRange) Contains(p float64) bool {
	return p >= r.Min && p <= r.Max
}

// Span returns Max - Min.
func (r PriceRange) Span() float64 {
	return r.Max - r.Min
}

// Empty reports whether the range covers no prices.
func (r PriceRange) Empty() bool {
	return r.Max <= r.Min
}
