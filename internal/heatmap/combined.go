package heatmap

import "github.com/alanyoungcy/bookmap/internal/domain"

// CombinedLiquidity sums the cells of venues at price and records each
// nonzero contributor. With no venues given every row of s counts. A price
// absent from the snapshot yields a zero total.
func CombinedLiquidity(s *domain.AggregateSnapshot, price float64, venues ...string) domain.Liquidity {
	out := domain.Liquidity{Breakdown: make(map[string]float64)}
	pi, ok := s.PriceIndex[price]
	if !ok {
		return out
	}
	for _, vi := range contributors(s, venues) {
		v := s.Matrix[vi][pi]
		if v == 0 {
			continue
		}
		out.Total += v
		out.Breakdown[s.Venues[vi]] = v
	}
	return out
}

// CombinedTotals returns the combined total of venues (all rows when none are
// given) for every price of s, in s.Prices order.
func CombinedTotals(s *domain.AggregateSnapshot, venues ...string) []float64 {
	totals := make([]float64, len(s.Prices))
	for _, vi := range contributors(s, venues) {
		for pi, v := range s.Matrix[vi] {
			totals[pi] += v
		}
	}
	return totals
}

// contributors returns the matrix rows of s belonging to venues, or every row
// when venues is empty.
func contributors(s *domain.AggregateSnapshot, venues []string) []int {
	if len(venues) == 0 {
		rows := make([]int, len(s.Venues))
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	rows := make([]int, 0, len(venues))
	for _, v := range venues {
		if vi, ok := s.VenueIndex(v); ok {
			rows = append(rows, vi)
		}
	}
	return rows
}

// maxVenueLiquidity returns the largest single cell of venue across snaps.
func maxVenueLiquidity(snaps []*domain.AggregateSnapshot, venue string) float64 {
	var peak float64
	for _, s := range snaps {
		vi, ok := s.VenueIndex(venue)
		if !ok {
			continue
		}
		for _, v := range s.Matrix[vi] {
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}

// maxCombinedLiquidity returns the largest combined total of venues across
// snaps.
func maxCombinedLiquidity(snaps []*domain.AggregateSnapshot, venues ...string) float64 {
	var peak float64
	for _, s := range snaps {
		for _, v := range CombinedTotals(s, venues...) {
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}
