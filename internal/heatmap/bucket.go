// Package heatmap turns a stream of per-venue orderbook snapshots into a
// bounded, zoomable time-by-price liquidity grid and answers the renderer's
// pull queries against it.
package heatmap

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

var half = decimal.NewFromFloat(0.5)

// Bucketer snaps raw prices onto the shared price grid. Arithmetic is done in
// decimal so that bucketing an already bucketed price is exact.
type Bucketer struct {
	size  decimal.Decimal
	sizeF float64
}

// NewBucketer returns a Bucketer for the given bucket size. A size that is not
// a positive finite number is rejected with domain.ErrInvalidConfig.
func NewBucketer(size float64) (*Bucketer, error) {
	if math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 {
		return nil, fmt.Errorf("heatmap: bucket size %v: %w", size, domain.ErrInvalidConfig)
	}
	return &Bucketer{size: decimal.NewFromFloat(size), sizeF: size}, nil
}

// Size returns the bucket size.
func (b *Bucketer) Size() float64 {
	return b.sizeF
}

// Bucket rounds raw to the nearest multiple of the bucket size. Ties go to
// the higher bucket. A positive price never lands below the first positive
// bucket.
func (b *Bucketer) Bucket(raw float64) float64 {
	q := decimal.NewFromFloat(raw).Div(b.size).Add(half).Floor()
	if raw > 0 && !q.IsPositive() {
		return b.sizeF
	}
	f, _ := q.Mul(b.size).Float64()
	return f
}

// Offset returns the bucket steps grid steps away from price, which must
// already be bucketed.
func (b *Bucketer) Offset(price float64, steps int) float64 {
	f, _ := decimal.NewFromFloat(price).Add(b.size.Mul(decimal.NewFromInt(int64(steps)))).Float64()
	return f
}

// Steps returns how many grid steps separate lo and hi.
func (b *Bucketer) Steps(lo, hi float64) int {
	d := decimal.NewFromFloat(hi).Sub(decimal.NewFromFloat(lo)).Div(b.size)
	return int(d.Round(0).IntPart())
}
