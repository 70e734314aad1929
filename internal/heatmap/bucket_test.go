package heatmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

func TestBucketRoundsToNearest(t *testing.T) {
	b, err := NewBucketer(0.5)
	require.NoError(t, err)

	tests := []struct {
		raw  float64
		want float64
	}{
		{100.2, 100.0},
		{100.25, 100.5},
		{100.74, 100.5},
		{100.75, 101.0},
		{99.76, 100.0},
		{0.1, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Bucket(tt.raw), "bucket(%v)", tt.raw)
	}
}

func TestBucketTiesGoUp(t *testing.T) {
	b, err := NewBucketer(0.01)
	require.NoError(t, err)
	assert.Equal(t, 100.01, b.Bucket(100.005))
	assert.Equal(t, 100.0, b.Bucket(100.004))
}

func TestBucketIsIdempotent(t *testing.T) {
	for _, size := range []float64{0.01, 0.05, 0.5, 1, 10, 25} {
		b, err := NewBucketer(size)
		require.NoError(t, err)
		for raw := 0.013; raw < 5000; raw = raw*1.37 + 0.11 {
			once := b.Bucket(raw)
			assert.Equal(t, once, b.Bucket(once), "size %v raw %v", size, raw)
		}
	}
}

func TestNewBucketerRejectsBadSize(t *testing.T) {
	for _, size := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewBucketer(size)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig, "size %v", size)
	}
}

func TestBucketerOffsetAndSteps(t *testing.T) {
	b, err := NewBucketer(0.1)
	require.NoError(t, err)
	assert.Equal(t, 100.3, b.Offset(100.0, 3))
	assert.Equal(t, 99.8, b.Offset(100.0, -2))
	assert.Equal(t, 15, b.Steps(99.5, 101.0))
}
