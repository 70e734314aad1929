package instrumentation

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SnapshotIngested("binance")
	m.SnapshotIngested("binance")
	m.SnapshotDropped("okx", "out_of_order")
	m.SnapshotsEvicted(3)
	m.WindowSize(42)
	m.TracePoints(7)
	m.QueryLatency("cells", 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsIngested.WithLabelValues("binance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsDropped.WithLabelValues("okx", "out_of_order")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Evicted))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.WindowSnapshots))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.TracePointsGauge))

	n, err := testutil.GatherAndCount(reg, "bookmap_query_latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}
