// Package instrumentation exposes engine and feed measurements as
// Prometheus metrics.
package instrumentation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alanyoungcy/bookmap/internal/heatmap"
)

// Metrics holds every bookmap metric and implements heatmap.Recorder.
type Metrics struct {
	SnapshotsIngested *prometheus.CounterVec
	SnapshotsDropped  *prometheus.CounterVec
	WindowSnapshots   prometheus.Gauge
	Evicted           prometheus.Counter
	QueryLatencyMs    *prometheus.HistogramVec
	TracePointsGauge  prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SnapshotsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bookmap_snapshots_ingested_total",
			Help: "Venue snapshots accepted into the window",
		}, []string{"venue"}),

		SnapshotsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bookmap_snapshots_dropped_total",
			Help: "Venue snapshots rejected, by reason",
		}, []string{"venue", "reason"}),

		WindowSnapshots: f.NewGauge(prometheus.GaugeOpts{
			Name: "bookmap_window_snapshots",
			Help: "Aggregate snapshots currently retained in the window",
		}),

		Evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "bookmap_evicted_total",
			Help: "Aggregate snapshots evicted from the window",
		}),

		QueryLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookmap_query_latency_ms",
			Help:    "Engine query latency in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}, []string{"op"}),

		TracePointsGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "bookmap_trace_points",
			Help: "Points retained in the price trace",
		}),
	}
}

func (m *Metrics) SnapshotIngested(venue string) {
	m.SnapshotsIngested.WithLabelValues(venue).Inc()
}

func (m *Metrics) SnapshotDropped(venue, reason string) {
	m.SnapshotsDropped.WithLabelValues(venue, reason).Inc()
}

func (m *Metrics) SnapshotsEvicted(n int) {
	m.Evicted.Add(float64(n))
}

func (m *Metrics) WindowSize(n int) {
	m.WindowSnapshots.Set(float64(n))
}

func (m *Metrics) TracePoints(n int) {
	m.TracePointsGauge.Set(float64(n))
}

func (m *Metrics) QueryLatency(op string, d time.Duration) {
	m.QueryLatencyMs.WithLabelValues(op).Observe(float64(d) / float64(time.Millisecond))
}

var _ heatmap.Recorder = (*Metrics)(nil)
