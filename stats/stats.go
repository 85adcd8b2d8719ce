// Package stats exposes the core's runtime counters and gauges as
// Prometheus metrics. The teacher's own stats package (stats/*.go)
// names metrics by suffix convention (".n" counters, ".ns" latencies,
// ".size" byte counts) and pushes them to StatsD; this core instead
// registers github.com/prometheus/client_golang collectors directly,
// keeping the same naming discipline (a trailing unit, not a bare
// name) translated to Prometheus's underscore/`_total` convention.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the core's full set of registered collectors.
type Metrics struct {
	ObservationsIngested *prometheus.CounterVec
	ObservationsDropped  *prometheus.CounterVec
	BufferOccupancy      prometheus.Gauge
	BufferSequence       prometheus.Gauge
	AssetStoreSize       prometheus.Gauge
	AssetEvictions       prometheus.Counter
	CheckpointReplayOps  prometheus.Counter
	CheckpointReplayTime prometheus.Histogram
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ObservationsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtconnect_observations_ingested_total",
			Help: "Observations accepted by the sink, by data-item category.",
		}, []string{"category"}),
		ObservationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtconnect_observations_dropped_total",
			Help: "Observations dropped by a pipeline transform, by reason.",
		}, []string{"reason"}),
		BufferOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtconnect_buffer_occupancy",
			Help: "Number of slots currently holding a retained observation.",
		}),
		BufferSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtconnect_buffer_sequence",
			Help: "Next sequence number the circular buffer will assign.",
		}),
		AssetStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtconnect_asset_store_size",
			Help: "Number of assets currently tracked by the asset store.",
		}),
		AssetEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtconnect_asset_evictions_total",
			Help: "Assets evicted from the store because capacity was exceeded.",
		}),
		CheckpointReplayOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtconnect_checkpoint_replay_ops_total",
			Help: "CheckpointAt calls that had to replay buffered observations.",
		}),
		CheckpointReplayTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mtconnect_checkpoint_replay_seconds",
			Help:    "Time spent replaying observations onto a checkpoint base.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ObservationsIngested,
		m.ObservationsDropped,
		m.BufferOccupancy,
		m.BufferSequence,
		m.AssetStoreSize,
		m.AssetEvictions,
		m.CheckpointReplayOps,
		m.CheckpointReplayTime,
	)
	return m
}

// IngestObservation records one accepted observation for category.
func (m *Metrics) IngestObservation(category string) {
	m.ObservationsIngested.WithLabelValues(category).Inc()
}

// DropObservation records one observation dropped by a transform for reason.
func (m *Metrics) DropObservation(reason string) {
	m.ObservationsDropped.WithLabelValues(reason).Inc()
}

// ObserveCheckpointReplay records one CheckpointAt replay's duration.
func (m *Metrics) ObserveCheckpointReplay(d time.Duration) {
	m.CheckpointReplayOps.Inc()
	m.CheckpointReplayTime.Observe(d.Seconds())
}
