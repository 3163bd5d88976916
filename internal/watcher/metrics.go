package watcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds one Watcher's collectors. Unlike the teacher's
// package-level prometheus vars registered via a global init()/MustRegister
// (cuemby-warren/pkg/metrics), Metrics owns a private prometheus.Registry so
// every Watcher instance is independently constructible and testable with
// no shared mutable state (spec.md §9).
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed  prometheus.Counter
	EventsCoalesced  prometheus.Counter
	BatchesProcessed prometheus.Counter
	QueueOverflows   prometheus.Counter
	QueueDepth       prometheus.Gauge
	BatchDuration    prometheus.Histogram
	MaxBatchDuration prometheus.Gauge

	// maxQueueDepth tracks the high-water mark backing QueueDepth; callers
	// only ever observe a growing value, matching spec.md §4.8's "max
	// queue depth" metric rather than a point-in-time gauge.
	maxQueueDepth    int
	maxBatchDuration time.Duration
}

// NewMetrics builds a fresh, independently-registered Metrics. Callers that
// want these collectors exposed on an HTTP /metrics endpoint should gather
// from Registry() rather than the global default registerer.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_events_processed_total",
			Help: "Raw filesystem events received from the watch backend.",
		}),
		EventsCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_events_coalesced_total",
			Help: "Raw events absorbed into an already-pending change.",
		}),
		BatchesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_batches_processed_total",
			Help: "Coalesced batches delivered to the applier.",
		}),
		QueueOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_queue_overflows_total",
			Help: "Times the pending-change queue exceeded its depth limit and was dropped.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_queue_depth_max",
			Help: "High-water mark of pending, not-yet-flushed changes.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watcher_batch_apply_duration_seconds",
			Help:    "Time spent applying one flushed batch.",
			Buckets: prometheus.DefBuckets,
		}),
		MaxBatchDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_batch_apply_duration_seconds_max",
			Help: "High-water mark of a single batch's apply duration.",
		}),
	}

	reg.MustRegister(m.EventsProcessed, m.EventsCoalesced, m.BatchesProcessed,
		m.QueueOverflows, m.QueueDepth, m.BatchDuration, m.MaxBatchDuration)

	return m
}

// Registry exposes the private registry for a caller that wants to serve it
// (e.g. mounted under a per-location path on an admin HTTP server).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// observeQueueDepth updates the high-water mark. Called only from code
// paths already holding Watcher.mu, so no additional locking is needed
// here.
func (m *Metrics) observeQueueDepth(depth int) {
	if depth <= m.maxQueueDepth {
		return
	}
	m.maxQueueDepth = depth
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) observeBatchDuration(d time.Duration) {
	m.BatchDuration.Observe(d.Seconds())
	if d <= m.maxBatchDuration {
		return
	}
	m.maxBatchDuration = d
	m.MaxBatchDuration.Set(d.Seconds())
}
