package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecomputeSeconds observes one full physics recomputation round.
	RecomputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "virtacc",
		Subsystem: "engine",
		Name:      "recompute_seconds",
		Help:      "Duration of one physics recomputation round",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	RecomputeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "virtacc",
		Subsystem: "engine",
		Name:      "recompute_total",
		Help:      "Completed physics recomputation rounds",
	})

	RecomputeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "virtacc",
		Subsystem: "engine",
		Name:      "recompute_failures_total",
		Help:      "Recomputation rounds that failed and kept the previous snapshot",
	})

	ChangesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "virtacc",
		Subsystem: "engine",
		Name:      "changes_applied_total",
		Help:      "Queued model changes applied by the worker",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "virtacc",
		Subsystem: "engine",
		Name:      "queue_depth",
		Help:      "Changes currently waiting in the engine queue",
	})

	MirrorUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "virtacc",
		Subsystem: "records",
		Name:      "mirror_updates_total",
		Help:      "Mirror record re-evaluations",
	})

	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "virtacc",
		Subsystem: "records",
		Name:      "mirror_failures_total",
		Help:      "Mirror record evaluations that failed and kept the old output",
	})
)

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
