package merge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus metrics the control surface's /metrics
// endpoint exposes for this process's merge activity.
type Metrics struct {
	Duration *prometheus.HistogramVec
	Total    *prometheus.CounterVec
}

// metricsFor returns the process-wide Metrics instance, registering it on
// first use. sync.Once avoids a "duplicate metrics collector registration"
// panic if more than one project's Service is constructed in the same
// process.
func metricsFor() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "schaltwerk_merge_duration_seconds",
					Help:    "Duration of merge attempts in seconds, labeled by mode and outcome.",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
				},
				[]string{"mode", "outcome"},
			),
			Total: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schaltwerk_merge_total",
					Help: "Total number of merge attempts, labeled by mode and outcome.",
				},
				[]string{"mode", "outcome"},
			),
		}
	})
	return globalMetrics
}

func observeMerge(mode Mode, outcome string, seconds float64) {
	m := metricsFor()
	m.Duration.WithLabelValues(string(mode), outcome).Observe(seconds)
	m.Total.WithLabelValues(string(mode), outcome).Inc()
}
