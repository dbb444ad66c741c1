package planexec

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal       *prometheus.CounterVec
	batchAbortsTotal prometheus.Counter

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the executor's Prometheus counters. Safe to call
// once at startup; a no-op on subsequent calls.
func InitMetrics() {
	metricsOnce.Do(func() {
		itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genesis_planexec_items_total",
			Help: "Total number of plan items executed, by outcome status.",
		}, []string{"status"})
		batchAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "genesis_planexec_batch_aborts_total",
			Help: "Total number of plan batches aborted by a non-zero subprocess exit.",
		})
		metricsRegistered = true
	})
}

func recordItem(status ItemStatus) {
	if metricsRegistered && itemsTotal != nil {
		itemsTotal.WithLabelValues(string(status)).Inc()
	}
}

func recordAbort() {
	if metricsRegistered && batchAbortsTotal != nil {
		batchAbortsTotal.Inc()
	}
}
