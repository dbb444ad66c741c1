package reactor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the Reactor's Prometheus collectors. Safe to
// call once at startup; a no-op on subsequent calls.
func InitMetrics() {
	metricsOnce.Do(func() {
		stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "genesis_reactor_stage_duration_seconds",
			Help: "Duration of each Reactor pipeline stage, by stage name.",
		}, []string{"stage"})
		stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "genesis_reactor_stage_failures_total",
			Help: "Total number of Reactor pipeline stages that returned an error, by stage name.",
		}, []string{"stage"})
		metricsRegistered = true
	})
}

func recordStage(name StageName, err error, d time.Duration) {
	if !metricsRegistered {
		return
	}
	stageDuration.WithLabelValues(string(name)).Observe(d.Seconds())
	if err != nil {
		stageFailures.WithLabelValues(string(name)).Inc()
	}
}
