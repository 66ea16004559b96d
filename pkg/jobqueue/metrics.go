package jobqueue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	deadTotal       *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	runnerLeader    prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *metrics
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInst = &metrics{
			dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "migration_jobs_dispatch_total",
				Help: "Job dispatch attempts by kind and outcome.",
			}, []string{"kind", "outcome"}),
			dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "migration_jobs_dispatch_seconds",
				Help:    "Job handler latency by kind.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			}, []string{"kind"}),
			deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "migration_jobs_dead_total",
				Help: "Jobs moved to the dead state by kind.",
			}, []string{"kind"}),
			queueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "migration_jobs_queue_depth",
				Help: "Pending jobs by kind.",
			}, []string{"kind"}),
			runnerLeader: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "migration_jobs_runner_leader",
				Help: "1 when this runner holds the single-active lock.",
			}),
		}
	})
	return metricsInst
}
