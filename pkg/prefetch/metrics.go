package prefetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prefetchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_prefetch_runs_total",
		Help: "Total prefetch task runs by result",
	}, []string{"result"}) // "completed", "failed"

	prefetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_prefetch_duration_seconds",
		Help:    "Prefetch task duration in seconds by priority",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"priority"})
)
