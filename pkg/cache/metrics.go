package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh cache hits by resource and strategy
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_hits_total",
			Help: "Total number of cache hits served without a network call",
		},
		[]string{"resource", "strategy"},
	)

	// CacheMisses tracks cache misses by resource and strategy
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_misses_total",
			Help: "Total number of cache misses (absent or stale)",
		},
		[]string{"resource", "strategy"},
	)

	// StaleServed tracks stale values returned after a failed network fetch
	// or while a background revalidation runs.
	StaleServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_stale_served_total",
			Help: "Total number of stale cache values served",
		},
		[]string{"resource", "reason"}, // "fallback", "revalidate"
	)

	// CacheEvictions tracks LRU capacity evictions
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_cache_evictions_total",
			Help: "Total number of entries evicted by the LRU capacity limit",
		},
	)

	// CacheSize tracks the number of entries held in the store
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_cache_entries",
			Help: "Current number of entries in the cache store",
		},
	)

	// CacheInvalidations tracks entries removed by writes or config changes
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_cache_invalidations_total",
			Help: "Total number of cache entries invalidated",
		},
		[]string{"resource", "cause"}, // "write", "config", "manual"
	)
)
