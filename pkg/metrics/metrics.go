// Package metrics exposes the Prometheus registry used by the CRM cache
// client. Metrics are defined next to the code that records them (cache,
// client, prefetch) and registered through promauto.
//
// This package provides the scrape handler and the metric catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every promauto metric in this module uses.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - crm_cache_hits_total{resource, strategy} (Counter): Fresh hits served without a network call
//   - crm_cache_misses_total{resource, strategy} (Counter): Absent or stale entries
//   - crm_cache_stale_served_total{resource, reason} (Counter): Stale values served (fallback, revalidate)
//   - crm_cache_evictions_total (Counter): LRU capacity evictions
//   - crm_cache_entries (Gauge): Entries currently stored
//   - crm_cache_invalidations_total{resource, cause} (Counter): Entries removed by write, config or manual invalidation
//
// Request Metrics (pkg/client):
//   - crm_requests_total{method, status} (Counter): Backend requests by method and HTTP status
//   - crm_request_duration_seconds{method} (Histogram): Backend request duration
//   - crm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - crm_cache_revalidations_total{resource, result} (Counter): Background revalidations
//
// Retry and Circuit Breaker Metrics (pkg/client):
//   - crm_retries_total{error_class} (Counter): Retry attempts by error class
//   - crm_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - crm_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//   - crm_circuit_breaker_state{name} (Gauge): 0 closed, 1 half-open, 2 open
//
// Prefetch Metrics (pkg/prefetch):
//   - crm_prefetch_runs_total{result} (Counter): Task runs by result (completed, failed)
//   - crm_prefetch_duration_seconds{priority} (Histogram): Task duration by priority
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(crm_cache_hits_total[5m])) /
//   (sum(rate(crm_cache_hits_total[5m])) + sum(rate(crm_cache_misses_total[5m])))
//
//   # Stale fallbacks per resource
//   sum by (resource) (rate(crm_cache_stale_served_total{reason="fallback"}[5m]))
//
//   # Breaker open
//   crm_circuit_breaker_state == 2
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(crm_request_duration_seconds_bucket[5m]))
