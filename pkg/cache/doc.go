// Package cache provides the in-memory request cache used by the CRM client.
//
// The store is a bounded LRU keyed by a stable serialization of the request
// identity, with a per-entry TTL:
//
//   - Deterministic keys: StableKey sorts map keys recursively, so requests
//     that differ only in parameter order share one entry
//   - Freshness: an entry is fresh while its age is <= its TTL; stale entries
//     stay readable through PeekAny for stale-while-revalidate reads
//   - LRU eviction: the least-recently-used entry is evicted once the store
//     exceeds its capacity
//   - Resource tags: entries can be purged per logical resource
//   - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore(500)
//
//	key := cache.RequestKey("GET", "/contacts", map[string]any{"page": 1})
//	store.SetWithResource(key, "contacts", payload, 5*time.Minute)
//
//	if hit, ok := store.GetFresh(key); ok {
//		// serve hit.Value without a network call
//	}
//
//	if hit, ok := store.PeekAny(key); ok && !hit.Fresh {
//		// serve the stale value and refresh in the background
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - crm_cache_hits_total{resource,strategy} - Fresh hits
//   - crm_cache_misses_total{resource,strategy} - Misses (absent or stale)
//   - crm_cache_stale_served_total{resource,reason} - Stale values served
//   - crm_cache_evictions_total - LRU evictions
//   - crm_cache_entries - Entries currently held
//   - crm_cache_invalidations_total{resource,cause} - Invalidated entries
//
// Strategy selection and network access live in package client; this package
// never performs I/O.
package cache
