package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/cache"
	"github.com/Sternrassler/crm-cache/pkg/config"
	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/Sternrassler/crm-cache/pkg/prefetch"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultRevalidateTimeout bounds a background revalidation.
const DefaultRevalidateTimeout = 30 * time.Second

// ErrNoPrefetchManager is returned by Prefetch when no manager is configured.
var ErrNoPrefetchManager = errors.New("no prefetch manager configured")

// Strategy selects how a read consults the cache and the network.
type Strategy string

const (
	// CacheFirst serves a fresh entry without a network call and fetches otherwise.
	CacheFirst Strategy = "cache-first"

	// NetworkFirst fetches and falls back to a stale entry when the fetch fails.
	NetworkFirst Strategy = "network-first"

	// CacheOnly never touches the network.
	CacheOnly Strategy = "cache-only"

	// NetworkOnly always fetches and writes the result through.
	NetworkOnly Strategy = "network-only"
)

// RequestConfig describes a cached read.
type RequestConfig struct {
	// Resource selects the per-resource cache preferences.
	Resource config.Resource

	// Strategy defaults to CacheFirst.
	Strategy Strategy

	// TTL overrides the resource TTL when > 0.
	TTL time.Duration

	// Query is appended to the URL and is part of the cache key.
	Query url.Values

	// Cache, when set to false, bypasses the cache for this request.
	Cache *bool
}

// Result is the outcome of a cached read.
type Result struct {
	*Response

	Key       string
	FromCache bool
	Stale     bool
	Age       time.Duration
}

// WriteThroughEntry is a cache entry written after a successful write.
// A nil Value stores the write response itself; a *Response is stored as
// is; anything else is encoded as JSON.
type WriteThroughEntry struct {
	URL     string
	Request RequestConfig
	Value   any
}

// WriteConfig describes the cache side effects of a write.
type WriteConfig struct {
	Invalidate   []config.Resource
	WriteThrough []WriteThroughEntry
}

// Stats is a snapshot of the cache layer.
type Stats struct {
	Store    cache.StoreStats `json:"store"`
	Prefetch prefetch.Stats   `json:"prefetch"`
	Enabled  bool             `json:"enabled"`
	Disabled []string         `json:"disabledResources,omitempty"`
}

// CachedClient mediates reads between an HTTPClient and a cache.Store
// according to the configured strategy and preferences.
type CachedClient struct {
	http     HTTPClient
	store    *cache.Store
	config   *config.Service
	prefetch *prefetch.Manager

	group             singleflight.Group
	revalidateTimeout time.Duration
	logger            zerolog.Logger
	unsubscribe       func()
}

// Option configures a CachedClient.
type Option func(*CachedClient)

// WithPrefetchManager enables Prefetch and includes its stats.
func WithPrefetchManager(m *prefetch.Manager) Option {
	return func(c *CachedClient) { c.prefetch = m }
}

// WithLogger sets the logger. The component field is added by the client.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *CachedClient) { c.logger = logger }
}

// WithRevalidateTimeout bounds detached revalidation fetches.
func WithRevalidateTimeout(d time.Duration) Option {
	return func(c *CachedClient) {
		if d > 0 {
			c.revalidateTimeout = d
		}
	}
}

// NewCachedClient creates a CachedClient and subscribes it to preference
// changes: disabling a resource purges its entries and disabling the
// global switch clears the store.
func NewCachedClient(httpClient HTTPClient, store *cache.Store, cfg *config.Service, opts ...Option) *CachedClient {
	if httpClient == nil {
		panic("http client cannot be nil")
	}
	if store == nil {
		store = cache.NewStore(cache.DefaultCapacity)
	}
	if cfg == nil {
		cfg = config.NewService(context.Background(), nil, config.DefaultCacheConfig(), log.Logger)
	}

	c := &CachedClient{
		http:              httpClient,
		store:             store,
		config:            cfg,
		revalidateTimeout: DefaultRevalidateTimeout,
		logger:            log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, logging.ComponentCacheClient)
	c.unsubscribe = cfg.Subscribe(c.onConfigChange)
	return c
}

// Close detaches the client from preference changes.
func (c *CachedClient) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	return nil
}

// Store returns the underlying cache store.
func (c *CachedClient) Store() *cache.Store {
	return c.store
}

// Config returns the preference service.
func (c *CachedClient) Config() *config.Service {
	return c.config
}

// HTTP returns the underlying HTTPClient.
func (c *CachedClient) HTTP() HTTPClient {
	return c.http
}

// Key returns the cache key of a GET request.
func (c *CachedClient) Key(rawURL string, rc RequestConfig) string {
	var params any
	if len(rc.Query) > 0 {
		params = rc.Query
	}
	return cache.RequestKey(http.MethodGet, rawURL, params)
}

// Get performs a read governed by rc.Strategy.
func (c *CachedClient) Get(ctx context.Context, rawURL string, rc RequestConfig) (*Result, error) {
	strategy := rc.Strategy
	if strategy == "" {
		strategy = CacheFirst
	}
	key := c.Key(rawURL, rc)
	target := withQuery(rawURL, rc.Query)

	if !c.cachingEnabled(rc) {
		if strategy == CacheOnly {
			return nil, cache.ErrCacheUnavailable
		}
		resp, err := c.http.Get(ctx, target)
		if err != nil {
			return nil, err
		}
		return &Result{Response: resp, Key: key}, nil
	}

	switch strategy {
	case CacheOnly:
		if res, ok := c.fresh(key, rc, strategy); ok {
			return res, nil
		}
		return nil, cache.ErrCacheUnavailable

	case NetworkOnly:
		return c.fetch(ctx, target, key, rc)

	case NetworkFirst:
		res, err := c.fetch(ctx, target, key, rc)
		if err == nil {
			return res, nil
		}
		if stale, ok := c.Peek(rawURL, rc); ok {
			cache.StaleServed.WithLabelValues(resourceLabel(rc.Resource), "fallback").Inc()
			c.logger.Warn().
				Err(err).
				Str("url", target).
				Dur("age", stale.Age).
				Msg("Network fetch failed, serving cached value")
			stale.Stale = true
			return stale, nil
		}
		return nil, err

	case CacheFirst:
		if res, ok := c.fresh(key, rc, strategy); ok {
			return res, nil
		}
		return c.fetch(ctx, target, key, rc)

	default:
		return nil, fmt.Errorf("unknown cache strategy %q", strategy)
	}
}

// Fresh returns a fresh cached value for a request without touching the
// network. A hit counts in the store stats and marks the entry as recently
// used.
func (c *CachedClient) Fresh(rawURL string, rc RequestConfig) (*Result, bool) {
	if !c.cachingEnabled(rc) {
		return nil, false
	}
	strategy := rc.Strategy
	if strategy == "" {
		strategy = CacheFirst
	}
	return c.fresh(c.Key(rawURL, rc), rc, strategy)
}

// Peek returns the cached value for a request regardless of freshness.
// It never touches the network or recency.
func (c *CachedClient) Peek(rawURL string, rc RequestConfig) (*Result, bool) {
	if !c.cachingEnabled(rc) {
		return nil, false
	}
	key := c.Key(rawURL, rc)
	hit, ok := c.store.PeekAny(key)
	if !ok {
		return nil, false
	}
	resp, ok := hit.Value.(*Response)
	if !ok {
		return nil, false
	}
	return &Result{Response: resp, Key: key, FromCache: true, Stale: !hit.Fresh, Age: hit.Age}, true
}

// Revalidate refetches a request and writes the result through. Concurrent
// revalidations of the same key share one fetch, which runs detached from
// ctx and is bounded by the revalidate timeout; ctx only bounds the wait.
func (c *CachedClient) Revalidate(ctx context.Context, rawURL string, rc RequestConfig) (*Result, error) {
	key := c.Key(rawURL, rc)
	target := withQuery(rawURL, rc.Query)
	resource := resourceLabel(rc.Resource)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
		defer cancel()

		res, err := c.fetch(fetchCtx, target, key, rc)
		if err != nil {
			revalidationsTotal.WithLabelValues(resource, "failed").Inc()
			c.logger.Warn().Err(err).Str("url", target).Msg("Background revalidation failed")
			return nil, err
		}
		revalidationsTotal.WithLabelValues(resource, "refreshed").Inc()
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

// Post sends a write and applies wc after a successful response.
func (c *CachedClient) Post(ctx context.Context, rawURL string, body any, wc WriteConfig) (*Response, error) {
	resp, err := c.http.Post(ctx, rawURL, body)
	if err != nil {
		return nil, err
	}
	c.afterWrite(resp, wc)
	return resp, nil
}

// Put sends a write and applies wc after a successful response.
func (c *CachedClient) Put(ctx context.Context, rawURL string, body any, wc WriteConfig) (*Response, error) {
	resp, err := c.http.Put(ctx, rawURL, body)
	if err != nil {
		return nil, err
	}
	c.afterWrite(resp, wc)
	return resp, nil
}

// Delete sends a delete and applies wc after a successful response.
func (c *CachedClient) Delete(ctx context.Context, rawURL string, wc WriteConfig) (*Response, error) {
	resp, err := c.http.Delete(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c.afterWrite(resp, wc)
	return resp, nil
}

func (c *CachedClient) afterWrite(resp *Response, wc WriteConfig) {
	for _, r := range wc.Invalidate {
		c.invalidate(r, "write")
	}
	for _, e := range wc.WriteThrough {
		value := e.Value
		if value == nil {
			value = resp
		}
		if err := c.WriteThrough(e.URL, e.Request, value); err != nil {
			c.logger.Warn().Err(err).Str("url", e.URL).Msg("Write-through failed")
		}
	}
}

// WriteThrough stores value as the cached response of a GET request. It is
// a no-op when caching is disabled for the request.
func (c *CachedClient) WriteThrough(rawURL string, rc RequestConfig, value any) error {
	if !c.cachingEnabled(rc) {
		return nil
	}

	resp, ok := value.(*Response)
	if !ok {
		var err error
		if resp, err = NewJSONResponse(value); err != nil {
			return fmt.Errorf("write-through %s: %w", rawURL, err)
		}
	}

	key := c.Key(rawURL, rc)
	c.store.SetWithResource(key, string(rc.Resource), resp, c.ttl(rc))
	if c.config.Debug().Log {
		c.logger.Debug().Str("url", rawURL).Str("resource", string(rc.Resource)).Msg("Cache write-through")
	}
	return nil
}

// Invalidate removes every entry of resource and returns how many were
// removed.
func (c *CachedClient) Invalidate(resource config.Resource) int {
	return c.invalidate(resource, "manual")
}

// InvalidateRequest removes the entry of a single request.
func (c *CachedClient) InvalidateRequest(rawURL string, rc RequestConfig) bool {
	removed := c.store.Delete(c.Key(rawURL, rc))
	if removed {
		cache.CacheInvalidations.WithLabelValues(resourceLabel(rc.Resource), "manual").Inc()
	}
	return removed
}

// Clear empties the store.
func (c *CachedClient) Clear() {
	n := c.store.Len()
	c.store.Clear()
	if n > 0 {
		cache.CacheInvalidations.WithLabelValues("all", "manual").Add(float64(n))
	}
}

// Prefetch registers a network-only warm-up of a request with the prefetch
// manager and returns the task id. The task key is the request cache key.
func (c *CachedClient) Prefetch(rawURL string, rc RequestConfig, opts ...prefetch.Option) (string, error) {
	if c.prefetch == nil {
		return "", ErrNoPrefetchManager
	}
	warm := rc
	warm.Strategy = NetworkOnly
	fn := func(ctx context.Context) error {
		_, err := c.Get(ctx, rawURL, warm)
		return err
	}
	return c.prefetch.Register(c.Key(rawURL, rc), fn, opts...), nil
}

// PrefetchManager returns the configured prefetch manager, if any.
func (c *CachedClient) PrefetchManager() *prefetch.Manager {
	return c.prefetch
}

// Stats returns a snapshot of the cache layer.
func (c *CachedClient) Stats() Stats {
	cfg := c.config.Get()
	s := Stats{
		Store:   c.store.Stats(),
		Enabled: cfg.Enabled,
	}
	for _, r := range cfg.DisabledResources() {
		s.Disabled = append(s.Disabled, string(r))
	}
	if c.prefetch != nil {
		s.Prefetch = c.prefetch.Stats()
	}
	return s
}

func (c *CachedClient) cachingEnabled(rc RequestConfig) bool {
	if rc.Cache != nil && !*rc.Cache {
		return false
	}
	if rc.Resource == "" {
		return c.config.Get().Enabled
	}
	return c.config.IsEnabled(rc.Resource)
}

func (c *CachedClient) ttl(rc RequestConfig) time.Duration {
	if rc.TTL > 0 {
		return rc.TTL
	}
	if rc.Resource == "" {
		return config.DefaultResourceTTL
	}
	return c.config.TTL(rc.Resource)
}

// fresh returns a fresh hit and records hit/miss metrics.
func (c *CachedClient) fresh(key string, rc RequestConfig, strategy Strategy) (*Result, bool) {
	resource := resourceLabel(rc.Resource)
	hit, ok := c.store.GetFresh(key)
	if ok {
		if resp, isResp := hit.Value.(*Response); isResp {
			cache.CacheHits.WithLabelValues(resource, string(strategy)).Inc()
			if c.config.Debug().LogCacheHits {
				c.logger.Debug().
					Str("resource", resource).
					Str("strategy", string(strategy)).
					Str("key", key).
					Dur("age", hit.Age).
					Msg("Cache hit")
			}
			return &Result{Response: resp, Key: key, FromCache: true, Age: hit.Age}, true
		}
	}

	cache.CacheMisses.WithLabelValues(resource, string(strategy)).Inc()
	if c.config.Debug().LogCacheMisses {
		c.logger.Debug().
			Str("resource", resource).
			Str("strategy", string(strategy)).
			Str("key", key).
			Msg("Cache miss")
	}
	return nil, false
}

// fetch performs the network read and stores the complete response. Nothing
// is written when the fetch fails or caching was disabled meanwhile.
func (c *CachedClient) fetch(ctx context.Context, target, key string, rc RequestConfig) (*Result, error) {
	resp, err := c.http.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	if c.cachingEnabled(rc) {
		c.store.SetWithResource(key, string(rc.Resource), resp, c.ttl(rc))
	}
	return &Result{Response: resp, Key: key}, nil
}

func (c *CachedClient) invalidate(resource config.Resource, cause string) int {
	n := c.store.DeleteResource(string(resource))
	if n > 0 {
		cache.CacheInvalidations.WithLabelValues(string(resource), cause).Add(float64(n))
	}
	if c.config.Debug().Log {
		c.logger.Debug().Str("resource", string(resource)).Str("cause", cause).Int("removed", n).Msg("Cache invalidated")
	}
	return n
}

func (c *CachedClient) onConfigChange(prev, next config.CacheConfig) {
	if prev.Enabled && !next.Enabled {
		n := c.store.Len()
		c.store.Clear()
		cache.CacheInvalidations.WithLabelValues("all", "config").Add(float64(n))
		c.logger.Info().Int("removed", n).Msg("Cache disabled, store cleared")
		return
	}
	for _, r := range config.Resources() {
		if prev.IsEnabled(r) && !next.IsEnabled(r) {
			n := c.invalidate(r, "config")
			c.logger.Info().Str("resource", string(r)).Int("removed", n).Msg("Resource caching disabled")
		}
	}
}

func resourceLabel(r config.Resource) string {
	if r == "" {
		return "none"
	}
	return string(r)
}

func withQuery(rawURL string, q url.Values) string {
	if len(q) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + q.Encode()
}
