// Package query provides a cache-backed query object for presentation
// layers: a typed view of one request with a status, the decoded data and
// a staleness flag.
//
// Load serves fresh cache immediately. A stale entry is served at once
// with IsStale set while a background revalidation refreshes it. With
// nothing cached, Load fetches with the request's strategy.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/cache"
	"github.com/Sternrassler/crm-cache/pkg/client"
)

// Status is the state of a query.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is a snapshot of a query.
type Result[T any] struct {
	Data      T
	Status    Status
	Err       error
	IsStale   bool
	FromCache bool
	UpdatedAt time.Time
}

// Query is a typed, cache-backed request. It is safe for concurrent use.
type Query[T any] struct {
	client *client.CachedClient
	url    string
	cfg    client.RequestConfig

	mu           sync.Mutex
	result       Result[T]
	revalidating bool
	onUpdate     func(Result[T])
	now          func() time.Time
}

// Option configures a Query.
type Option[T any] func(*Query[T])

// WithOnUpdate registers fn to receive every background update.
func WithOnUpdate[T any](fn func(Result[T])) Option[T] {
	return func(q *Query[T]) { q.onUpdate = fn }
}

// New creates a query for url. Nothing is fetched until Load.
func New[T any](c *client.CachedClient, url string, cfg client.RequestConfig, opts ...Option[T]) *Query[T] {
	q := &Query[T]{
		client: c,
		url:    url,
		cfg:    cfg,
		result: Result[T]{Status: StatusLoading},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load resolves the query. A fresh cached value is served as is; a stale one
// is served with IsStale while a background revalidation runs; otherwise
// the request goes out with the configured strategy.
func (q *Query[T]) Load(ctx context.Context) Result[T] {
	q.setLoading()

	if cached, ok := q.client.Fresh(q.url, q.cfg); ok {
		var data T
		if err := cached.Decode(&data); err == nil {
			return q.set(Result[T]{Data: data, Status: StatusSuccess, FromCache: true})
		}
	}

	if cached, ok := q.client.Peek(q.url, q.cfg); ok && cached.Stale {
		var data T
		if err := cached.Decode(&data); err == nil {
			r := q.set(Result[T]{
				Data:      data,
				Status:    StatusSuccess,
				IsStale:   true,
				FromCache: true,
			})
			resource := string(q.cfg.Resource)
			if resource == "" {
				resource = "none"
			}
			cache.StaleServed.WithLabelValues(resource, "revalidate").Inc()
			q.startRevalidation()
			return r
		}
	}

	cfg := q.cfg
	if cfg.Strategy == "" || cfg.Strategy == client.CacheFirst {
		// The fresh lookup above already missed.
		cfg.Strategy = client.NetworkOnly
	}
	return q.fetch(ctx, cfg)
}

// Refetch bypasses any cached value and writes the result through.
func (q *Query[T]) Refetch(ctx context.Context) Result[T] {
	q.setLoading()
	cfg := q.cfg
	cfg.Strategy = client.NetworkOnly
	return q.fetch(ctx, cfg)
}

// Snapshot returns the latest result without doing any work.
func (q *Query[T]) Snapshot() Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Revalidating reports whether a background refresh is in flight.
func (q *Query[T]) Revalidating() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.revalidating
}

func (q *Query[T]) fetch(ctx context.Context, cfg client.RequestConfig) Result[T] {
	res, err := q.client.Get(ctx, q.url, cfg)
	if err != nil {
		return q.fail(err)
	}
	var data T
	if err := res.Decode(&data); err != nil {
		return q.fail(err)
	}
	return q.set(Result[T]{
		Data:      data,
		Status:    StatusSuccess,
		IsStale:   res.Stale,
		FromCache: res.FromCache,
	})
}

func (q *Query[T]) startRevalidation() {
	q.mu.Lock()
	if q.revalidating {
		q.mu.Unlock()
		return
	}
	q.revalidating = true
	q.mu.Unlock()

	go func() {
		res, err := q.client.Revalidate(context.Background(), q.url, q.cfg)

		var update Result[T]
		if err == nil {
			var data T
			if err = res.Decode(&data); err == nil {
				update = Result[T]{Data: data, Status: StatusSuccess}
			}
		}

		q.mu.Lock()
		q.revalidating = false
		if err != nil {
			// Keep serving the stale data; only record the failure.
			update = q.result
			update.Err = err
		}
		update.UpdatedAt = q.now()
		q.result = update
		onUpdate := q.onUpdate
		q.mu.Unlock()

		if onUpdate != nil {
			onUpdate(update)
		}
	}()
}

func (q *Query[T]) setLoading() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.result.Status = StatusLoading
	q.result.Err = nil
}

func (q *Query[T]) set(r Result[T]) Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	r.UpdatedAt = q.now()
	q.result = r
	return r
}

// fail keeps the previous data so callers can still render it.
func (q *Query[T]) fail(err error) Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.result.Status = StatusError
	q.result.Err = err
	q.result.IsStale = false
	q.result.UpdatedAt = q.now()
	return q.result
}
