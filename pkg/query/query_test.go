package query_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/crm-cache/internal/testutil"
	"github.com/Sternrassler/crm-cache/pkg/cache"
	"github.com/Sternrassler/crm-cache/pkg/client"
	"github.com/Sternrassler/crm-cache/pkg/config"
	"github.com/Sternrassler/crm-cache/pkg/query"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var projectsReq = client.RequestConfig{Resource: config.ResourceProjects}

func setup(t *testing.T) (*testutil.FakeHTTPClient, *client.CachedClient, *clock) {
	t.Helper()
	fake := testutil.NewFakeHTTPClient()
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewStore(10, cache.WithClock(clk.Now))
	cfg := config.NewService(context.Background(), nil, config.DefaultCacheConfig(), zerolog.Nop())
	c := client.NewCachedClient(fake, store, cfg, client.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { c.Close() })
	return fake, c, clk
}

func TestQuery_InitialSnapshotIsLoading(t *testing.T) {
	_, c, _ := setup(t)
	q := query.New[[]project](c, "/projects", projectsReq)
	assert.Equal(t, query.StatusLoading, q.Snapshot().Status)
}

func TestQuery_LoadFromNetwork(t *testing.T) {
	fake, c, _ := setup(t)
	fake.OnJSON(http.MethodGet, "/projects", []project{{ID: "1", Name: "Roof"}})

	q := query.New[[]project](c, "/projects", projectsReq)
	res := q.Load(context.Background())

	require.Equal(t, query.StatusSuccess, res.Status)
	assert.False(t, res.FromCache)
	assert.False(t, res.IsStale)
	assert.Equal(t, "Roof", res.Data[0].Name)
}

func TestQuery_FreshCacheSkipsNetwork(t *testing.T) {
	fake, c, _ := setup(t)
	require.NoError(t, c.WriteThrough("/projects", projectsReq, []project{{ID: "1"}}))

	res := query.New[[]project](c, "/projects", projectsReq).Load(context.Background())

	assert.Equal(t, query.StatusSuccess, res.Status)
	assert.True(t, res.FromCache)
	assert.False(t, res.IsStale)
	assert.Empty(t, fake.Calls())
}

func TestQuery_StaleWhileRevalidate(t *testing.T) {
	fake, c, clk := setup(t)
	require.NoError(t, c.WriteThrough("/projects", projectsReq, []project{{ID: "1", Name: "old"}}))
	clk.Advance(10 * time.Minute)
	fake.OnJSON(http.MethodGet, "/projects", []project{{ID: "1", Name: "new"}})

	updates := make(chan query.Result[[]project], 1)
	q := query.New(c, "/projects", projectsReq, query.WithOnUpdate(func(r query.Result[[]project]) {
		updates <- r
	}))

	res := q.Load(context.Background())
	require.Equal(t, query.StatusSuccess, res.Status)
	assert.True(t, res.IsStale, "stale data is served immediately")
	assert.Equal(t, "old", res.Data[0].Name)

	select {
	case u := <-updates:
		assert.Equal(t, query.StatusSuccess, u.Status)
		assert.False(t, u.IsStale)
		assert.Equal(t, "new", u.Data[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("background revalidation did not finish")
	}

	assert.Equal(t, "new", q.Snapshot().Data[0].Name)
	assert.False(t, q.Revalidating())
}

func TestQuery_RevalidationFailureKeepsStaleData(t *testing.T) {
	fake, c, clk := setup(t)
	require.NoError(t, c.WriteThrough("/projects", projectsReq, []project{{ID: "1", Name: "old"}}))
	clk.Advance(10 * time.Minute)
	fake.OnError(http.MethodGet, "/projects", errors.New("offline"))

	updates := make(chan query.Result[[]project], 1)
	q := query.New(c, "/projects", projectsReq, query.WithOnUpdate(func(r query.Result[[]project]) {
		updates <- r
	}))
	q.Load(context.Background())

	select {
	case u := <-updates:
		assert.Error(t, u.Err)
		assert.True(t, u.IsStale)
		assert.Equal(t, "old", u.Data[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("background revalidation did not finish")
	}
}

func TestQuery_ErrorStatus(t *testing.T) {
	fake, c, _ := setup(t)
	fake.OnStatus(http.MethodGet, "/projects", http.StatusInternalServerError)

	res := query.New[[]project](c, "/projects", projectsReq).Load(context.Background())
	assert.Equal(t, query.StatusError, res.Status)
	assert.Equal(t, http.StatusInternalServerError, client.StatusCode(res.Err))
}

func TestQuery_DecodeError(t *testing.T) {
	fake, c, _ := setup(t)
	fake.On(http.MethodGet, "/projects", &client.Response{Data: []byte("not json"), Status: 200})

	res := query.New[[]project](c, "/projects", projectsReq).Load(context.Background())
	assert.Equal(t, query.StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestQuery_RefetchBypassesCache(t *testing.T) {
	fake, c, _ := setup(t)
	require.NoError(t, c.WriteThrough("/projects", projectsReq, []project{{ID: "cached"}}))
	fake.OnJSON(http.MethodGet, "/projects", []project{{ID: "remote"}})

	q := query.New[[]project](c, "/projects", projectsReq)
	assert.Equal(t, "cached", q.Load(context.Background()).Data[0].ID)

	res := q.Refetch(context.Background())
	require.Equal(t, query.StatusSuccess, res.Status)
	assert.Equal(t, "remote", res.Data[0].ID)
	assert.Equal(t, 1, fake.CallCount(http.MethodGet, "/projects"))

	again := q.Load(context.Background())
	assert.True(t, again.FromCache)
	assert.Equal(t, "remote", again.Data[0].ID, "refetch writes through")
}

func TestQuery_ErrorKeepsPreviousData(t *testing.T) {
	fake, c, _ := setup(t)
	fake.OnJSON(http.MethodGet, "/projects", []project{{ID: "1"}})
	q := query.New[[]project](c, "/projects", projectsReq)
	q.Load(context.Background())

	fake.OnError(http.MethodGet, "/projects", errors.New("down"))
	res := q.Refetch(context.Background())

	assert.Equal(t, query.StatusError, res.Status)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "1", res.Data[0].ID)
}

func TestQuery_LoadMarksEntryRecentlyUsed(t *testing.T) {
	fake := testutil.NewFakeHTTPClient()
	store := cache.NewStore(2)
	cfg := config.NewService(context.Background(), nil, config.DefaultCacheConfig(), zerolog.Nop())
	c := client.NewCachedClient(fake, store, cfg, client.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.WriteThrough("/projects/a", projectsReq, project{ID: "a"}))
	require.NoError(t, c.WriteThrough("/projects/b", projectsReq, project{ID: "b"}))

	res := query.New[project](c, "/projects/a", projectsReq).Load(context.Background())
	require.Equal(t, query.StatusSuccess, res.Status)
	require.True(t, res.FromCache)

	require.NoError(t, c.WriteThrough("/projects/c", projectsReq, project{ID: "c"}))

	_, aPresent := store.Entry(c.Key("/projects/a", projectsReq))
	_, bPresent := store.Entry(c.Key("/projects/b", projectsReq))
	assert.True(t, aPresent, "entry read through the query must survive eviction")
	assert.False(t, bPresent, "least recently used entry is evicted")
	assert.Equal(t, uint64(1), store.Stats().Hits)
	assert.Empty(t, fake.Calls())
}
