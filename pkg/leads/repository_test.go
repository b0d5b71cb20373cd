package leads_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/Sternrassler/crm-cache/internal/testutil"
	"github.com/Sternrassler/crm-cache/pkg/cache"
	"github.com/Sternrassler/crm-cache/pkg/client"
	"github.com/Sternrassler/crm-cache/pkg/config"
	"github.com/Sternrassler/crm-cache/pkg/domain"
	"github.com/Sternrassler/crm-cache/pkg/leads"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) (*testutil.MockAPI, *testutil.Collection, *leads.HTTPRepository) {
	t.Helper()
	api := testutil.NewMockAPI()
	t.Cleanup(api.Close)

	cfg := client.DefaultTransportConfig(api.URL())
	cfg.Retry = &client.RetryConfig{MaxAttempts: 1}
	cfg.Breaker.Name = t.Name()
	tr, err := client.NewTransport(cfg)
	require.NoError(t, err)

	prefs := config.NewService(context.Background(), nil, config.DefaultCacheConfig(), zerolog.Nop())
	cc := client.NewCachedClient(tr, cache.NewStore(20), prefs, client.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { cc.Close() })

	return api, api.ServeCollection(leads.DefaultBasePath), leads.NewHTTPRepository(cc)
}

func TestHTTPRepository_StatusWorkflow(t *testing.T) {
	api, coll, repo := newRepo(t)
	svc := leads.NewService(repo, zerolog.Nop())
	ctx := context.Background()

	l, err := svc.CreateLead(ctx, leads.Draft{Title: "Roof", Value: 900})
	require.NoError(t, err)
	assert.Equal(t, leads.StatusNew, l.Status)

	moved, err := svc.ChangeStatus(ctx, l.ID, leads.StatusContacted)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, moved.Status)

	stored, ok := coll.Get(l.ID)
	require.True(t, ok)
	assert.Equal(t, "contacted", stored["status"])
	assert.Equal(t, "Roof", stored["title"], "save sends the whole record")

	// Both reads were served by write-through entries.
	assert.Zero(t, api.Count(http.MethodGet, "/leads/"+l.ID))
}

func TestHTTPRepository_NotFound(t *testing.T) {
	_, _, repo := newRepo(t)
	_, err := repo.FindByID(context.Background(), "nope")
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "got %v", err)
}

func TestHTTPRepository_ListFreshness(t *testing.T) {
	api, coll, repo := newRepo(t)
	coll.Seed(map[string]any{"id": "l-1", "title": "Roof", "status": "new"})
	ctx := context.Background()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	coll.Seed(map[string]any{"id": "l-2", "title": "Fence", "status": "new"})
	list, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "fresh cached list is served")

	require.NoError(t, repo.Delete(ctx, "l-1"))
	list, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "l-2", list[0].ID)
	assert.Equal(t, 2, api.Count(http.MethodGet, "/leads"))
}
