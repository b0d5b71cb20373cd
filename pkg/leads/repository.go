package leads

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Sternrassler/crm-cache/pkg/client"
	"github.com/Sternrassler/crm-cache/pkg/config"
	"github.com/Sternrassler/crm-cache/pkg/domain"
	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/Sternrassler/crm-cache/pkg/prefetch"
	"github.com/rs/zerolog"
)

// Repository is the persistence port for leads.
type Repository interface {
	List(ctx context.Context) ([]Lead, error)
	FindByID(ctx context.Context, id string) (Lead, error)
	Create(ctx context.Context, dto CreateDTO) (Lead, error)
	Save(ctx context.Context, l Lead) (Lead, error)
	Delete(ctx context.Context, id string) error
}

// DefaultBasePath is the collection path of leads on the backend.
const DefaultBasePath = "/leads"

// HTTPRepository is a Repository backed by the CRM REST API through the
// cache client.
type HTTPRepository struct {
	client   *client.CachedClient
	basePath string
	read     client.RequestConfig
	logger   zerolog.Logger
}

// NewHTTPRepository creates a repository rooted at DefaultBasePath.
func NewHTTPRepository(c *client.CachedClient) *HTTPRepository {
	return &HTTPRepository{
		client:   c,
		basePath: DefaultBasePath,
		read:     client.RequestConfig{Resource: config.ResourceLeads},
		logger:   logging.NewLogger(logging.ComponentLeads),
	}
}

func (r *HTTPRepository) itemPath(id string) string {
	return r.basePath + "/" + url.PathEscape(id)
}

// List implements Repository.
func (r *HTTPRepository) List(ctx context.Context) ([]Lead, error) {
	res, err := r.client.Get(ctx, r.basePath, r.read)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	var out []Lead
	if err := res.Decode(&out); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return out, nil
}

// FindByID implements Repository.
func (r *HTTPRepository) FindByID(ctx context.Context, id string) (Lead, error) {
	res, err := r.client.Get(ctx, r.itemPath(id), r.read)
	if err != nil {
		return Lead{}, mapError(err, id)
	}
	var l Lead
	if err := res.Decode(&l); err != nil {
		return Lead{}, fmt.Errorf("find lead %s: %w", id, err)
	}
	return l, nil
}

// Create implements Repository.
func (r *HTTPRepository) Create(ctx context.Context, dto CreateDTO) (Lead, error) {
	resp, err := r.client.Post(ctx, r.basePath, dto, r.writeConfig())
	if err != nil {
		return Lead{}, mapError(err, "")
	}
	return r.afterWrite(resp)
}

// Save replaces the stored lead with l.
func (r *HTTPRepository) Save(ctx context.Context, l Lead) (Lead, error) {
	resp, err := r.client.Put(ctx, r.itemPath(l.ID), l, r.writeConfig())
	if err != nil {
		return Lead{}, mapError(err, l.ID)
	}
	return r.afterWrite(resp)
}

// Delete implements Repository.
func (r *HTTPRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.client.Delete(ctx, r.itemPath(id), r.writeConfig()); err != nil {
		return mapError(err, id)
	}
	r.queueListRefresh()
	return nil
}

func (r *HTTPRepository) writeConfig() client.WriteConfig {
	return client.WriteConfig{Invalidate: []config.Resource{config.ResourceLeads}}
}

func (r *HTTPRepository) afterWrite(resp *client.Response) (Lead, error) {
	var l Lead
	if err := resp.Decode(&l); err != nil {
		return Lead{}, fmt.Errorf("decode lead: %w", err)
	}
	if l.ID != "" {
		if err := r.client.WriteThrough(r.itemPath(l.ID), r.read, resp); err != nil {
			r.logger.Warn().Err(err).Str("id", l.ID).Msg("Lead write-through failed")
		}
	}
	r.queueListRefresh()
	return l, nil
}

func (r *HTTPRepository) queueListRefresh() {
	if r.client.PrefetchManager() == nil {
		return
	}
	if _, err := r.client.Prefetch(r.basePath, r.read, prefetch.WithPriority(prefetch.PriorityLow)); err != nil {
		r.logger.Debug().Err(err).Msg("List refresh not queued")
	}
}

func mapError(err error, id string) error {
	subject := "lead"
	if id != "" {
		subject = "lead " + id
	}
	return domain.FromStatus(client.StatusCode(err), subject, err)
}

var _ Repository = (*HTTPRepository)(nil)
