package contacts

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

// Repository is the persistence port for contacts.
type Repository interface {
	List(ctx context.Context) ([]Contact, error)
	FindByID(ctx context.Context, id string) (Contact, error)
	Create(ctx context.Context, dto CreateDTO) (Contact, error)
	Update(ctx context.Context, id string, dto PatchDTO) (Contact, error)
	Delete(ctx context.Context, id string) error
}

// UniquenessChecker is the optional server-side uniqueness port.
type UniquenessChecker interface {
	CheckUniqueness(ctx context.Context, c Candidate) (UniquenessResult, error)
}

// DefaultBasePath is the collection path of contacts on the backend.
const DefaultBasePath = "/contacts"

// HTTPRepository is a Repository backed by the CRM REST API through the
// cache client. Reads use the contacts cache preferences. Writes
// invalidate the contacts resource, write the returned record through and
// queue a refresh of the list when a prefetch manager is configured.
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
		read:     client.RequestConfig{Resource: config.ResourceContacts},
		logger:   logging.NewLogger(logging.ComponentContacts),
	}
}

// WithStrategy returns a copy of r reading with strategy s.
func (r *HTTPRepository) WithStrategy(s client.Strategy) *HTTPRepository {
	cp := *r
	cp.read.Strategy = s
	return &cp
}

func (r *HTTPRepository) itemPath(id string) string {
	return r.basePath + "/" + url.PathEscape(id)
}

// List implements Repository.
func (r *HTTPRepository) List(ctx context.Context) ([]Contact, error) {
	res, err := r.client.Get(ctx, r.basePath, r.read)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	var out []Contact
	if err := res.Decode(&out); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return out, nil
}

// FindByID implements Repository.
func (r *HTTPRepository) FindByID(ctx context.Context, id string) (Contact, error) {
	res, err := r.client.Get(ctx, r.itemPath(id), r.read)
	if err != nil {
		return Contact{}, mapError(err, id)
	}
	var c Contact
	if err := res.Decode(&c); err != nil {
		return Contact{}, fmt.Errorf("find contact %s: %w", id, err)
	}
	return c, nil
}

// Create implements Repository.
func (r *HTTPRepository) Create(ctx context.Context, dto CreateDTO) (Contact, error) {
	resp, err := r.client.Post(ctx, r.basePath, dto, r.writeConfig())
	if err != nil {
		return Contact{}, mapError(err, "")
	}
	return r.afterWrite(resp, "create")
}

// Update implements Repository.
func (r *HTTPRepository) Update(ctx context.Context, id string, dto PatchDTO) (Contact, error) {
	resp, err := r.client.Put(ctx, r.itemPath(id), dto, r.writeConfig())
	if err != nil {
		return Contact{}, mapError(err, id)
	}
	return r.afterWrite(resp, "update")
}

// Delete implements Repository.
func (r *HTTPRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.client.Delete(ctx, r.itemPath(id), r.writeConfig()); err != nil {
		return mapError(err, id)
	}
	r.queueListRefresh()
	return nil
}

// CheckUniqueness implements UniquenessChecker against the backend's
// uniqueness endpoint. The check is never cached.
func (r *HTTPRepository) CheckUniqueness(ctx context.Context, c Candidate) (UniquenessResult, error) {
	resp, err := r.client.HTTP().Post(ctx, r.basePath+"/uniqueness", c)
	if err != nil {
		return UniquenessResult{}, fmt.Errorf("check contact uniqueness: %w", err)
	}
	var out UniquenessResult
	if err := resp.Decode(&out); err != nil {
		return UniquenessResult{}, fmt.Errorf("check contact uniqueness: %w", err)
	}
	return out, nil
}

func (r *HTTPRepository) writeConfig() client.WriteConfig {
	return client.WriteConfig{Invalidate: []config.Resource{config.ResourceContacts}}
}

func (r *HTTPRepository) afterWrite(resp *client.Response, op string) (Contact, error) {
	var c Contact
	if err := resp.Decode(&c); err != nil {
		return Contact{}, fmt.Errorf("%s contact: %w", op, err)
	}
	if c.ID != "" {
		if err := r.client.WriteThrough(r.itemPath(c.ID), r.read, resp); err != nil {
			r.logger.Warn().Err(err).Str("id", c.ID).Msg("Contact write-through failed")
		}
	}
	r.queueListRefresh()
	return c, nil
}

// queueListRefresh registers a low priority warm-up of the list; the
// owner of the prefetch manager decides when it runs.
func (r *HTTPRepository) queueListRefresh() {
	if r.client.PrefetchManager() == nil {
		return
	}
	if _, err := r.client.Prefetch(r.basePath, r.read, prefetch.WithPriority(prefetch.PriorityLow)); err != nil {
		r.logger.Debug().Err(err).Msg("List refresh not queued")
	}
}

func mapError(err error, id string) error {
	subject := "contact"
	if id != "" {
		subject = "contact " + id
	}
	return domain.FromStatus(client.StatusCode(err), subject, err)
}

var (
	_ Repository        = (*HTTPRepository)(nil)
	_ UniquenessChecker = (*HTTPRepository)(nil)
)
