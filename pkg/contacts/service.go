package contacts

import (
	"context"
	"fmt"

	"github.com/Sternrassler/crm-cache/pkg/domain"
	"github.com/Sternrassler/crm-cache/pkg/identity"
	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service implements the contact use cases.
type Service struct {
	repo       Repository
	uniqueness UniquenessChecker
	opts       identity.Options
	logger     zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithUniquenessChecker makes ValidateContactUniqueness delegate to the
// server instead of checking locally.
func WithUniquenessChecker(u UniquenessChecker) ServiceOption {
	return func(s *Service) { s.uniqueness = u }
}

// WithIdentityOptions selects the fields used for duplicate detection.
func WithIdentityOptions(opts identity.Options) ServiceOption {
	return func(s *Service) { s.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		opts:   identity.DefaultOptions(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, logging.ComponentContacts)
	return s
}

// CreateContact validates d and creates it. It does not check for
// duplicates; see CreateUniqueContact.
func (s *Service) CreateContact(ctx context.Context, d Draft) (Contact, error) {
	if err := d.Validate(); err != nil {
		return Contact{}, err
	}
	c, err := s.repo.Create(ctx, d.ToCreateDTO())
	if err != nil {
		return Contact{}, err
	}
	s.logger.Info().Str("id", c.ID).Msg("Contact created")
	return c, nil
}

// ValidateContactUniqueness reports whether c collides with an existing
// contact. A configured UniquenessChecker is authoritative; otherwise the
// full list is fetched and checked locally.
func (s *Service) ValidateContactUniqueness(ctx context.Context, c Candidate) (UniquenessResult, error) {
	if s.uniqueness != nil {
		return s.uniqueness.CheckUniqueness(ctx, c)
	}

	existing, err := s.repo.List(ctx)
	if err != nil {
		return UniquenessResult{}, fmt.Errorf("validate contact uniqueness: %w", err)
	}
	existing = exclude(existing, c.ExcludeID)

	res := identity.IsDuplicate(c.Fields, existing, s.opts)
	out := UniquenessResult{Duplicate: res.Duplicate, Key: res.Key}
	if res.Duplicate {
		match := res.Match
		out.Match = &match
	}
	return out, nil
}

// PatchContact applies p to the contact id. A patch that changes nothing
// reads the contact instead of writing.
func (s *Service) PatchContact(ctx context.Context, id string, p Patch) (Contact, error) {
	dto := p.ToDTO()
	if dto.IsEmpty() {
		return s.repo.FindByID(ctx, id)
	}
	if err := dto.Validate(); err != nil {
		return Contact{}, err
	}
	return s.repo.Update(ctx, id, dto)
}

// CreateUniqueContact validates d, rejects it with a CONFLICT error when it
// duplicates an existing contact and creates it otherwise.
func (s *Service) CreateUniqueContact(ctx context.Context, d Draft) (Contact, error) {
	if err := d.Validate(); err != nil {
		return Contact{}, err
	}

	candidate := d.IdentityFields()
	if s.uniqueness != nil {
		res, err := s.uniqueness.CheckUniqueness(ctx, Candidate{Fields: candidate})
		if err != nil {
			return Contact{}, err
		}
		if res.Duplicate {
			s.logger.Info().Str("key", res.Key).Msg("Duplicate contact rejected by server")
			return Contact{}, conflictError(res)
		}
	} else {
		existing, err := s.repo.List(ctx)
		if err != nil {
			return Contact{}, fmt.Errorf("create unique contact: %w", err)
		}
		if err := identity.AssertUnique(candidate, existing, s.opts); err != nil {
			s.logger.Info().Msg("Duplicate contact rejected")
			return Contact{}, err
		}
	}

	return s.CreateContact(ctx, d)
}

// GetContact returns one contact.
func (s *Service) GetContact(ctx context.Context, id string) (Contact, error) {
	return s.repo.FindByID(ctx, id)
}

// ListContacts returns all contacts.
func (s *Service) ListContacts(ctx context.Context) ([]Contact, error) {
	return s.repo.List(ctx)
}

// DeleteContact deletes one contact.
func (s *Service) DeleteContact(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// FindDuplicateGroups returns groups of contacts sharing an identity key.
func (s *Service) FindDuplicateGroups(ctx context.Context) ([][]Contact, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("find duplicate groups: %w", err)
	}
	return identity.FindDuplicateGroups(all, s.opts), nil
}

// ListPotentialDuplicates returns every contact matching c.
func (s *Service) ListPotentialDuplicates(ctx context.Context, c Candidate) ([]Contact, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list potential duplicates: %w", err)
	}
	return identity.ListPotentialDuplicates(c.Fields, exclude(all, c.ExcludeID), s.opts), nil
}

func conflictError(res UniquenessResult) error {
	details := map[string]any{"key": res.Key}
	if res.Match != nil {
		details["id"] = res.Match.ID
		details["name"] = res.Match.Name
		details["email"] = res.Match.Email
		details["phone"] = res.Match.Phone
	}
	return domain.NewError(domain.KindConflict, "a contact with the same identity already exists").
		WithDetails(details)
}

func exclude(list []Contact, id string) []Contact {
	if id == "" {
		return list
	}
	out := make([]Contact, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
