package leads

import (
	"context"
	"fmt"

	"github.com/Sternrassler/crm-cache/pkg/domain"
	"github.com/Sternrassler/crm-cache/pkg/logging"
	"github.com/rs/zerolog"
)

// Service implements the lead use cases.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

// NewService creates a Service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logging.WithComponent(logger, logging.ComponentLeads),
	}
}

// CreateLead validates d and creates a lead in StatusNew.
func (s *Service) CreateLead(ctx context.Context, d Draft) (Lead, error) {
	if err := d.Validate(); err != nil {
		return Lead{}, err
	}
	l, err := s.repo.Create(ctx, d.ToCreateDTO())
	if err != nil {
		return Lead{}, err
	}
	s.logger.Info().Str("id", l.ID).Msg("Lead created")
	return l, nil
}

// ListLeads returns all leads, optionally restricted to the given statuses.
func (s *Service) ListLeads(ctx context.Context, statuses ...Status) ([]Lead, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return all, nil
	}

	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make([]Lead, 0, len(all))
	for _, l := range all {
		if want[l.Status] {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetLead returns one lead.
func (s *Service) GetLead(ctx context.Context, id string) (Lead, error) {
	return s.repo.FindByID(ctx, id)
}

// ChangeStatus moves lead id to status to. Setting the current status again
// returns the lead without writing.
func (s *Service) ChangeStatus(ctx context.Context, id string, to Status) (Lead, error) {
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if l.Status == to {
		return l, nil
	}
	if !l.Status.Valid() {
		return Lead{}, domain.Errorf(domain.KindIntegrityViolation, "lead %s has unknown status %q", id, l.Status)
	}
	if err := CheckTransition(l.Status, to); err != nil {
		return Lead{}, err
	}

	from := l.Status
	l.Status = to
	saved, err := s.repo.Save(ctx, l)
	if err != nil {
		return Lead{}, fmt.Errorf("change lead status: %w", err)
	}
	s.logger.Info().
		Str("id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Lead status changed")
	return saved, nil
}

// DeleteLead deletes lead id. Won leads are kept for reporting and cannot
// be deleted.
func (s *Service) DeleteLead(ctx context.Context, id string) error {
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if l.Status == StatusWon {
		return domain.Errorf(domain.KindPolicyViolation, "won lead %s cannot be deleted", id).
			WithDetails(map[string]any{"id": id, "status": string(l.Status)})
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("id", id).Msg("Lead deleted")
	return nil
}
