// Package leads implements the lead use cases: creation, listing and the
// sales status workflow.
//
// Status workflow:
//
//	new -> contacted -> qualified -> won
//	  \         \           \
//	   +---------+-----------+-> lost
//
// won and lost are terminal.
package leads

import (
	"strings"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/domain"
)

// Status is the position of a lead in the sales workflow.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
)

var transitions = map[Status][]Status{
	StatusNew:       {StatusContacted, StatusLost},
	StatusContacted: {StatusQualified, StatusLost},
	StatusQualified: {StatusWon, StatusLost},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusWon, StatusLost:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an INVALID_TRANSITION error when from -> to is not
// allowed and a VALIDATION_ERROR for an unknown target status.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return domain.Errorf(domain.KindValidation, "unknown lead status %q", to).
			WithDetails(map[string]any{"status": string(to)})
	}
	if CanTransition(from, to) {
		return nil
	}
	allowed := make([]string, 0, len(transitions[from]))
	for _, s := range transitions[from] {
		allowed = append(allowed, string(s))
	}
	return domain.Errorf(domain.KindInvalidTransition, "lead cannot move from %s to %s", from, to).
		WithDetails(map[string]any{
			"from":    string(from),
			"to":      string(to),
			"allowed": allowed,
		})
}

// Lead is a sales opportunity.
type Lead struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ContactID   string    `json:"contactId,omitempty"`
	CompanyName string    `json:"companyName,omitempty"`
	Value       float64   `json:"value,omitempty"`
	Source      string    `json:"source,omitempty"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// Draft is the user input for a new lead. New leads always start in
// StatusNew.
type Draft struct {
	Title       string  `json:"title" validate:"required,max=200"`
	ContactID   string  `json:"contactId" validate:"max=64"`
	CompanyName string  `json:"companyName" validate:"max=200"`
	Value       float64 `json:"value" validate:"gte=0"`
	Source      string  `json:"source" validate:"max=100"`
	Notes       string  `json:"notes" validate:"max=4000"`
}

func (d Draft) trimmed() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.ContactID = strings.TrimSpace(d.ContactID)
	d.CompanyName = strings.TrimSpace(d.CompanyName)
	d.Source = strings.TrimSpace(d.Source)
	d.Notes = strings.TrimSpace(d.Notes)
	return d
}

// Validate checks the draft after trimming.
func (d Draft) Validate() error {
	return domain.Validate(d.trimmed())
}

// CreateDTO is the create payload sent to the backend.
type CreateDTO struct {
	Title       string  `json:"title"`
	ContactID   string  `json:"contactId,omitempty"`
	CompanyName string  `json:"companyName,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Source      string  `json:"source,omitempty"`
	Status      Status  `json:"status"`
	Notes       string  `json:"notes,omitempty"`
}

// ToCreateDTO maps the draft to the create payload.
func (d Draft) ToCreateDTO() CreateDTO {
	t := d.trimmed()
	return CreateDTO{
		Title:       t.Title,
		ContactID:   t.ContactID,
		CompanyName: t.CompanyName,
		Value:       t.Value,
		Source:      t.Source,
		Status:      StatusNew,
		Notes:       t.Notes,
	}
}
