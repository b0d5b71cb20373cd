// Package contacts implements the contact use cases on top of a repository
// port, with duplicate detection through pkg/identity.
package contacts

import (
	"strings"
	"time"

	"github.com/Sternrassler/crm-cache/pkg/domain"
	"github.com/Sternrassler/crm-cache/pkg/identity"
)

// Contact is a person at a customer or partner company.
type Contact struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"companyName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Position    string    `json:"position,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// IdentityFields implements identity.Identifiable.
func (c Contact) IdentityFields() identity.Fields {
	return identity.Fields{
		CompanyName: c.CompanyName,
		Name:        c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
	}
}

// IdentityID implements identity.Described.
func (c Contact) IdentityID() string {
	return c.ID
}

// Draft is the user input for a new contact.
type Draft struct {
	Name        string `json:"name" validate:"required,max=200"`
	CompanyName string `json:"companyName" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,max=40"`
	Position    string `json:"position" validate:"max=200"`
	Notes       string `json:"notes" validate:"max=4000"`
}

// Validate checks the draft after trimming.
func (d Draft) Validate() error {
	return domain.Validate(d.trimmed())
}

func (d Draft) trimmed() Draft {
	return Draft{
		Name:        strings.TrimSpace(d.Name),
		CompanyName: strings.TrimSpace(d.CompanyName),
		Email:       strings.TrimSpace(d.Email),
		Phone:       strings.TrimSpace(d.Phone),
		Position:    strings.TrimSpace(d.Position),
		Notes:       strings.TrimSpace(d.Notes),
	}
}

// IdentityFields implements identity.Identifiable.
func (d Draft) IdentityFields() identity.Fields {
	return identity.Fields{
		CompanyName: d.CompanyName,
		Name:        d.Name,
		Email:       d.Email,
		Phone:       d.Phone,
	}
}

// CreateDTO is the create payload sent to the backend.
type CreateDTO struct {
	Name        string `json:"name"`
	CompanyName string `json:"companyName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Position    string `json:"position,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// ToCreateDTO maps the draft to the create payload. Email is lower-cased.
func (d Draft) ToCreateDTO() CreateDTO {
	t := d.trimmed()
	return CreateDTO{
		Name:        t.Name,
		CompanyName: t.CompanyName,
		Email:       strings.ToLower(t.Email),
		Phone:       t.Phone,
		Position:    t.Position,
		Notes:       t.Notes,
	}
}

// Patch is a partial update. Nil fields are left unchanged; a pointer to
// "" clears the field (except Name, which cannot be cleared).
type Patch struct {
	Name        *string
	CompanyName *string
	Email       *string
	Phone       *string
	Position    *string
	Notes       *string
}

// PatchDTO is the update payload sent to the backend.
type PatchDTO struct {
	Name        *string `json:"name,omitempty"`
	CompanyName *string `json:"companyName,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Position    *string `json:"position,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// IsEmpty reports whether the payload changes nothing.
func (p PatchDTO) IsEmpty() bool {
	return p.Name == nil && p.CompanyName == nil && p.Email == nil &&
		p.Phone == nil && p.Position == nil && p.Notes == nil
}

// ToDTO maps the patch to the update payload, trimming strings.
func (p Patch) ToDTO() PatchDTO {
	dto := PatchDTO{
		Name:        trimPtr(p.Name),
		CompanyName: trimPtr(p.CompanyName),
		Email:       trimPtr(p.Email),
		Phone:       trimPtr(p.Phone),
		Position:    trimPtr(p.Position),
		Notes:       trimPtr(p.Notes),
	}
	if dto.Email != nil {
		lower := strings.ToLower(*dto.Email)
		dto.Email = &lower
	}
	return dto
}

// patchValues carries the dereferenced patch for tag validation.
type patchValues struct {
	Name        string `json:"name" validate:"max=200"`
	CompanyName string `json:"companyName" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,max=40"`
	Position    string `json:"position" validate:"max=200"`
	Notes       string `json:"notes" validate:"max=4000"`
}

// Validate checks the fields present in the payload.
func (p PatchDTO) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return domain.NewError(domain.KindValidation, "invalid fields: name").
			WithDetails(map[string]any{"name": "required"})
	}
	return domain.Validate(patchValues{
		Name:        deref(p.Name),
		CompanyName: deref(p.CompanyName),
		Email:       deref(p.Email),
		Phone:       deref(p.Phone),
		Position:    deref(p.Position),
		Notes:       deref(p.Notes),
	})
}

// Candidate is a contact-like record checked for duplicates. ExcludeID
// removes the record being edited from the comparison.
type Candidate struct {
	identity.Fields
	ExcludeID string `json:"excludeId,omitempty"`
}

// UniquenessResult reports whether a candidate collides with a contact.
type UniquenessResult struct {
	Duplicate bool     `json:"duplicate"`
	Key       string   `json:"key"`
	Match     *Contact `json:"match,omitempty"`
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// String returns a pointer to s, for building patches.
func String(s string) *string { return &s }
