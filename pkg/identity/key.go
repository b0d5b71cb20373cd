package identity

import "strings"

// KeySeparator joins the normalized components of an identity key.
const KeySeparator = "|"

// Fields holds the identity-bearing fields of a contact-like record.
// An empty string means the field is absent.
type Fields struct {
	CompanyName string `json:"companyName,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Options selects which fields take part in the identity key.
type Options struct {
	UseCompany bool
	UseName    bool
	UseEmail   bool
	UsePhone   bool
}

// DefaultOptions uses all four fields.
func DefaultOptions() Options {
	return Options{
		UseCompany: true,
		UseName:    true,
		UseEmail:   true,
		UsePhone:   true,
	}
}

// Identifiable is implemented by records that expose identity fields.
type Identifiable interface {
	IdentityFields() Fields
}

// IdentityFields lets Fields be used directly as a record.
func (f Fields) IdentityFields() Fields {
	return f
}

// Normalize applies the per-field normalization rules.
func (f Fields) Normalize() Fields {
	return Fields{
		CompanyName: NormalizeCompany(f.CompanyName),
		Name:        NormalizeName(f.Name),
		Email:       NormalizeEmail(f.Email),
		Phone:       NormalizePhone(f.Phone),
	}
}

// Key builds the composite identity key of f.
//
// Components excluded by opts count as empty, and empty components are
// dropped before joining. Records that lack different subsets of fields can
// therefore share a key (e.g. a record with only a name and another with
// only an identical email never collide, but two records that only carry the
// same name do). This coarse matching is intentional.
func Key(f Fields, opts Options) string {
	n := f.Normalize()

	parts := make([]string, 0, 4)
	if opts.UseCompany && n.CompanyName != "" {
		parts = append(parts, n.CompanyName)
	}
	if opts.UseName && n.Name != "" {
		parts = append(parts, n.Name)
	}
	if opts.UseEmail && n.Email != "" {
		parts = append(parts, n.Email)
	}
	if opts.UsePhone && n.Phone != "" {
		parts = append(parts, n.Phone)
	}

	return strings.Join(parts, KeySeparator)
}
