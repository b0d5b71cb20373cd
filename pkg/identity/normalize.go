// Package identity implements contact identity normalization and duplicate
// detection.
//
// A contact's identity-bearing fields (company, name, email, phone) are
// normalized into a composite key. Existing collections are indexed by that
// key, and candidates are checked against the index and then against the
// whole collection.
package identity

import (
	"strings"
)

// NormalizeText collapses every whitespace run into a single space and trims
// the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeCompany normalizes a company name: text rules, then lower case.
func NormalizeCompany(s string) string {
	return strings.ToLower(NormalizeText(s))
}

// NormalizeName normalizes a person name. Case is preserved.
func NormalizeName(s string) string {
	return NormalizeText(s)
}

// NormalizeEmail trims and lower-cases an email address.
// An empty result means the field is absent.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips every non-digit. A '+' in the very first position
// is kept, so "+" alone stays "+"; a '+' after leading whitespace is not
// first and is dropped. An empty result means the field is absent.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	if strings.HasPrefix(s, "+") {
		b.WriteByte('+')
		s = s[1:]
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
