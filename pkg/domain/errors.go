// Package domain holds the business rule error taxonomy shared by the
// identity policy and the application use cases.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a business rule violation.
type Kind string

const (
	// KindValidation marks input that fails field-level rules.
	KindValidation Kind = "VALIDATION_ERROR"

	// KindFormat marks values that are present but malformed.
	KindFormat Kind = "FORMAT_ERROR"

	// KindPolicyViolation marks operations forbidden by a business policy.
	KindPolicyViolation Kind = "POLICY_VIOLATION"

	// KindInvalidTransition marks a disallowed state change.
	KindInvalidTransition Kind = "INVALID_TRANSITION"

	// KindIntegrityViolation marks inconsistent data.
	KindIntegrityViolation Kind = "INTEGRITY_VIOLATION"

	// KindConflict marks a collision with an existing record.
	KindConflict Kind = "CONFLICT"

	// KindNotFound marks a missing record.
	KindNotFound Kind = "NOT_FOUND"
)

// BusinessRuleError is returned by domain validation and use cases. Callers
// surface Kind, Message and Details to the user unchanged.
type BusinessRuleError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *BusinessRuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *BusinessRuleError) Unwrap() error {
	return e.Err
}

// NewError creates a BusinessRuleError of the given kind.
func NewError(kind Kind, message string) *BusinessRuleError {
	return &BusinessRuleError{Kind: kind, Message: message}
}

// Errorf creates a BusinessRuleError with a formatted message.
func Errorf(kind Kind, format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured details and returns e.
func (e *BusinessRuleError) WithDetails(details map[string]any) *BusinessRuleError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error and returns e.
func (e *BusinessRuleError) WithCause(err error) *BusinessRuleError {
	e.Err = err
	return e
}

// KindOf returns the kind of the first BusinessRuleError in err's chain.
func KindOf(err error) (Kind, bool) {
	var bre *BusinessRuleError
	if errors.As(err, &bre) {
		return bre.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a BusinessRuleError of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// FromStatus maps a backend HTTP status to a BusinessRuleError: 404 is
// NOT_FOUND, 409 is CONFLICT and 422 is VALIDATION_ERROR. Other statuses
// return err unchanged.
func FromStatus(status int, message string, err error) error {
	var kind Kind
	switch status {
	case 404:
		kind = KindNotFound
	case 409:
		kind = KindConflict
	case 422:
		kind = KindValidation
	default:
		return err
	}
	return NewError(kind, message).WithCause(err)
}
