package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names instead of Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// formatTags are validator tags whose failure means a malformed value rather
// than a missing or out-of-range one.
var formatTags = map[string]bool{
	"email":   true,
	"e164":    true,
	"url":     true,
	"uuid":    true,
	"uuid4":   true,
	"numeric": true,
}

// Validate checks v against its `validate` struct tags.
//
// When every failure is on a format tag the error is KindFormat, otherwise
// KindValidation. Details maps each offending field to the failed tag.
func Validate(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewError(KindValidation, "invalid input").WithCause(err)
	}

	kind := KindFormat
	details := make(map[string]any, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
		fields = append(fields, fe.Field())
		if !formatTags[fe.Tag()] {
			kind = KindValidation
		}
	}

	return &BusinessRuleError{
		Kind:    kind,
		Message: fmt.Sprintf("invalid fields: %s", strings.Join(fields, ", ")),
		Details: details,
		Err:     err,
	}
}
