// Package validation checks application commands with struct tags and
// reports failures as domain validation errors.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Engine returns the shared validator. Field names in errors are the json
// tag names of the command fields.
func Engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(JSONTagName)
	})
	return validate
}

// JSONTagName names a struct field by its json tag, falling back to its form tag
func JSONTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
	}
	return name
}

// Struct validates cmd. Tag violations come back as one ValidationError
// naming every offending field.
func Struct(cmd any) error {
	err := Engine().Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.NewValidationError(err.Error())
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field()+": "+Message(fe))
	}
	return shared.NewValidationError(strings.Join(parts, "; "))
}

// Message returns a human-readable message for a failed tag
func Message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "e164":
		return "Must be an E.164 phone number"
	case "dive":
		return "Invalid element"
	default:
		return "Invalid value"
	}
}
