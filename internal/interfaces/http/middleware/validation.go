package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dbanking/onboarding/internal/application/validation"
	"github.com/dbanking/onboarding/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes gin's binding validator name fields by their json or
// form tags, as the application validator does
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(validation.JSONTagName)
	}
}

// ClassifyBindError turns a gin binding error into an API code and message.
// Tag violations become ERR_VALIDATION; anything else is a malformed body.
func ClassifyBindError(err error) (code, message string) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fe.Field()+": "+validation.Message(fe))
		}
		return dto.ErrCodeValidation, strings.Join(parts, "; ")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size"
	}
	return dto.ErrCodeInvalidJSON, "Malformed request body"
}
