package dto

import (
	"errors"
	"net/http"

	"github.com/dbanking/onboarding/internal/domain/shared"
)

// Error codes returned in ErrorInfo.Code
const (
	ErrCodeInternal        = "ERR_INTERNAL"
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeNotFound        = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists   = "ERR_ALREADY_EXISTS"
	ErrCodeConflict        = "ERR_CONFLICT"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnavailable     = "ERR_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeAlreadyExists:   http.StatusConflict,
	ErrCodeConflict:        http.StatusConflict,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
}

// domainCodes maps the domain error taxonomy onto API error codes
var domainCodes = map[string]string{
	shared.CodeDuplicate:  ErrCodeAlreadyExists,
	shared.CodeNotFound:   ErrCodeNotFound,
	shared.CodeValidation: ErrCodeValidation,
	shared.CodeConflict:   ErrCodeConflict,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// FromError classifies err into an API code, status and client-facing
// message. Errors outside the domain taxonomy never leak their text.
func FromError(err error) (code string, status int, message string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		if code, ok := domainCodes[domainErr.Code]; ok {
			return code, GetHTTPStatus(code), domainErr.Message
		}
	}
	return ErrCodeInternal, http.StatusInternalServerError, "An unexpected error occurred"
}
