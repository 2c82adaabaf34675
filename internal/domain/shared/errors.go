package shared

import "errors"

// Error codes of the recoverable taxonomy. The HTTP layer maps each code to a
// client-facing status; anything else is treated as an internal failure.
const (
	CodeDuplicate  = "DUPLICATE"
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION"
	CodeConflict   = "CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrNotFound) matches any not-found error regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Sentinels for errors.Is comparisons
var (
	ErrDuplicate  = NewDomainError(CodeDuplicate, "Resource already exists")
	ErrNotFound   = NewDomainError(CodeNotFound, "Resource not found")
	ErrValidation = NewDomainError(CodeValidation, "Invalid request")
	ErrConflict   = NewDomainError(CodeConflict, "Operation not allowed in current state")
)

// NewDuplicateError reports a unique-constraint collision on create
func NewDuplicateError(message string) *DomainError {
	return NewDomainError(CodeDuplicate, message)
}

// NewNotFoundError reports a missing customer or KYC case
func NewNotFoundError(message string) *DomainError {
	return NewDomainError(CodeNotFound, message)
}

// NewValidationError reports a malformed request
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewConflictError reports an illegal state transition or a lost optimistic lock
func NewConflictError(message string) *DomainError {
	return NewDomainError(CodeConflict, message)
}

// IsDuplicate reports whether err is a DuplicateError
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRecoverable reports whether err belongs to the recoverable taxonomy.
// Audit and outbox failures never do.
func IsRecoverable(err error) bool {
	return IsDuplicate(err) || IsNotFound(err) || IsValidation(err) || IsConflict(err)
}
