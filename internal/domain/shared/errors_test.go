package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := NewNotFoundError("Customer not found")
	wrapped := fmt.Errorf("load customer: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, "Customer not found", err.Error())
}

func TestTaxonomyPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"duplicate", NewDuplicateError("dup"), IsDuplicate},
		{"not found", NewNotFoundError("nf"), IsNotFound},
		{"validation", NewValidationError("bad"), IsValidation},
		{"conflict", NewConflictError("terminal"), IsConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(tt.err))
			assert.True(t, IsRecoverable(tt.err))
		})
	}
}

func TestIsRecoverable_InfrastructureErrors(t *testing.T) {
	assert.False(t, IsRecoverable(errors.New("connection reset")))
	assert.False(t, IsRecoverable(fmt.Errorf("append audit record: %w", errors.New("disk full"))))
	assert.False(t, IsRecoverable(nil))
}
