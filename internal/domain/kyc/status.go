package kyc

import (
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/shared"
)

// Status represents the status of a KYC case
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusFailed   Status = "FAILED"
)

// IsValid reports whether s is one of the three known statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s
func (s Status) IsTerminal() bool {
	switch s {
	case StatusVerified, StatusFailed:
		return true
	case StatusPending:
		return false
	}
	return false
}

// transitions is the complete set of legal moves. A status absent from the
// outer map is unknown; an empty inner map is terminal.
var transitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusVerified: {},
		StatusFailed:   {},
	},
	StatusVerified: {},
	StatusFailed:   {},
}

// CheckTransition validates a move from one status to another.
// Unknown or non-terminal targets are caller errors; moves out of a terminal
// or otherwise illegal state are conflicts.
func CheckTransition(from, to Status) error {
	if to != StatusVerified && to != StatusFailed {
		return shared.NewValidationError(fmt.Sprintf("Target status must be VERIFIED or FAILED, got %q", to))
	}
	allowed, ok := transitions[from]
	if !ok {
		return shared.NewConflictError(fmt.Sprintf("KYC case is in unknown status %q", from))
	}
	if from.IsTerminal() {
		return shared.NewConflictError(fmt.Sprintf("KYC case is already %s", from))
	}
	if from != StatusPending {
		return shared.NewConflictError(fmt.Sprintf("KYC case must be PENDING, is %s", from))
	}
	if _, ok := allowed[to]; !ok {
		return shared.NewConflictError(fmt.Sprintf("Transition %s -> %s is not allowed", from, to))
	}
	return nil
}

// CustomerStatusFor maps a KYC outcome to the customer status it implies
func CustomerStatusFor(s Status) (customer.Status, error) {
	switch s {
	case StatusVerified:
		return customer.StatusVerified, nil
	case StatusFailed, StatusPending:
		return customer.StatusPendingKyc, nil
	}
	return "", fmt.Errorf("no customer status for KYC status %q", s)
}
