package customer

import (
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeCustomer = "Customer"

// Event type constants
const (
	EventTypeCustomerCreated = "CustomerCreated"
	EventTypeCustomerUpdated = "CustomerUpdated"
)

// CustomerCreatedEvent is published when a new customer is onboarded
type CustomerCreatedEvent struct {
	shared.BaseDomainEvent
	CustomerID   uuid.UUID `json:"customerId"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	CreatedAtUtc time.Time `json:"createdAtUtc"`
	SourceSystem string    `json:"sourceSystem"`
}

// NewCustomerCreatedEvent creates a new CustomerCreatedEvent
func NewCustomerCreatedEvent(c *Customer, meta shared.EventMetadata) *CustomerCreatedEvent {
	return &CustomerCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerCreated, AggregateTypeCustomer, c.ID, meta.CorrelationID),
		CustomerID:      c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		CreatedAtUtc:    c.CreatedAt,
		SourceSystem:    meta.SourceSystem,
	}
}

// CustomerUpdatedEvent is published when a customer's profile is patched.
// Only the fields listed in UpdatedFields carry values.
type CustomerUpdatedEvent struct {
	shared.BaseDomainEvent
	CustomerID    uuid.UUID `json:"customerId"`
	FirstName     *string   `json:"firstName,omitempty"`
	LastName      *string   `json:"lastName,omitempty"`
	DateOfBirth   *string   `json:"dob,omitempty"`
	Email         string    `json:"email,omitempty"`
	UpdatedFields []string  `json:"updatedFields"`
	UpdatedAtUtc  time.Time `json:"updatedAtUtc"`
	SourceSystem  string    `json:"sourceSystem"`
	UpdatedBy     string    `json:"updatedBy,omitempty"`
}

// NewCustomerUpdatedEvent creates a new CustomerUpdatedEvent for the changed fields
func NewCustomerUpdatedEvent(c *Customer, changed []string, meta shared.EventMetadata) *CustomerUpdatedEvent {
	e := &CustomerUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCustomerUpdated, AggregateTypeCustomer, c.ID, meta.CorrelationID),
		CustomerID:      c.ID,
		Email:           c.Email,
		UpdatedFields:   append([]string(nil), changed...),
		SourceSystem:    meta.SourceSystem,
		UpdatedBy:       meta.Actor,
	}
	if c.UpdatedAt != nil {
		e.UpdatedAtUtc = *c.UpdatedAt
	}
	for _, f := range changed {
		switch f {
		case FieldFirstName:
			v := c.FirstName
			e.FirstName = &v
		case FieldLastName:
			v := c.LastName
			e.LastName = &v
		case FieldDateOfBirth:
			v := c.DateOfBirth.Format(DateLayout)
			e.DateOfBirth = &v
		}
	}
	return e
}
