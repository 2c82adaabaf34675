package customer

import (
	"net/mail"
	"strings"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
)

// DateLayout is the wire and snapshot format of a date of birth
const DateLayout = "2006-01-02"

// Status represents the lifecycle status of a customer
type Status string

const (
	StatusPendingKyc Status = "PENDING_KYC"
	StatusVerified   Status = "VERIFIED"
	StatusClosed     Status = "CLOSED"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingKyc, StatusVerified, StatusClosed:
		return true
	}
	return false
}

// Mutable field names, used in CustomerUpdated.updatedFields and audit snapshots
const (
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldDateOfBirth = "dob"
)

// Customer is the aggregate root for an onboarded customer.
// KYC cases reference it by id; it holds no pointer to them.
type Customer struct {
	shared.BaseAggregateRoot
	FirstName      string
	LastName       string
	DateOfBirth    time.Time
	Email          string
	Phone          string
	Status         Status
	UpdatedAt      *time.Time
	IdempotencyKey string
}

// NewCustomerParams holds the fields required to onboard a customer
type NewCustomerParams struct {
	FirstName      string
	LastName       string
	DateOfBirth    time.Time
	Email          string
	Phone          string
	IdempotencyKey string
}

// NewCustomer creates a customer in PENDING_KYC and records CustomerCreated
func NewCustomer(p NewCustomerParams, meta shared.EventMetadata) (*Customer, error) {
	firstName := strings.TrimSpace(p.FirstName)
	lastName := strings.TrimSpace(p.LastName)
	if err := validateName("First name", firstName); err != nil {
		return nil, err
	}
	if err := validateName("Last name", lastName); err != nil {
		return nil, err
	}
	email := NormalizeEmail(p.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateDateOfBirth(p.DateOfBirth); err != nil {
		return nil, err
	}

	c := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		FirstName:         firstName,
		LastName:          lastName,
		DateOfBirth:       truncateDate(p.DateOfBirth),
		Email:             email,
		Phone:             NormalizePhone(p.Phone),
		Status:            StatusPendingKyc,
		IdempotencyKey:    strings.TrimSpace(p.IdempotencyKey),
	}

	c.AddDomainEvent(NewCustomerCreatedEvent(c, meta))

	return c, nil
}

// Patch carries the fields a caller may change. Status, email and phone are
// deliberately absent.
type Patch struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *time.Time
}

// IsEmpty reports whether the patch sets nothing
func (p Patch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.DateOfBirth == nil
}

// ApplyPatch applies the allowed mutable fields and returns the names of the
// fields whose value actually changed. When nothing changed no event is recorded.
func (c *Customer) ApplyPatch(p Patch, meta shared.EventMetadata) ([]string, error) {
	changed := make([]string, 0, 3)

	if p.FirstName != nil {
		v := strings.TrimSpace(*p.FirstName)
		if err := validateName("First name", v); err != nil {
			return nil, err
		}
		if v != c.FirstName {
			c.FirstName = v
			changed = append(changed, FieldFirstName)
		}
	}
	if p.LastName != nil {
		v := strings.TrimSpace(*p.LastName)
		if err := validateName("Last name", v); err != nil {
			return nil, err
		}
		if v != c.LastName {
			c.LastName = v
			changed = append(changed, FieldLastName)
		}
	}
	if p.DateOfBirth != nil {
		if err := validateDateOfBirth(*p.DateOfBirth); err != nil {
			return nil, err
		}
		v := truncateDate(*p.DateOfBirth)
		if !v.Equal(c.DateOfBirth) {
			c.DateOfBirth = v
			changed = append(changed, FieldDateOfBirth)
		}
	}

	if len(changed) == 0 {
		return changed, nil
	}

	c.touch()
	c.AddDomainEvent(NewCustomerUpdatedEvent(c, changed, meta))

	return changed, nil
}

// ReconcileStatus moves the customer to the status implied by a KYC outcome.
// It is the only path that can set VERIFIED. A closed customer is never
// reopened. Returns false when nothing changed.
func (c *Customer) ReconcileStatus(target Status) bool {
	if c.Status == target || c.Status == StatusClosed {
		return false
	}
	c.Status = target
	c.touch()
	return true
}

// FieldValues returns the current values of the named fields in snapshot form
func (c *Customer) FieldValues(fields []string) map[string]any {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case FieldFirstName:
			values[f] = c.FirstName
		case FieldLastName:
			values[f] = c.LastName
		case FieldDateOfBirth:
			values[f] = c.DateOfBirth.Format(DateLayout)
		}
	}
	return values
}

// Snapshot is the audited representation of a customer's key fields
type Snapshot struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	DateOfBirth string     `json:"dob"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Snapshot returns the customer's key fields
func (c *Customer) Snapshot() Snapshot {
	return Snapshot{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: c.DateOfBirth.Format(DateLayout),
		Email:       c.Email,
		Phone:       c.Phone,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (c *Customer) touch() {
	now := time.Now().UTC()
	c.UpdatedAt = &now
	c.IncrementVersion()
}

// NormalizeEmail lower-cases and trims an email for lookup and uniqueness
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims surrounding whitespace from a phone number
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

func validateName(label, v string) error {
	if v == "" {
		return shared.NewValidationError(label + " is required")
	}
	if len(v) > 100 {
		return shared.NewValidationError(label + " cannot exceed 100 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return shared.NewValidationError("Email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return shared.NewValidationError("Email is not a valid address")
	}
	return nil
}

func validateDateOfBirth(dob time.Time) error {
	if dob.IsZero() {
		return shared.NewValidationError("Date of birth is required")
	}
	if dob.After(time.Now()) {
		return shared.NewValidationError("Date of birth cannot be in the future")
	}
	return nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
