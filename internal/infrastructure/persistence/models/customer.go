package models

import (
	"time"

	"github.com/dbanking/onboarding/internal/domain/customer"
)

// CustomerModel is the persistence model for the Customer aggregate root
type CustomerModel struct {
	AggregateModel
	FirstName      string          `gorm:"type:varchar(100);not null"`
	LastName       string          `gorm:"type:varchar(100);not null"`
	DateOfBirth    time.Time       `gorm:"column:dob;type:date;not null"`
	Email          string          `gorm:"type:varchar(320);not null"`
	Phone          string          `gorm:"type:varchar(32);index"`
	Status         customer.Status `gorm:"type:varchar(20);not null"`
	IdempotencyKey *string         `gorm:"type:varchar(100);uniqueIndex"`
	UpdatedAt      *time.Time      `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer
func (m *CustomerModel) ToDomain() *customer.Customer {
	c := &customer.Customer{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		DateOfBirth:       dateOnly(m.DateOfBirth),
		Email:             m.Email,
		Phone:             m.Phone,
		Status:            m.Status,
		UpdatedAt:         utcPtr(m.UpdatedAt),
	}
	if m.IdempotencyKey != nil {
		c.IdempotencyKey = *m.IdempotencyKey
	}
	return c
}

// FromDomain populates the persistence model from a domain Customer
func (m *CustomerModel) FromDomain(c *customer.Customer) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.FirstName = c.FirstName
	m.LastName = c.LastName
	m.DateOfBirth = c.DateOfBirth
	m.Email = c.Email
	m.Phone = c.Phone
	m.Status = c.Status
	m.UpdatedAt = c.UpdatedAt
	m.IdempotencyKey = nil
	if c.IdempotencyKey != "" {
		key := c.IdempotencyKey
		m.IdempotencyKey = &key
	}
}

// CustomerModelFromDomain creates a new persistence model from a domain Customer
func CustomerModelFromDomain(c *customer.Customer) *CustomerModel {
	m := &CustomerModel{}
	m.FromDomain(c)
	return m
}

// dateOnly normalizes a scanned DATE column to midnight UTC
func dateOnly(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

