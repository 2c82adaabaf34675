package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	// PartitionKey groups events that must be delivered in order.
	PartitionKey() string
	CorrelationID() string
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID           uuid.UUID `json:"eventId"`
	Type         string    `json:"eventType"`
	Timestamp    time.Time `json:"occurredAtUtc"`
	AggID        uuid.UUID `json:"aggregateId"`
	AggType      string    `json:"aggregateType"`
	Correlation  string    `json:"correlationId,omitempty"`
	Version      int       `json:"schemaVersion,omitempty"`
	partitionKey string
}

// EventID returns the unique event identifier
func (e *BaseDomainEvent) EventID() uuid.UUID {
	return e.ID
}

// EventType returns the type of the event
func (e *BaseDomainEvent) EventType() string {
	return e.Type
}

// OccurredAt returns when the event occurred
func (e *BaseDomainEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID returns the ID of the aggregate that produced this event
func (e *BaseDomainEvent) AggregateID() uuid.UUID {
	return e.AggID
}

// AggregateType returns the type of the aggregate
func (e *BaseDomainEvent) AggregateType() string {
	return e.AggType
}

// PartitionKey returns the ordering key; defaults to the aggregate id
func (e *BaseDomainEvent) PartitionKey() string {
	if e.partitionKey != "" {
		return e.partitionKey
	}
	return e.AggID.String()
}

// WithPartitionKey overrides the ordering key
func (e *BaseDomainEvent) WithPartitionKey(key string) {
	e.partitionKey = key
}

// CorrelationID returns the correlation id of the request that caused the event
func (e *BaseDomainEvent) CorrelationID() string {
	return e.Correlation
}

// SchemaVersion returns the schema version of the event
// Returns 1 if no version is set
func (e *BaseDomainEvent) SchemaVersion() int {
	if e.Version == 0 {
		return 1
	}
	return e.Version
}

// NewBaseDomainEvent creates a new base domain event with default schema version 1
func NewBaseDomainEvent(eventType, aggType string, aggID uuid.UUID, correlationID string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:          uuid.New(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggID:       aggID,
		AggType:     aggType,
		Correlation: correlationID,
		Version:     1,
	}
}

// EventMetadata is request-scoped information stamped onto events and audit
// records: who caused the change and which request it belongs to.
type EventMetadata struct {
	CorrelationID string
	SourceSystem  string
	Actor         string
}
