package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot carries identity, the optimistic-lock version and the
// events raised since the aggregate was loaded. Last-modified timestamps are
// kept by each aggregate because their nullability differs.
type BaseAggregateRoot struct {
	ID        uuid.UUID
	CreatedAt time.Time

	// Version starts at 1 and is bumped once per persisted mutation.
	Version int

	pending []DomainEvent
}

// NewBaseAggregateRoot assigns a fresh id at version 1.
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
}

func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

func (a *BaseAggregateRoot) AddDomainEvent(e DomainEvent) { a.pending = append(a.pending, e) }

// GetDomainEvents returns the pending events without clearing them.
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent { return a.pending }

func (a *BaseAggregateRoot) ClearDomainEvents() { a.pending = nil }

// PullDomainEvents hands the pending events to the caller and clears them,
// so a retried save cannot enqueue the same event twice.
func (a *BaseAggregateRoot) PullDomainEvents() []DomainEvent {
	events := a.pending
	a.pending = nil
	return events
}
