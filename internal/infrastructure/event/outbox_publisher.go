package event

import (
	"context"
	"errors"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence"
)

// ErrNoTransaction is returned when events are saved outside a transaction
var ErrNoTransaction = errors.New("outbox: events must be saved inside a transaction")

// OutboxPublisher writes domain events to the outbox within the transaction
// carried by ctx, so they commit or roll back with the aggregate change
type OutboxPublisher struct {
	repo       shared.OutboxRepository
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates a new outbox publisher. A non-positive
// maxRetries keeps shared.DefaultMaxRetries.
func NewOutboxPublisher(repo shared.OutboxRepository, serializer *EventSerializer, maxRetries int) *OutboxPublisher {
	return &OutboxPublisher{
		repo:       repo,
		serializer: serializer,
		maxRetries: maxRetries,
	}
}

// SaveEvents implements shared.OutboxEventSaver
func (p *OutboxPublisher) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	if !persistence.InTx(ctx) {
		return ErrNoTransaction
	}

	// Entries of one call get strictly increasing creation times so their
	// relative order survives timestamp precision loss in the store.
	base := time.Now().UTC().Truncate(time.Microsecond)
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for i, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return err
		}

		entry := shared.NewOutboxEntry(event, payload)
		entry.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		entry.UpdatedAt = entry.CreatedAt
		if p.maxRetries > 0 {
			entry.MaxRetries = p.maxRetries
		}
		entries = append(entries, entry)
	}

	return p.repo.Save(ctx, entries...)
}

// Ensure OutboxPublisher implements OutboxEventSaver
var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
