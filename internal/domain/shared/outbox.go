package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry.
//
//	PENDING -> PROCESSING -> SENT
//	               |
//	               +-> FAILED -> PROCESSING ... -> DEAD -> PENDING (manual retry)
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// DefaultMaxRetries is the publish budget of a new entry.
const DefaultMaxRetries = 5

// OutboxEntry is a domain event written in the same transaction as the state
// change that raised it, waiting to be published to the broker.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	PartitionKey  string
	CorrelationID string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps an event and its serialized payload.
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now().UTC()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		PartitionKey:  event.PartitionKey(),
		CorrelationID: event.CorrelationID(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *OutboxEntry) IsDead() bool { return e.Status == OutboxStatusDead }

func (e *OutboxEntry) touch() time.Time {
	now := time.Now().UTC()
	e.UpdatedAt = now
	return now
}

func (e *OutboxEntry) MarkSent() {
	now := e.touch()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
}

// MarkFailed spends one attempt. The entry is dead once the budget is gone,
// otherwise it is scheduled after the default retry backoff.
func (e *OutboxEntry) MarkFailed(reason string) {
	now := e.touch()
	e.RetryCount++
	e.LastError = reason

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	next := now.Add(DefaultRetryPolicy().Backoff(e.RetryCount))
	e.Status = OutboxStatusFailed
	e.NextRetryAt = &next
}

// Release hands a claimed entry back without spending an attempt. The
// processor does this for entries queued behind a failed one of the same
// partition key.
func (e *OutboxEntry) Release() {
	if e.Status != OutboxStatusProcessing {
		return
	}
	e.touch()
	e.Status = OutboxStatusPending
	if e.RetryCount > 0 {
		e.Status = OutboxStatusFailed
	}
}

// ResetForRetry requeues a dead entry with a fresh budget.
func (e *OutboxEntry) ResetForRetry() error {
	if e.Status != OutboxStatusDead {
		return NewConflictError(fmt.Sprintf("outbox entry is %s; only DEAD entries can be retried", e.Status))
	}
	e.touch()
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	return nil
}

// OutboxRepository persists outbox entries. Claiming is done in the database
// so that concurrent processors never publish the same entry twice.
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error

	// FindPending returns PENDING entries oldest first, skipping partition
	// keys that still have an undelivered FAILED entry.
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)

	// MarkProcessing claims the given entries and returns the ones this
	// caller won.
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error

	// DeleteOlderThan purges SENT entries processed before the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)

	// ReleaseStale requeues entries left in PROCESSING since before, as
	// after a crash between claim and publish.
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
