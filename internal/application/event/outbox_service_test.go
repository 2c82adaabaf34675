package event

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryOutboxRepo is an in-memory OutboxRepository for OutboxService tests
type memoryOutboxRepo struct {
	entries  map[uuid.UUID]*shared.OutboxEntry
	countErr error
}

func newMemoryOutboxRepo() *memoryOutboxRepo {
	return &memoryOutboxRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *memoryOutboxRepo) add(status shared.OutboxStatus, updated time.Time) *shared.OutboxEntry {
	e := &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "KycStatusChanged",
		AggregateID:   uuid.New(),
		AggregateType: "KycCase",
		PartitionKey:  uuid.NewString(),
		Status:        status,
		MaxRetries:    shared.DefaultMaxRetries,
		CreatedAt:     updated,
		UpdatedAt:     updated,
	}
	if status == shared.OutboxStatusDead {
		e.RetryCount = shared.DefaultMaxRetries
		e.LastError = "broker unavailable"
	}
	r.entries[e.ID] = e
	return e
}

func (r *memoryOutboxRepo) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *memoryOutboxRepo) FindPending(context.Context, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memoryOutboxRepo) FindRetryable(context.Context, time.Time, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memoryOutboxRepo) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	var dead []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			dead = append(dead, e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].UpdatedAt.After(dead[j].UpdatedAt) })

	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, int64(len(dead)), nil
	}
	end := min(start+pageSize, len(dead))
	return dead[start:end], int64(len(dead)), nil
}

func (r *memoryOutboxRepo) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.NewNotFoundError("Outbox entry not found")
}

func (r *memoryOutboxRepo) MarkProcessing(context.Context, []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memoryOutboxRepo) Update(_ context.Context, entry *shared.OutboxEntry) error {
	r.entries[entry.ID] = entry
	return nil
}

func (r *memoryOutboxRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memoryOutboxRepo) ReleaseStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memoryOutboxRepo) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	if r.countErr != nil {
		return nil, r.countErr
	}
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

type countingNotifier struct {
	n int
}

func (c *countingNotifier) Notify() { c.n++ }

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	repo := newMemoryOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		repo.add(shared.OutboxStatusDead, base.Add(time.Duration(i)*time.Minute))
	}
	repo.add(shared.OutboxStatusPending, base)

	t.Run("first page, newest first", func(t *testing.T) {
		result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), result.Total)
		assert.Equal(t, 3, result.TotalPages)
		require.Len(t, result.Entries, 2)
		assert.True(t, result.Entries[0].UpdatedAt.After(result.Entries[1].UpdatedAt))
		for _, entry := range result.Entries {
			assert.Equal(t, "DEAD", entry.Status)
			assert.Equal(t, "broker unavailable", entry.LastError)
		}
	})

	t.Run("defaults and clamping", func(t *testing.T) {
		result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Page)
		assert.Equal(t, defaultPageSize, result.PageSize)
		assert.Len(t, result.Entries, 5)

		result, err = service.GetDeadLetterEntries(context.Background(), OutboxFilter{PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, maxPageSize, result.PageSize)
	})
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	repo := newMemoryOutboxRepo()
	notifier := &countingNotifier{}
	service := NewOutboxService(repo, zap.NewNop()).WithNotifier(notifier)
	dead := repo.add(shared.OutboxStatusDead, time.Now())

	result, err := service.RetryDeadEntry(context.Background(), dead.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.Empty(t, result.LastError)
	assert.Equal(t, dead.PartitionKey, result.PartitionKey)
	assert.Equal(t, shared.OutboxStatusPending, repo.entries[dead.ID].Status)
	assert.Equal(t, 1, notifier.n)

	t.Run("not found", func(t *testing.T) {
		_, err := service.RetryDeadEntry(context.Background(), uuid.New())
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("only dead entries", func(t *testing.T) {
		_, err := service.RetryDeadEntry(context.Background(), dead.ID)
		assert.True(t, shared.IsConflict(err))
		assert.Equal(t, 1, notifier.n)
	})
}

func TestOutboxService_GetStats(t *testing.T) {
	repo := newMemoryOutboxRepo()
	service := NewOutboxService(repo, zap.NewNop())

	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	} {
		repo.add(status, time.Now())
	}

	stats, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutboxStatsDTO{Pending: 2, Processing: 1, Sent: 3, Failed: 1, Dead: 1, Total: 8}, *stats)

	repo.countErr = errors.New("connection reset")
	_, err = service.GetStats(context.Background())
	assert.EqualError(t, err, "connection reset")
}
