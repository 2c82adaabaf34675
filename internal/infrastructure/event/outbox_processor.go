package event

import (
	"context"
	"sync"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	PublishTimeout   time.Duration
	StaleAfter       time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		PublishTimeout:   10 * time.Second,
		StaleAfter:       5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  1 * time.Hour,
	}
}

// OutboxMetrics receives delivery outcomes
type OutboxMetrics interface {
	RecordOutboxPublished(ctx context.Context, eventType string, d time.Duration)
	RecordOutboxFailed(ctx context.Context, eventType string)
	RecordOutboxDead(ctx context.Context, eventType string)
}

type noopOutboxMetrics struct{}

func (noopOutboxMetrics) RecordOutboxPublished(context.Context, string, time.Duration) {}
func (noopOutboxMetrics) RecordOutboxFailed(context.Context, string)                   {}
func (noopOutboxMetrics) RecordOutboxDead(context.Context, string)                     {}

// OutboxProcessor delivers outbox entries to the message bus in the
// background. It polls on an interval and also wakes on Notify.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.MessagePublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	metrics    OutboxMetrics

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.MessagePublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		logger:     logger,
		metrics:    noopOutboxMetrics{},
		wake:       make(chan struct{}, 1),
	}
}

// WithMetrics sets the metrics sink
func (p *OutboxProcessor) WithMetrics(m OutboxMetrics) *OutboxProcessor {
	if m != nil {
		p.metrics = m
	}
	return p
}

// Notify asks the processor to run a batch now. It never blocks.
func (p *OutboxProcessor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)

	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		// Keep draining while batches come back full or unblock a key.
		for ctx.Err() == nil && p.ProcessBatch(ctx) {
		}
	}
}

// ProcessBatch delivers one batch of pending and due entries. It reports
// whether another batch may be ready right away.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) bool {
	more := false

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return false
	}
	if len(pending) > 0 {
		sent := p.processEntries(ctx, pending)
		more = sent > 0 && len(pending) == p.config.BatchSize
	}

	retryable, err := p.repo.FindRetryable(ctx, time.Now().UTC(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
		return false
	}
	if len(retryable) > 0 {
		// A delivered retry unblocks the pending entries queued behind it.
		if p.processEntries(ctx, retryable) > 0 {
			more = true
		}
	}

	return more
}

// processEntries claims and publishes entries in creation order. Once an
// entry of a key fails, later entries of that key are released unpublished.
// Returns the number of entries delivered.
func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	sent := 0
	blocked := make(map[string]bool)
	for _, entry := range claimed {
		if blocked[entry.PartitionKey] {
			entry.Release()
			if err := p.repo.Update(ctx, entry); err != nil {
				p.logger.Error("failed to release entry", zap.String("event_id", entry.EventID.String()), zap.Error(err))
			}
			continue
		}
		if p.processEntry(ctx, entry) {
			sent++
		} else {
			blocked[entry.PartitionKey] = true
		}
	}
	return sent
}

// processEntry publishes a single entry and records the outcome
func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	topic, err := p.serializer.TopicFor(entry.EventType)
	if err == nil {
		started := time.Now()
		err = p.publish(ctx, topic, entry)
		if err == nil {
			p.metrics.RecordOutboxPublished(ctx, entry.EventType, time.Since(started))
		}
	}

	if err != nil {
		p.fail(ctx, entry, err)
		return false
	}

	entry.MarkSent()
	if err := p.repo.Update(ctx, entry); err != nil {
		// The message is out; a redelivery after this is absorbed by
		// consumer-side idempotency.
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
	} else {
		p.logger.Debug("event processed successfully",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
		)
	}
	return true
}

func (p *OutboxProcessor) publish(ctx context.Context, topic string, entry *shared.OutboxEntry) error {
	if p.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.PublishTimeout)
		defer cancel()
	}
	return p.publisher.Publish(ctx, shared.Message{
		Topic:     topic,
		Key:       entry.PartitionKey,
		EventID:   entry.EventID.String(),
		EventType: entry.EventType,
		Payload:   entry.Payload,
		Headers: map[string]string{
			shared.HeaderEventID:       entry.EventID.String(),
			shared.HeaderEventType:     entry.EventType,
			shared.HeaderCorrelationID: entry.CorrelationID,
		},
	})
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, err error) {
	p.logger.Error("failed to publish event",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.Error(err),
	)
	entry.MarkFailed(err.Error())
	p.metrics.RecordOutboxFailed(ctx, entry.EventType)
	if entry.IsDead() {
		p.metrics.RecordOutboxDead(ctx, entry.EventType)
		p.logger.Warn("event moved to dead letter queue",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("aggregate_type", entry.AggregateType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	if updateErr := p.repo.Update(ctx, entry); updateErr != nil {
		p.logger.Error("failed to update entry", zap.Error(updateErr))
	}
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup removes old sent entries and requeues entries stuck in PROCESSING
func (p *OutboxProcessor) Cleanup(ctx context.Context) {
	if p.config.StaleAfter > 0 {
		released, err := p.repo.ReleaseStale(ctx, time.Now().UTC().Add(-p.config.StaleAfter))
		if err != nil {
			p.logger.Error("failed to release stale entries", zap.Error(err))
		} else if released > 0 {
			p.logger.Warn("released stale outbox entries", zap.Int64("released", released))
		}
	}

	cutoff := time.Now().UTC().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}

	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}

// Ensure OutboxProcessor implements OutboxNotifier
var _ shared.OutboxNotifier = (*OutboxProcessor)(nil)
