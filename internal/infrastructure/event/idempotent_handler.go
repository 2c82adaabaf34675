package event

import (
	"context"
	"sync/atomic"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyMetrics counts what a deduplicating consumer did with its
// deliveries.
type IdempotencyMetrics struct {
	processed atomic.Int64
	duplicate atomic.Int64
	failed    atomic.Int64
}

// IdempotencyStats is a point-in-time copy of IdempotencyMetrics.
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// Stats returns the current counters
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.processed.Load(),
		EventsDuplicate: m.duplicate.Load(),
		EventsFailed:    m.failed.Load(),
	}
}

// IdempotentHandler applies each event id at most once per namespace,
// however often the broker redelivers it. Each consumer uses its own
// namespace so two projections of one event do not shadow each other.
type IdempotentHandler struct {
	next      shared.MessageHandler
	store     shared.IdempotencyStore
	namespace string
	config    shared.IdempotencyConfig
	logger    *zap.Logger
	metrics   IdempotencyMetrics
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig replaces the default claim TTL and enablement
func WithIdempotencyConfig(cfg shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = cfg }
}

// NewIdempotentHandler wraps next so that each event id is handled once per
// namespace. Claims live in store for the configured TTL.
func NewIdempotentHandler(
	namespace string,
	next shared.MessageHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		next:      next,
		store:     store,
		namespace: namespace,
		config:    shared.DefaultIdempotencyConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle claims the event id before delegating. A store outage does not
// block delivery because the wrapped projections are idempotent by state;
// a failed delegate releases the claim so the redelivery is not skipped.
func (h *IdempotentHandler) Handle(ctx context.Context, msg shared.Message) error {
	if !h.config.Enabled || msg.EventID == "" {
		return h.next.Handle(ctx, msg)
	}

	log := h.logger.With(
		zap.String("event_id", msg.EventID),
		zap.String("event_type", msg.EventType),
		zap.String("consumer", h.namespace),
	)
	key := h.namespace + ":" + msg.EventID

	claimed, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		log.Warn("idempotency store unavailable, handling without claim", zap.Error(err))
	case !claimed:
		h.metrics.duplicate.Add(1)
		log.Debug("duplicate delivery skipped")
		return nil
	}

	if err := h.next.Handle(ctx, msg); err != nil {
		h.metrics.failed.Add(1)
		if relErr := h.store.Release(ctx, key); relErr != nil {
			log.Warn("could not release idempotency claim", zap.Error(relErr))
		}
		return err
	}
	h.metrics.processed.Add(1)
	return nil
}

// GetMetrics returns the live counters of this handler
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return &h.metrics
}

var _ shared.MessageHandler = (*IdempotentHandler)(nil)
