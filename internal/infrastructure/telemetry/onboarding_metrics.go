package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when metrics are constructed without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// OutboxStatsProvider reports the outbox backlog for periodic collection.
type OutboxStatsProvider interface {
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// OnboardingMetricsConfig holds configuration for onboarding metrics.
type OnboardingMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 30s
	OutboxStats     OutboxStatsProvider
}

// OnboardingMetrics counts customer, KYC, outbox, projector and cache activity.
type OnboardingMetrics struct {
	logger *zap.Logger

	customersCreated  *Counter
	kycTransitions    *Counter
	outboxPublished   *Counter
	outboxFailed      *Counter
	outboxDead        *Counter
	outboxDuration    *DurationHistogram
	outboxEntries     *Gauge
	projectorOutcomes *Counter
	cacheLookups      *Counter

	outboxStats     OutboxStatsProvider
	collectInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

// NewOnboardingMetrics creates the onboarding instruments.
func NewOnboardingMetrics(cfg OnboardingMetricsConfig) (*OnboardingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m := &OnboardingMetrics{
		logger:          logger,
		outboxStats:     cfg.OutboxStats,
		collectInterval: interval,
		stopCh:          make(chan struct{}),
	}

	counters := []struct {
		dst         **Counter
		name        string
		description string
		unit        string
	}{
		{&m.customersCreated, "onboarding_customers_created_total", "Customers registered", "{customer}"},
		{&m.kycTransitions, "onboarding_kyc_transitions_total", "KYC case status transitions by target status", "{transition}"},
		{&m.outboxPublished, "onboarding_outbox_published_total", "Outbox entries delivered to the broker", "{event}"},
		{&m.outboxFailed, "onboarding_outbox_failed_total", "Outbox delivery attempts that failed", "{event}"},
		{&m.outboxDead, "onboarding_outbox_dead_total", "Outbox entries that exhausted their retries", "{event}"},
		{&m.projectorOutcomes, "onboarding_projector_outcomes_total", "KYC status projections by outcome", "{event}"},
		{&m.cacheLookups, "onboarding_cache_lookups_total", "Customer cache lookups by result", "{lookup}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	m.outboxDuration, err = NewDurationHistogram(cfg.Meter, "onboarding_outbox_publish_duration_seconds",
		"Time to publish one outbox entry", PublishDurationBuckets)
	if err != nil {
		return nil, err
	}
	m.outboxEntries, err = NewGauge(cfg.Meter, "onboarding_outbox_entries", "Outbox entries by status", "{event}")
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCustomerCreated counts a registered customer.
func (m *OnboardingMetrics) RecordCustomerCreated(ctx context.Context) {
	m.customersCreated.Inc(ctx)
}

// RecordKycTransition counts a case moving to status.
func (m *OnboardingMetrics) RecordKycTransition(ctx context.Context, status string) {
	m.kycTransitions.Inc(ctx, AttrStatus.String(status))
}

// RecordOutboxPublished counts a delivered entry and its publish latency.
func (m *OnboardingMetrics) RecordOutboxPublished(ctx context.Context, eventType string, d time.Duration) {
	m.outboxPublished.Inc(ctx, AttrEventType.String(eventType))
	m.outboxDuration.Observe(ctx, d, AttrEventType.String(eventType))
}

// RecordOutboxFailed counts a failed delivery attempt.
func (m *OnboardingMetrics) RecordOutboxFailed(ctx context.Context, eventType string) {
	m.outboxFailed.Inc(ctx, AttrEventType.String(eventType))
}

// RecordOutboxDead counts an entry moved to DEAD.
func (m *OnboardingMetrics) RecordOutboxDead(ctx context.Context, eventType string) {
	m.outboxDead.Inc(ctx, AttrEventType.String(eventType))
}

// RecordProjectorOutcome counts one projector decision.
func (m *OnboardingMetrics) RecordProjectorOutcome(ctx context.Context, outcome string) {
	m.projectorOutcomes.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordCacheLookup counts a customer cache lookup.
func (m *OnboardingMetrics) RecordCacheLookup(ctx context.Context, result string) {
	m.cacheLookups.Inc(ctx, AttrResult.String(result))
}

// StartPeriodicCollection records the outbox backlog every CollectInterval until Stop.
// It does nothing when no OutboxStatsProvider is configured.
func (m *OnboardingMetrics) StartPeriodicCollection(ctx context.Context) {
	if m.outboxStats == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.collectInterval)
		defer ticker.Stop()
		for {
			m.CollectOutboxBacklog(ctx)
			select {
			case <-ticker.C:
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CollectOutboxBacklog records the current count of entries per status.
func (m *OnboardingMetrics) CollectOutboxBacklog(ctx context.Context) {
	if m.outboxStats == nil {
		return
	}
	counts, err := m.outboxStats.CountByStatus(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect outbox backlog", zap.Error(err))
		return
	}
	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	} {
		m.outboxEntries.Set(ctx, counts[status], AttrStatus.String(string(status)))
	}
}

// Stop ends periodic collection. Safe to call more than once.
func (m *OnboardingMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}
