package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, stats telemetry.OutboxStatsProvider) (*telemetry.OnboardingMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewOnboardingMetrics(telemetry.OnboardingMetricsConfig{
		Meter:       provider.Meter("test"),
		OutboxStats: stats,
	})
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

// sumFor returns the counter value for the point carrying attr, or the only point when attr is empty.
func sumFor(t *testing.T, data metricdata.Aggregation, attr attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)
	for _, dp := range sum.DataPoints {
		if !attr.Valid() {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			return dp.Value
		}
	}
	return 0
}

func TestNewOnboardingMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewOnboardingMetrics(telemetry.OnboardingMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	assert.Nil(t, m)
}

func TestOnboardingMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t, nil)
	ctx := context.Background()

	m.RecordCustomerCreated(ctx)
	m.RecordCustomerCreated(ctx)
	m.RecordKycTransition(ctx, "VERIFIED")
	m.RecordKycTransition(ctx, "REJECTED")
	m.RecordKycTransition(ctx, "VERIFIED")
	m.RecordProjectorOutcome(ctx, "applied")
	m.RecordCacheLookup(ctx, "hit")
	m.RecordCacheLookup(ctx, "miss")
	m.RecordCacheLookup(ctx, "miss")

	data := collect(t, reader)
	assert.Equal(t, int64(2), sumFor(t, data["onboarding_customers_created_total"], attribute.KeyValue{}))
	assert.Equal(t, int64(2), sumFor(t, data["onboarding_kyc_transitions_total"], telemetry.AttrStatus.String("VERIFIED")))
	assert.Equal(t, int64(1), sumFor(t, data["onboarding_kyc_transitions_total"], telemetry.AttrStatus.String("REJECTED")))
	assert.Equal(t, int64(1), sumFor(t, data["onboarding_projector_outcomes_total"], telemetry.AttrOutcome.String("applied")))
	assert.Equal(t, int64(2), sumFor(t, data["onboarding_cache_lookups_total"], telemetry.AttrResult.String("miss")))
}

func TestOnboardingMetrics_Outbox(t *testing.T) {
	m, reader := newTestMetrics(t, nil)
	ctx := context.Background()

	m.RecordOutboxPublished(ctx, "CustomerCreated", 20*time.Millisecond)
	m.RecordOutboxFailed(ctx, "KycStatusChanged")
	m.RecordOutboxDead(ctx, "KycStatusChanged")

	data := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, data["onboarding_outbox_published_total"], telemetry.AttrEventType.String("CustomerCreated")))
	assert.Equal(t, int64(1), sumFor(t, data["onboarding_outbox_failed_total"], telemetry.AttrEventType.String("KycStatusChanged")))
	assert.Equal(t, int64(1), sumFor(t, data["onboarding_outbox_dead_total"], telemetry.AttrEventType.String("KycStatusChanged")))

	hist, ok := data["onboarding_outbox_publish_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.02, hist.DataPoints[0].Sum, 1e-9)
}

type statsFunc func(ctx context.Context) (map[shared.OutboxStatus]int64, error)

func (f statsFunc) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	return f(ctx)
}

func TestOnboardingMetrics_CollectOutboxBacklog(t *testing.T) {
	m, reader := newTestMetrics(t, statsFunc(func(context.Context) (map[shared.OutboxStatus]int64, error) {
		return map[shared.OutboxStatus]int64{shared.OutboxStatusPending: 4, shared.OutboxStatusDead: 1}, nil
	}))

	m.CollectOutboxBacklog(context.Background())

	gauge, ok := collect(t, reader)["onboarding_outbox_entries"].(metricdata.Gauge[int64])
	require.True(t, ok)
	values := map[string]int64{}
	for _, dp := range gauge.DataPoints {
		v, _ := dp.Attributes.Value(telemetry.AttrStatus)
		values[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"PENDING": 4, "PROCESSING": 0, "FAILED": 0, "DEAD": 1}, values)
}

func TestOnboardingMetrics_CollectOutboxBacklog_Error(t *testing.T) {
	m, reader := newTestMetrics(t, statsFunc(func(context.Context) (map[shared.OutboxStatus]int64, error) {
		return nil, errors.New("db down")
	}))

	m.CollectOutboxBacklog(context.Background())

	_, recorded := collect(t, reader)["onboarding_outbox_entries"]
	assert.False(t, recorded)
}

func TestOnboardingMetrics_PeriodicCollectionStops(t *testing.T) {
	calls := make(chan struct{}, 8)
	m, _ := newTestMetrics(t, statsFunc(func(context.Context) (map[shared.OutboxStatus]int64, error) {
		calls <- struct{}{}
		return map[shared.OutboxStatus]int64{}, nil
	}))

	m.StartPeriodicCollection(context.Background())
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("backlog was not collected on start")
	}
	m.Stop()
	m.Stop()
}
