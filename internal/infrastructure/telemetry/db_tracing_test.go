package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type probe struct {
	ID   int
	Name string
}

func newProbeDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&probe{}))
	return db
}

func spanWithAttr(spans []sdktrace.ReadOnlySpan, key attribute.Key) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if _, ok := attrsOf(s)[key]; ok {
			return s
		}
	}
	return nil
}

func TestDBTracingPlugin_MarksSlowQueries(t *testing.T) {
	sr := setupTestTracer(t)
	db := newProbeDB(t)

	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond, DBSystem: "sqlite"}, zap.NewNop())
	require.NoError(t, plugin.Register(db))

	require.NoError(t, db.WithContext(context.Background()).Create(&probe{ID: 1, Name: "a"}).Error)

	span := spanWithAttr(sr.Ended(), "db.slow_query")
	require.NotNil(t, span, "otelgorm span carries the slow query marker")
	attrs := attrsOf(span)
	assert.True(t, attrs["db.slow_query"].AsBool())
	assert.Equal(t, "INSERT", attrs["db.operation.name"].AsString())
	assert.Equal(t, "probes", attrs["db.sql.table"].AsString())
}

func TestDBTracingPlugin_NotFoundIsNotAnError(t *testing.T) {
	sr := setupTestTracer(t)
	db := newProbeDB(t)
	require.NoError(t, NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Hour}, zap.NewNop()).Register(db))

	var p probe
	assert.ErrorIs(t, db.First(&p, 99).Error, gorm.ErrRecordNotFound)

	for _, s := range sr.Ended() {
		assert.NotEqual(t, codes.Error, s.Status().Code)
	}
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	db := newProbeDB(t)
	require.NoError(t, NewDBTracingPlugin(DBTracingConfig{Enabled: false}, zap.NewNop()).Register(db))

	require.NoError(t, db.Create(&probe{ID: 1}).Error)
	assert.Empty(t, sr.Ended())
}

func TestDBMetrics_RecordsQueries(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	db := newProbeDB(t)
	m, err := NewDBMetrics(provider.Meter("db"), DBMetricsConfig{SlowQueryThreshold: time.Hour, PoolStatsInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Register(context.Background(), db))
	defer m.Stop()

	require.NoError(t, db.Create(&probe{ID: 1}).Error)
	var rows []probe
	require.NoError(t, db.Find(&rows).Error)
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byOp := map[string]int64{}
	var poolSeen bool
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			switch metric.Name {
			case "db_query_total":
				for _, dp := range metric.Data.(metricdata.Sum[int64]).DataPoints {
					v, _ := dp.Attributes.Value(AttrOperation)
					byOp[v.AsString()] = dp.Value
				}
			case "db_pool_connections":
				poolSeen = true
			case "db_slow_query_total":
				t.Errorf("no query should exceed an hour")
			}
		}
	}
	assert.Equal(t, int64(1), byOp["INSERT"])
	assert.Equal(t, int64(2), byOp["SELECT"])
	assert.True(t, poolSeen)
}

func TestDetectOperationType(t *testing.T) {
	assert.Equal(t, "SELECT", detectOperationType("  select 1"))
	assert.Equal(t, "DELETE", detectOperationType("DELETE FROM x"))
	assert.Equal(t, "OTHER", detectOperationType("VACUUM"))
}
