package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	SlowQueryThreshold time.Duration // Default: 200ms
	PoolStatsInterval  time.Duration // Default: 15s
}

// DBMetrics records query counts, latency and connection pool usage.
type DBMetrics struct {
	poolConnections *Gauge
	queryTotal      *Counter
	queryDuration   *DurationHistogram
	slowQueryTotal  *Counter

	config   DBMetricsConfig
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDBMetrics creates the database instruments on meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	m := &DBMetrics{config: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error
	if m.poolConnections, err = NewGauge(meter, "db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Database queries slower than the threshold", "{query}"); err != nil {
		return nil, err
	}
	m.queryDuration, err = NewDurationHistogram(meter, "db_query_duration_seconds", "Database query latency", DBDurationBuckets)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Register installs the query callbacks on db and starts pool stats collection.
func (m *DBMetrics) Register(ctx context.Context, db *gorm.DB) error {
	if err := registerQueryCallbacks(db, "db_metrics", m.recordQuery); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	m.recordPoolStats(ctx, sqlDB)
	m.wg.Add(1)
	go m.collectPoolStats(ctx, sqlDB)
	return nil
}

// Stop ends pool stats collection. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

func (m *DBMetrics) recordQuery(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	elapsed, _ := queryElapsed(db)
	m.RecordQuery(ctx, operation, elapsed)
}

// RecordQuery records one query of the given operation.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation string, duration time.Duration) {
	m.queryTotal.Inc(ctx, AttrOperation.String(operation))
	m.queryDuration.Observe(ctx, duration, AttrOperation.String(operation))
	if duration > m.config.SlowQueryThreshold {
		m.slowQueryTotal.Inc(ctx, AttrOperation.String(operation))
	}
}

func (m *DBMetrics) collectPoolStats(ctx context.Context, sqlDB *sql.DB) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.PoolStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.recordPoolStats(ctx, sqlDB)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *DBMetrics) recordPoolStats(ctx context.Context, sqlDB *sql.DB) {
	stats := sqlDB.Stats()
	m.poolConnections.Set(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConnections.Set(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConnections.Set(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}
