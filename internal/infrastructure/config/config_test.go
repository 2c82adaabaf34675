package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the tests touch; viper ignores empty values
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ONB_APP_NAME", "ONB_APP_ENV", "ONB_APP_PORT", "ONB_LOG_SAMPLE",
		"ONB_DATABASE_HOST", "ONB_DATABASE_PORT", "ONB_DATABASE_PASSWORD",
		"ONB_DATABASE_SSLMODE", "ONB_DATABASE_MAX_OPEN_CONNS", "ONB_DATABASE_MAX_IDLE_CONNS",
		"ONB_KAFKA_BROKERS", "ONB_CACHE_BACKEND", "ONB_CACHE_TTL", "ONB_CACHE_ENABLED", "ONB_CACHE_SLIDING_WINDOW",
		"ONB_CONSUMER_PREFETCH", "ONB_CONSUMER_INITIAL_BACKOFF", "ONB_CONSUMER_MAX_BACKOFF",
		"ONB_TELEMETRY_SAMPLING_RATIO", "ONB_TELEMETRY_DB_LOG_FULL_SQL", "ONB_AUDIT_SOURCE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "onboarding", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Empty(t, cfg.Kafka.Brokers)
		assert.False(t, cfg.Kafka.Enabled())
		assert.Equal(t, "onboarding-kyc-projector", cfg.Kafka.ConsumerGroup)

		assert.True(t, cfg.Cache.Enabled)
		assert.True(t, cfg.Cache.Sliding)
		assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 10*time.Minute, cfg.Cache.Slide())
		assert.Equal(t, "redis", cfg.Cache.Backend)

		assert.Equal(t, 16, cfg.Consumer.Prefetch)
		assert.Equal(t, 5, cfg.Consumer.RetryAttempts)
		assert.Equal(t, time.Second, cfg.Consumer.InitialBackoff)
		assert.Equal(t, 30*time.Second, cfg.Consumer.MaxBackoff)

		assert.Equal(t, "API", cfg.Audit.Source)
		assert.True(t, cfg.Event.ProcessorEnabled)
		assert.Equal(t, 5, cfg.Event.MaxRetries)
	})

	t.Run("loads values from environment variables with ONB prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_APP_NAME", "onb-test")
		t.Setenv("ONB_DATABASE_HOST", "testdb.local")
		t.Setenv("ONB_DATABASE_PORT", "5433")
		t.Setenv("ONB_KAFKA_BROKERS", "k1:9092, k2:9092")
		t.Setenv("ONB_CACHE_BACKEND", "memory")
		t.Setenv("ONB_CACHE_TTL", "5m")
		t.Setenv("ONB_CONSUMER_PREFETCH", "4")
		t.Setenv("ONB_AUDIT_SOURCE", "Projector")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "onb-test", cfg.App.Name)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.True(t, cfg.Kafka.Enabled())
		assert.Equal(t, "memory", cfg.Cache.Backend)
		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 5*time.Minute, cfg.Cache.SlidingWindow, "window defaults to at most the TTL")
		assert.Equal(t, 4, cfg.Consumer.Prefetch)
		assert.Equal(t, "Projector", cfg.Audit.Source)
	})

	t.Run("boolean defaults can be switched off", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_CACHE_ENABLED", "false")

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.Cache.Enabled)
	})

	t.Run("samples logs in production unless disabled", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_APP_ENV", "production")
		t.Setenv("ONB_DATABASE_PASSWORD", "secret")
		t.Setenv("ONB_DATABASE_SSLMODE", "require")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Log.Sample)

		t.Setenv("ONB_LOG_SAMPLE", "false")
		cfg, err = Load()
		require.NoError(t, err)
		assert.False(t, cfg.Log.Sample)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ONB_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects sliding window longer than the TTL", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_CACHE_TTL", "5m")
		t.Setenv("ONB_CACHE_SLIDING_WINDOW", "10m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.sliding_window")
	})

	t.Run("rejects unknown cache backend", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_CACHE_BACKEND", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.backend")
	})

	t.Run("rejects backoff ceiling below initial backoff", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_CONSUMER_INITIAL_BACKOFF", "10s")
		t.Setenv("ONB_CONSUMER_MAX_BACKOFF", "1s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "consumer.max_backoff")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ONB_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestValidate_Production(t *testing.T) {
	base := func() *Config {
		cfg := &Config{App: AppConfig{Env: "production"}}
		applyDefaults(cfg)
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		return cfg
	}

	t.Run("accepts a hardened config", func(t *testing.T) {
		assert.NoError(t, base().validate())
	})

	t.Run("requires database password", func(t *testing.T) {
		cfg := base()
		cfg.Database.Password = ""
		assert.ErrorContains(t, cfg.validate(), "database.password")
	})

	t.Run("requires TLS to postgres", func(t *testing.T) {
		cfg := base()
		cfg.Database.SSLMode = "disable"
		assert.ErrorContains(t, cfg.validate(), "sslmode")
	})

	t.Run("forbids full SQL in traces", func(t *testing.T) {
		cfg := base()
		cfg.Telemetry.DBLogFullSQL = true
		assert.ErrorContains(t, cfg.validate(), "db_log_full_sql")
	})

	t.Run("forbids bind values in SQL logs", func(t *testing.T) {
		cfg := base()
		cfg.Database.LogParams = true
		assert.ErrorContains(t, cfg.validate(), "database.log_params")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "onboarding", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/onboarding?sslmode=disable", d.DSN())
}
