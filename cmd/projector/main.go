package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/dbanking/onboarding/internal/infrastructure/config"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence"
	"github.com/dbanking/onboarding/internal/infrastructure/telemetry"
	"github.com/dbanking/onboarding/internal/interfaces/consumer"
	"github.com/dbanking/onboarding/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name + "-projector",
		Sample:  cfg.Log.Sample,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfigFrom(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = meterProvider.Shutdown(shutdownCtx)
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfigFrom(cfg.Telemetry), log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Idempotency must be shared by every projector instance, so Redis is
	// required outside development.
	backends, err := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).Create(ctx, cfg.Cache.Backend)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := backends.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()

	metrics, err := telemetry.NewOnboardingMetrics(telemetry.OnboardingMetricsConfig{
		Meter:  meterProvider.Meter("onboarding-projector"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create metrics", zap.Error(err))
	}

	bus, err := consumer.OpenBus(ctx, cfg.Kafka, log)
	if err != nil {
		log.Fatal("Failed to open message bus", zap.Error(err))
	}
	if bus.InProcess() {
		log.Warn("Projector runs on the in-process bus and will only see events published by itself")
	}

	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	projector := kycapp.NewStatusProjector(customerRepo, persistence.NewGormTxManager(db.DB), log).
		WithCache(cache.NewCustomerCache(backends.Cache, cfg.Cache.TTL, cfg.Cache.Slide())).
		WithMetrics(metrics)

	handlers, err := consumer.Register(bus, consumer.OptionsFrom(cfg.Kafka, cfg.Consumer),
		projector, kycapp.NewCustomerCreatedLogger(log), backends.Idempotency, log)
	if err != nil {
		log.Fatal("Failed to subscribe projections", zap.Error(err))
	}

	system := handler.NewSystemHandler(cfg.App.Name+"-projector", version).
		WithCheck("database", db.Ping).
		WithCheck("broker", bus.Ping)
	if backends.Redis != nil {
		system.WithCheck("redis", func(ctx context.Context) error {
			return backends.Redis.Ping(ctx).Err()
		})
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.GET("/health", system.Health)
	engine.GET("/ready", system.Ready)
	srv := &http.Server{
		Addr:              ":" + cfg.Consumer.HealthPort,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start message bus", zap.Error(err))
	}
	log.Info("Projector started",
		zap.String("group", cfg.Kafka.ConsumerGroup),
		zap.String("health_addr", srv.Addr),
		zap.String("version", version),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down projector...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := bus.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping message bus", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("Projector stopped with error", zap.Error(err))
	}

	stats := handlers.Projector.GetMetrics().Stats()
	log.Info("Projector exited",
		zap.Int64("events_processed", stats.EventsProcessed),
		zap.Int64("events_duplicate", stats.EventsDuplicate),
	)
}
