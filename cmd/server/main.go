package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	auditapp "github.com/dbanking/onboarding/internal/application/audit"
	customerapp "github.com/dbanking/onboarding/internal/application/customer"
	eventapp "github.com/dbanking/onboarding/internal/application/event"
	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/dbanking/onboarding/internal/infrastructure/config"
	"github.com/dbanking/onboarding/internal/infrastructure/event"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence"
	"github.com/dbanking/onboarding/internal/infrastructure/telemetry"
	"github.com/dbanking/onboarding/internal/interfaces/consumer"
	"github.com/dbanking/onboarding/internal/interfaces/http/handler"
	"github.com/dbanking/onboarding/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
		Sample:  cfg.Log.Sample,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting onboarding service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
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
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()
	meter := meterProvider.Meter("onboarding")

	// Database
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
	dbMetrics, err := telemetry.NewDBMetrics(meter, telemetry.DBMetricsConfig{
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to create database metrics", zap.Error(err))
	}
	if err := dbMetrics.Register(ctx, db.DB); err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	defer dbMetrics.Stop()
	log.Info("Database connected successfully")

	// Cache and idempotency store
	backends, err := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).Create(ctx, cfg.Cache.Backend)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer func() {
		if err := backends.Close(); err != nil {
			log.Error("Error closing cache", zap.Error(err))
		}
	}()

	// Message bus
	bus, err := consumer.OpenBus(ctx, cfg.Kafka, log)
	if err != nil {
		log.Fatal("Failed to open message bus", zap.Error(err))
	}

	// Repositories
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	kycRepo := persistence.NewGormKycCaseRepository(db.DB)
	auditRepo := persistence.NewGormAuditRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	txManager := persistence.NewGormTxManager(db.DB)

	// Event serialization and outbox
	topics := event.NewTopics(cfg.Kafka.TopicPrefix)
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer, topics)
	outboxPublisher := event.NewOutboxPublisher(outboxRepo, serializer, cfg.Event.MaxRetries)

	onboardingMetrics, err := telemetry.NewOnboardingMetrics(telemetry.OnboardingMetricsConfig{
		Meter:           meter,
		Logger:          log,
		CollectInterval: cfg.Telemetry.MetricsInterval,
		OutboxStats:     outboxRepo,
	})
	if err != nil {
		log.Fatal("Failed to create onboarding metrics", zap.Error(err))
	}
	onboardingMetrics.StartPeriodicCollection(ctx)
	defer onboardingMetrics.Stop()

	processorConfig := event.DefaultOutboxProcessorConfig()
	processorConfig.BatchSize = cfg.Event.BatchSize
	processorConfig.PollInterval = cfg.Event.PollInterval
	processorConfig.CleanupEnabled = cfg.Event.CleanupEnabled
	processorConfig.CleanupRetention = cfg.Event.CleanupRetention
	outboxProcessor := event.NewOutboxProcessor(outboxRepo, bus, serializer, processorConfig, log).
		WithMetrics(onboardingMetrics)

	// Customer cache
	cacheStore := backends.Cache
	if !cfg.Cache.Enabled {
		cacheStore = cache.NoopCache{}
	}
	customerCache := cache.NewCustomerCache(cacheStore, cfg.Cache.TTL, cfg.Cache.Slide()).
		WithMetrics(onboardingMetrics)

	// Application services
	ledger := auditapp.NewLedger(auditRepo, cfg.Audit.Source, cfg.App.Env)
	kycService := kycapp.NewKycService(kycRepo, customerRepo, txManager, ledger, outboxPublisher, log).
		WithNotifier(outboxProcessor).
		WithCache(customerCache).
		WithMetrics(onboardingMetrics)
	customerService := customerapp.NewCustomerService(
		customerRepo,
		txManager,
		ledger,
		outboxPublisher,
		kycService,
		customerCache,
		log,
	).WithNotifier(outboxProcessor).WithMetrics(onboardingMetrics)
	outboxService := eventapp.NewOutboxService(outboxRepo, log).WithNotifier(outboxProcessor)

	// The in-process bus only reaches subscribers of this process, so the
	// projections run here when no broker is configured.
	if bus.InProcess() {
		projector := kycapp.NewStatusProjector(customerRepo, txManager, log).
			WithCache(customerCache).
			WithMetrics(onboardingMetrics)
		if _, err := consumer.Register(bus, consumer.OptionsFrom(cfg.Kafka, cfg.Consumer),
			projector, kycapp.NewCustomerCreatedLogger(log), backends.Idempotency, log); err != nil {
			log.Fatal("Failed to subscribe projections", zap.Error(err))
		}
	}
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start message bus", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := bus.Stop(stopCtx); err != nil {
			log.Error("Error stopping message bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := outboxProcessor.Stop(stopCtx); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
	} else {
		log.Warn("Outbox processor disabled; events stay in the outbox until another instance delivers them")
	}

	// HTTP handlers
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		WithCheck("database", db.Ping).
		WithCheck("broker", bus.Ping)
	if backends.Redis != nil {
		systemHandler.WithCheck("redis", func(ctx context.Context) error {
			return backends.Redis.Ping(ctx).Err()
		})
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var httpMeter metric.Meter
	if meterProvider.IsEnabled() {
		httpMeter = meter
	}
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tracerProvider.IsEnabled(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Meter:          httpMeter,
	}, router.Handlers{
		Customer: handler.NewCustomerHandler(customerService, kycService),
		Kyc:      handler.NewKycHandler(kycService),
		Outbox:   handler.NewOutboxHandler(outboxService),
		System:   systemHandler,
	}, log)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server exited gracefully")
}
