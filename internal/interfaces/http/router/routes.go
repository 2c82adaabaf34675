package router

import (
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/dbanking/onboarding/internal/interfaces/http/handler"
	"github.com/dbanking/onboarding/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig configures the HTTP engine
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	MaxBodySize    int64
	TrustedProxies []string

	// Meter enables HTTP metrics when set
	Meter metric.Meter
}

// Handlers are the HTTP handlers served by the API
type Handlers struct {
	Customer *handler.CustomerHandler
	Kyc      *handler.KycHandler
	Outbox   *handler.OutboxHandler
	System   *handler.SystemHandler
}

// NewEngine builds the gin engine with the middleware chain and every route.
// RequestContext runs before logging and tracing so both see the request
// and correlation ids.
func NewEngine(cfg EngineConfig, h Handlers, log *zap.Logger) (*gin.Engine, error) {
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	httpMetrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestContext(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
		}),
		middleware.SpanEnricher(),
		logger.GinMiddleware(log),
		httpMetrics,
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)

	mount(engine, defaultAPIVersion,
		customerRoutes(h.Customer),
		kycRoutes(h.Kyc),
		outboxRoutes(h.Outbox),
	)

	return engine, nil
}

func customerRoutes(h *handler.CustomerHandler) *resource {
	return newResource("/customers").
		post("", h.Create).
		get("/search", h.Search).
		get("/:id", h.Get).
		patch("/:id", h.Update).
		post("/:id/kyc", h.StartKyc).
		get("/:id/kyc", h.ListKyc)
}

func kycRoutes(h *handler.KycHandler) *resource {
	return newResource("/kyc").
		get("/:id", h.Get).
		put("/:id/status", h.UpdateStatus)
}

func outboxRoutes(h *handler.OutboxHandler) *resource {
	return newResource("/system/outbox").
		get("/stats", h.GetStats).
		get("/dead", h.GetDeadLetterEntries).
		post("/dead/:id/retry", h.RetryDeadEntry)
}
