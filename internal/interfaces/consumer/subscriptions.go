// Package consumer subscribes the onboarding projections to the message bus.
package consumer

import (
	"fmt"
	"time"

	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/config"
	"github.com/dbanking/onboarding/internal/infrastructure/event"
	"go.uber.org/zap"
)

// Idempotency namespaces of the subscribed handlers
const (
	NamespaceKycProjector  = "kyc-projector"
	NamespaceCreatedLogger = "customer-created-logger"
)

const createdLoggerGroupSuffix = "-customer-log"

// Options configures the projection subscriptions
type Options struct {
	Topics         event.Topics
	Group          string
	Prefetch       int
	Retry          shared.RetryPolicy
	IdempotencyTTL time.Duration
}

// OptionsFrom builds Options from the kafka and consumer config sections
func OptionsFrom(kafka config.KafkaConfig, cfg config.ConsumerConfig) Options {
	return Options{
		Topics:   event.NewTopics(kafka.TopicPrefix),
		Group:    kafka.ConsumerGroup,
		Prefetch: cfg.Prefetch,
		Retry: shared.RetryPolicy{
			MaxAttempts:     cfg.RetryAttempts,
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
			Multiplier:      2,
		},
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
}

// Handlers are the guarded handlers registered by Register
type Handlers struct {
	Projector     *event.IdempotentHandler
	CreatedLogger *event.IdempotentHandler
}

// Register subscribes the KYC status projector and the customer-created
// logger. Both are wrapped in the idempotency guard; redelivered events are
// acknowledged without running the handler again.
func Register(
	bus shared.MessageBus,
	opts Options,
	projector *kycapp.StatusProjector,
	createdLogger *kycapp.CustomerCreatedLogger,
	store shared.IdempotencyStore,
	logger *zap.Logger,
) (*Handlers, error) {
	idem := shared.DefaultIdempotencyConfig()
	if opts.IdempotencyTTL > 0 {
		idem.TTL = opts.IdempotencyTTL
	}
	retry := opts.Retry
	if retry.MaxAttempts < 1 {
		retry = shared.DefaultRetryPolicy()
	}

	h := &Handlers{
		Projector: event.NewIdempotentHandler(NamespaceKycProjector, projector, store, logger,
			event.WithIdempotencyConfig(idem)),
		CreatedLogger: event.NewIdempotentHandler(NamespaceCreatedLogger, createdLogger, store, logger,
			event.WithIdempotencyConfig(idem)),
	}

	if err := bus.Subscribe(opts.Topics.KycStatusChanged, h.Projector, shared.SubscribeOptions{
		Group:    opts.Group,
		Prefetch: opts.Prefetch,
		Retry:    retry,
	}); err != nil {
		return nil, fmt.Errorf("subscribe kyc projector: %w", err)
	}
	if err := bus.Subscribe(opts.Topics.CustomerCreated, h.CreatedLogger, shared.SubscribeOptions{
		Group:    opts.Group + createdLoggerGroupSuffix,
		Prefetch: opts.Prefetch,
		Retry:    retry,
	}); err != nil {
		return nil, fmt.Errorf("subscribe customer-created logger: %w", err)
	}

	logger.Info("projections subscribed",
		zap.String("group", opts.Group),
		zap.String("kyc_topic", opts.Topics.KycStatusChanged),
		zap.String("customer_topic", opts.Topics.CustomerCreated),
		zap.Int("prefetch", opts.Prefetch),
	)
	return h, nil
}

// TopicsToEnsure lists the subscribed topics and their dead-letter topics
func TopicsToEnsure(topics event.Topics) []string {
	all := topics.All()
	out := make([]string, 0, 2*len(all))
	for _, t := range all {
		out = append(out, t, event.DeadLetterTopic(t))
	}
	return out
}
