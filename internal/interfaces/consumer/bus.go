package consumer

import (
	"context"
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/config"
	"github.com/dbanking/onboarding/internal/infrastructure/event"
	"go.uber.org/zap"
)

// Bus is the message bus of one process. Without configured brokers it is
// the in-process bus, which only reaches subscribers of the same process.
type Bus struct {
	shared.MessageBus
	kafka *event.KafkaBus
}

// OpenBus connects to Kafka when brokers are configured and creates the
// onboarding topics and their dead-letter topics if asked to.
func OpenBus(ctx context.Context, cfg config.KafkaConfig, logger *zap.Logger) (*Bus, error) {
	if !cfg.Enabled() {
		logger.Warn("no kafka brokers configured, using the in-process bus")
		return &Bus{MessageBus: event.NewInMemoryBus(logger)}, nil
	}

	kb, err := event.NewKafkaBus(event.KafkaBusConfig{
		Brokers:           cfg.Brokers,
		ClientID:          cfg.ClientID,
		DefaultGroup:      cfg.ConsumerGroup,
		Partitions:        int32(cfg.Partitions),
		ReplicationFactor: int16(cfg.ReplicationFactor),
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateTopics {
		topics := TopicsToEnsure(event.NewTopics(cfg.TopicPrefix))
		if err := kb.EnsureTopics(ctx, topics...); err != nil {
			_ = kb.Stop(ctx)
			return nil, fmt.Errorf("ensure topics: %w", err)
		}
		logger.Info("kafka topics ready", zap.Strings("topics", topics))
	}
	return &Bus{MessageBus: kb, kafka: kb}, nil
}

// InProcess reports whether messages stay inside this process
func (b *Bus) InProcess() bool {
	return b.kafka == nil
}

// Ping checks the broker; the in-process bus is always reachable
func (b *Bus) Ping(ctx context.Context) error {
	if b.kafka == nil {
		return nil
	}
	return b.kafka.Ping(ctx)
}
