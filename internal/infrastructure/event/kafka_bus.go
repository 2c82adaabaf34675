package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KafkaBusConfig holds broker settings for KafkaBus
type KafkaBusConfig struct {
	Brokers           []string
	ClientID          string
	DefaultGroup      string
	Partitions        int32
	ReplicationFactor int16
}

// KafkaBus implements MessageBus on Kafka. Messages are keyed by partition
// key so one aggregate always lands on one partition. Consumers commit
// offsets only after the dispatcher is done with a record.
type KafkaBus struct {
	config     KafkaBusConfig
	producer   *kgo.Client
	registry   *SubscriptionRegistry
	dispatcher *Dispatcher
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaBus connects the producer. Consumers connect on Start.
func NewKafkaBus(config KafkaBusConfig, logger *zap.Logger) (*KafkaBus, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if config.DefaultGroup == "" {
		config.DefaultGroup = config.ClientID
	}

	producer, err := kgo.NewClient(
		kgo.SeedBrokers(config.Brokers...),
		kgo.ClientID(config.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}

	b := &KafkaBus{
		config:   config,
		producer: producer,
		registry: NewSubscriptionRegistry(),
		logger:   logger,
	}
	b.dispatcher = NewDispatcher(b, logger)
	return b, nil
}

// Ping checks that a broker is reachable
func (b *KafkaBus) Ping(ctx context.Context) error {
	return b.producer.Ping(ctx)
}

// EnsureTopics creates the given topics if they do not exist
func (b *KafkaBus) EnsureTopics(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	adm := kadm.NewClient(b.producer)
	resp, err := adm.CreateTopics(ctx, b.config.Partitions, b.config.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka: create topic %s: %w", topic, r.Err)
		}
	}
	return nil
}

// Publish produces msg and waits for the broker acknowledgement
func (b *KafkaBus) Publish(ctx context.Context, msg shared.Message) error {
	rec := &kgo.Record{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Payload,
		Headers: make([]kgo.RecordHeader, 0, len(msg.Headers)),
	}
	for k, v := range msg.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	if err := b.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic; must be called before Start
func (b *KafkaBus) Subscribe(topic string, handler shared.MessageHandler, opts shared.SubscribeOptions) error {
	if opts.Group == "" {
		opts.Group = b.config.DefaultGroup
	}
	_, err := b.registry.Register(topic, handler, opts)
	return err
}

// Start runs one consumer client per consumer group
func (b *KafkaBus) Start(ctx context.Context) error {
	groups := make(map[string]map[string]*Subscription)
	for _, sub := range b.registry.All() {
		if groups[sub.Options.Group] == nil {
			groups[sub.Options.Group] = make(map[string]*Subscription)
		}
		groups[sub.Options.Group][sub.Topic] = sub
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	for group, subs := range groups {
		b.wg.Add(1)
		go b.run(ctx, group, subs)
	}
	return nil
}

// run keeps a consumer for group alive until ctx ends. When a record cannot
// be dispatched the client is closed without committing it and a new one
// rejoins the group, so the record is delivered again.
func (b *KafkaBus) run(ctx context.Context, group string, subs map[string]*Subscription) {
	defer b.wg.Done()

	topics := make([]string, 0, len(subs))
	prefetch := 1
	for topic, sub := range subs {
		topics = append(topics, topic)
		if sub.Options.Prefetch > prefetch {
			prefetch = sub.Options.Prefetch
		}
	}

	for ctx.Err() == nil {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(b.config.Brokers...),
			kgo.ClientID(b.config.ClientID),
			kgo.ConsumerGroup(group),
			kgo.ConsumeTopics(topics...),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			kgo.DisableAutoCommit(),
			kgo.BlockRebalanceOnPoll(),
		)
		if err == nil {
			b.logger.Info("kafka consumer started",
				zap.String("group", group),
				zap.Strings("topics", topics),
				zap.Int("prefetch", prefetch),
			)
			err = b.consume(ctx, client, group, subs, prefetch)
			client.Close()
		}
		if err == nil || ctx.Err() != nil {
			return
		}

		b.logger.Error("kafka consumer restarting", zap.String("group", group), zap.Error(err))
		if sleepContext(ctx, consumerRestartDelay) != nil {
			return
		}
	}
}

const consumerRestartDelay = 2 * time.Second

// consume polls at most prefetch records, handles each partition's records
// in order on its own goroutine, commits what was handled and then lets a
// pending rebalance proceed. It returns nil on shutdown.
func (b *KafkaBus) consume(ctx context.Context, client *kgo.Client, group string, subs map[string]*Subscription, prefetch int) error {
	for {
		fetches := client.PollRecords(ctx, prefetch)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			client.AllowRebalance()
			return nil
		}
		for _, fe := range fetches.Errors() {
			b.logger.Error("kafka fetch error",
				zap.String("group", group),
				zap.String("topic", fe.Topic),
				zap.Int32("partition", fe.Partition),
				zap.Error(fe.Err),
			)
		}

		var (
			g       errgroup.Group
			mu      sync.Mutex
			handled []*kgo.Record
		)
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			sub := subs[p.Topic]
			records := p.Records
			if sub == nil || len(records) == 0 {
				return
			}
			g.Go(func() error {
				for _, rec := range records {
					if err := b.dispatcher.Dispatch(ctx, sub, toMessage(rec)); err != nil {
						return err
					}
					mu.Lock()
					handled = append(handled, rec)
					mu.Unlock()
				}
				return nil
			})
		})
		dispatchErr := g.Wait()

		if len(handled) > 0 {
			// Handled work is committed even while shutting down.
			commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := client.CommitRecords(commitCtx, handled...)
			cancel()
			if err != nil {
				client.AllowRebalance()
				return fmt.Errorf("commit: %w", err)
			}
		}
		if dispatchErr != nil && ctx.Err() == nil {
			client.AllowRebalance()
			return dispatchErr
		}
		client.AllowRebalance()
	}
}

// Stop stops the consumers and flushes the producer
func (b *KafkaBus) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := b.producer.Flush(ctx); err != nil {
		b.logger.Warn("kafka flush failed", zap.Error(err))
	}
	b.producer.Close()
	b.logger.Info("kafka bus stopped")
	return nil
}

func toMessage(rec *kgo.Record) shared.Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return shared.Message{
		Topic:     rec.Topic,
		Key:       string(rec.Key),
		EventID:   headers[shared.HeaderEventID],
		EventType: headers[shared.HeaderEventType],
		Payload:   rec.Value,
		Headers:   headers,
	}
}

// Ensure KafkaBus implements MessageBus
var _ shared.MessageBus = (*KafkaBus)(nil)
