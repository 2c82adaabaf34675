package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned when publishing to a stopped bus
var ErrBusStopped = errors.New("message bus stopped")

// InMemoryBus implements MessageBus inside one process. Each subscription
// has a queue bounded by its prefetch and a single worker, so delivery
// order equals publish order. Intended for development and tests.
type InMemoryBus struct {
	registry   *SubscriptionRegistry
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu      sync.RWMutex
	queues  map[*Subscription]chan shared.Message
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewInMemoryBus creates a new in-memory bus. Dead letters are published
// back onto the same bus.
func NewInMemoryBus(logger *zap.Logger) *InMemoryBus {
	b := &InMemoryBus{
		registry: NewSubscriptionRegistry(),
		logger:   logger,
		queues:   make(map[*Subscription]chan shared.Message),
	}
	b.dispatcher = NewDispatcher(b, logger)
	return b
}

// Subscribe registers a handler for a topic
func (b *InMemoryBus) Subscribe(topic string, handler shared.MessageHandler, opts shared.SubscribeOptions) error {
	sub, err := b.registry.Register(topic, handler, opts)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.queues[sub] = make(chan shared.Message, sub.Options.Prefetch)
	b.mu.Unlock()

	b.logger.Debug("handler subscribed",
		zap.String("topic", topic),
		zap.String("group", sub.Options.Group),
	)
	return nil
}

// Publish enqueues msg for every subscription of its topic. It blocks while
// a queue is full, until ctx ends.
func (b *InMemoryBus) Publish(ctx context.Context, msg shared.Message) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}

	subs := b.registry.ForTopic(msg.Topic)
	if len(subs) == 0 {
		b.logger.Debug("no subscribers for topic", zap.String("topic", msg.Topic))
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case b.queues[sub] <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Start starts one worker per subscription
func (b *InMemoryBus) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub, queue := range b.queues {
		b.wg.Add(1)
		go b.work(ctx, sub, queue)
	}

	b.logger.Info("message bus started", zap.Int("subscriptions", len(b.queues)))
	return nil
}

// Stop stops the workers. Messages still queued are dropped.
func (b *InMemoryBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)
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
		b.logger.Info("message bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBus) work(ctx context.Context, sub *Subscription, queue chan shared.Message) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-queue:
			if err := b.dispatcher.Dispatch(ctx, sub, msg); err != nil && ctx.Err() == nil {
				b.logger.Error("message lost",
					zap.String("topic", msg.Topic),
					zap.String("event_id", msg.EventID),
					zap.Error(err),
				)
			}
		}
	}
}

// Ensure InMemoryBus implements MessageBus
var _ shared.MessageBus = (*InMemoryBus)(nil)
