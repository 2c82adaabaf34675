package event

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Dispatcher delivers one message to a subscription's handler. Failures are
// retried with the subscription's backoff policy; permanent failures and
// exhausted retries go to the dead-letter topic. Both bus implementations
// share it so they behave identically.
type Dispatcher struct {
	deadLetters shared.MessagePublisher
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher that dead-letters through publisher
func NewDispatcher(deadLetters shared.MessagePublisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		deadLetters: deadLetters,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Dispatch returns nil once the message is handled or dead-lettered. An
// error means the message is still owed: the context ended during backoff
// or the dead-letter publish failed.
func (d *Dispatcher) Dispatch(ctx context.Context, sub *Subscription, msg shared.Message) error {
	if id := msg.Header(shared.HeaderCorrelationID); id != "" {
		ctx, _ = logger.WithCorrelationID(ctx, d.logger, id)
	} else {
		ctx = logger.WithContext(ctx, d.logger)
	}
	log := logger.L(ctx).With(
		zap.String("topic", msg.Topic),
		zap.String("event_id", msg.EventID),
		zap.String("group", sub.Options.Group),
	)

	policy := sub.Options.Retry
	var err error
	for attempt := 1; ; attempt++ {
		msg.Attempt = attempt
		err = invoke(ctx, sub.Handler, msg)
		if err == nil {
			log.Debug("message handled", zap.Int("attempt", attempt))
			return nil
		}
		if shared.IsPermanent(err) || policy.Exhausted(attempt) {
			break
		}
		delay := policy.Backoff(attempt)
		log.Warn("message handler failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := d.sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	return d.deadLetter(ctx, log, sub, msg, err)
}

func (d *Dispatcher) deadLetter(ctx context.Context, log *logger.ContextLogger, sub *Subscription, msg shared.Message, cause error) error {
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[shared.HeaderError] = cause.Error()
	headers[shared.HeaderAttempts] = strconv.Itoa(msg.Attempt)

	dlq := shared.Message{
		Topic:     sub.DeadLetterTopic(),
		Key:       msg.Key,
		EventID:   msg.EventID,
		EventType: msg.EventType,
		Payload:   msg.Payload,
		Headers:   headers,
	}
	if err := d.deadLetters.Publish(ctx, dlq); err != nil {
		log.Error("failed to dead-letter message", zap.Error(err))
		return fmt.Errorf("dead-letter %s: %w", msg.EventID, err)
	}

	log.Warn("message dead-lettered",
		zap.String("dead_letter_topic", dlq.Topic),
		zap.Int("attempts", msg.Attempt),
		zap.Bool("permanent", shared.IsPermanent(cause)),
		zap.Error(cause),
	)
	return nil
}

// invoke calls the handler, turning a panic into a permanent failure
func invoke(ctx context.Context, h shared.MessageHandler, msg shared.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = shared.Permanent(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	return h.Handle(ctx, msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
