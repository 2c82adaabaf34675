package shared

import "context"

// Message headers carried by every bus message
const (
	HeaderEventID       = "x-event-id"
	HeaderEventType     = "x-event-type"
	HeaderCorrelationID = "x-correlation-id"
	HeaderError         = "x-error"
	HeaderAttempts      = "x-attempts"
)

// Message is a serialized event travelling over the bus
type Message struct {
	Topic     string
	Key       string
	EventID   string
	EventType string
	Payload   []byte
	Headers   map[string]string
	// Attempt is the 1-based delivery attempt, set by the dispatcher
	Attempt int
}

// Header returns a header value or an empty string
func (m Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// MessageHandler consumes bus messages. Returning an error triggers the
// subscription's retry policy unless the error is wrapped with Permanent.
type MessageHandler interface {
	Handle(ctx context.Context, msg Message) error
}

// MessageHandlerFunc adapts a function to MessageHandler
type MessageHandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f(ctx, msg)
func (f MessageHandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// SubscribeOptions configures a subscription
type SubscribeOptions struct {
	// Group is the consumer group; subscriptions in the same group share the load
	Group string
	// Prefetch bounds the number of in-flight messages for the subscription
	Prefetch int
	// Retry is applied to handler failures before dead-lettering
	Retry RetryPolicy
	// DeadLetterTopic receives messages that exhausted retries; defaults to "<topic>.dlq"
	DeadLetterTopic string
}

// MessagePublisher publishes messages to a topic
type MessagePublisher interface {
	Publish(ctx context.Context, msg Message) error
}

// MessageBus combines publisher and subscriber capabilities
type MessageBus interface {
	MessagePublisher
	// Subscribe registers a handler for a topic; must be called before Start
	Subscribe(topic string, handler MessageHandler, opts SubscribeOptions) error
	// Start starts consuming subscribed topics
	Start(ctx context.Context) error
	// Stop gracefully stops consuming and releases resources
	Stop(ctx context.Context) error
}

// OutboxEventSaver saves domain events to the outbox table within the
// transaction carried by ctx. Repositories and services call it inside
// TxManager.WithinTx so events commit atomically with the aggregate change.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, events ...DomainEvent) error
}

// OutboxNotifier wakes the outbox processor after a commit
type OutboxNotifier interface {
	Notify()
}
