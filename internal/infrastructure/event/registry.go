package event

import (
	"fmt"
	"sync"

	"github.com/dbanking/onboarding/internal/domain/shared"
)

// Subscription is a handler bound to a topic and consumer group
type Subscription struct {
	Topic   string
	Handler shared.MessageHandler
	Options shared.SubscribeOptions
}

// DeadLetterTopic returns the configured dead-letter topic or "<topic>.dlq"
func (s *Subscription) DeadLetterTopic() string {
	if s.Options.DeadLetterTopic != "" {
		return s.Options.DeadLetterTopic
	}
	return DeadLetterTopic(s.Topic)
}

// SubscriptionRegistry manages subscriptions per topic. A topic has at most
// one subscription per consumer group.
type SubscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string][]*Subscription // topic -> subscriptions
}

// NewSubscriptionRegistry creates a new subscription registry
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subs: make(map[string][]*Subscription),
	}
}

// Register adds a subscription, filling in option defaults
func (r *SubscriptionRegistry) Register(topic string, handler shared.MessageHandler, opts shared.SubscribeOptions) (*Subscription, error) {
	if topic == "" || handler == nil {
		return nil, fmt.Errorf("subscribe: topic and handler are required")
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = shared.DefaultRetryPolicy()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs[topic] {
		if s.Options.Group == opts.Group {
			return nil, fmt.Errorf("subscribe: topic %s already has a handler for group %q", topic, opts.Group)
		}
	}
	sub := &Subscription{Topic: topic, Handler: handler, Options: opts}
	r.subs[topic] = append(r.subs[topic], sub)
	return sub, nil
}

// ForTopic returns the subscriptions of a topic
func (r *SubscriptionRegistry) ForTopic(topic string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.subs[topic]...)
}

// All returns every subscription
func (r *SubscriptionRegistry) All() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Subscription, 0)
	for _, subs := range r.subs {
		result = append(result, subs...)
	}
	return result
}

// Topics returns the subscribed topics
func (r *SubscriptionRegistry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.subs))
	for t := range r.subs {
		topics = append(topics, t)
	}
	return topics
}
