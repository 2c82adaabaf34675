package event

import (
	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/kyc"
)

// Topics names the bus topics of the onboarding service
type Topics struct {
	CustomerCreated  string
	CustomerUpdated  string
	KycStatusChanged string
}

// NewTopics derives topic names from a prefix, e.g. "onboarding" gives
// "onboarding.customer-created"
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = "onboarding"
	}
	return Topics{
		CustomerCreated:  prefix + ".customer-created",
		CustomerUpdated:  prefix + ".customer-updated",
		KycStatusChanged: prefix + ".kyc-status-changed",
	}
}

// All lists the topics in a stable order
func (t Topics) All() []string {
	return []string{t.CustomerCreated, t.CustomerUpdated, t.KycStatusChanged}
}

// DeadLetterTopic returns the dead-letter topic paired with topic
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// RegisterAllEvents registers every onboarding event with the serializer.
// The outbox processor needs this to route stored entries to their topic.
func RegisterAllEvents(serializer *EventSerializer, topics Topics) {
	serializer.Register(customer.EventTypeCustomerCreated, &customer.CustomerCreatedEvent{}, topics.CustomerCreated)
	serializer.Register(customer.EventTypeCustomerUpdated, &customer.CustomerUpdatedEvent{}, topics.CustomerUpdated)
	serializer.Register(kyc.EventTypeKycStatusChanged, &kyc.KycStatusChangedEvent{}, topics.KycStatusChanged)
}
