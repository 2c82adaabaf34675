package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/dbanking/onboarding/internal/domain/shared"
)

type registration struct {
	typ   reflect.Type
	topic string
}

// EventSerializer encodes domain events to canonical JSON and knows which
// topic each event type is published on
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]registration // eventType -> Go type and topic
}

// NewEventSerializer creates a new event serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]registration),
	}
}

// Register registers an event type for deserialization and routing.
// The eventType should match what EventType() returns on the event.
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = registration{typ: t, topic: topic}
}

// Serialize encodes a domain event: camelCase fields, sorted keys, no nulls
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("unknown event type: %s", event.EventType())
	}
	return shared.CanonicalJSON(event)
}

// Deserialize decodes JSON bytes into the registered event type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	reg, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(reg.typ).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}

	return event, nil
}

// TopicFor returns the topic an event type is published on
func (s *EventSerializer) TopicFor(eventType string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.registry[eventType]
	if !ok {
		return "", fmt.Errorf("unknown event type: %s", eventType)
	}
	return reg.topic, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// Topics returns every registered topic, without duplicates
func (s *EventSerializer) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(s.registry))
	topics := make([]string, 0, len(s.registry))
	for _, reg := range s.registry {
		if !seen[reg.topic] {
			seen[reg.topic] = true
			topics = append(topics, reg.topic)
		}
	}
	return topics
}
