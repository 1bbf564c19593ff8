package mocks

import (
	"context"
	"sync"

	"github.com/platemate/platemate-server/internal/domain/event"
)

// EventPublisher is a mock implementation of messaging.EventPublisher
// recording every published event.
type EventPublisher struct {
	mu sync.RWMutex

	events []event.Event

	Errors struct {
		Publish error
	}
}

// NewEventPublisher creates a new mock EventPublisher.
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{}
}

func (m *EventPublisher) Publish(ctx context.Context, evt event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Errors.Publish != nil {
		return m.Errors.Publish
	}
	m.events = append(m.events, evt)
	return nil
}

func (m *EventPublisher) PublishAll(ctx context.Context, events []event.Event) error {
	for _, evt := range events {
		if err := m.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Events returns a snapshot of published events.
func (m *EventPublisher) Events() []event.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]event.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType returns published events with the given type.
func (m *EventPublisher) EventsOfType(eventType string) []event.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []event.Event
	for _, evt := range m.events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}
