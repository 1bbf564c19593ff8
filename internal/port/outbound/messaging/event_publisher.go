package messaging

import (
	"context"

	"github.com/platemate/platemate-server/internal/domain/event"
)

// EventPublisher defines the interface for publishing domain events.
type EventPublisher interface {
	// Publish publishes a single event.
	Publish(ctx context.Context, evt event.Event) error

	// PublishAll publishes multiple events.
	PublishAll(ctx context.Context, events []event.Event) error
}

// Topic names for session events.
const (
	TopicSessionEvents = "sessions.lifecycle"
	TopicSwipeEvents   = "sessions.swipes"
	TopicChatEvents    = "sessions.chat"
)

// TopicForEvent returns the appropriate topic for an event type.
func TopicForEvent(evt event.Event) string {
	switch evt.EventType() {
	case event.EventTypeSwipeRecorded, event.EventTypeMatchFound:
		return TopicSwipeEvents
	case event.EventTypeChatMessageSent:
		return TopicChatEvents
	default:
		return TopicSessionEvents
	}
}
