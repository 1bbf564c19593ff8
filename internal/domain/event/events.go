package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns the unique identifier for this event instance.
	EventID() string

	// EventType returns the type name of the event (e.g., "session.created").
	EventType() string

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// AggregateType returns the type of aggregate (e.g., "session").
	AggregateType() string
}

// BaseEvent provides common fields for all domain events.
type BaseEvent struct {
	eventID       string
	eventType     string
	occurredAt    time.Time
	aggregateID   string
	aggregateType string
}

// NewBaseEvent creates a new BaseEvent.
func NewBaseEvent(eventType, aggregateID, aggregateType string) BaseEvent {
	return BaseEvent{
		eventID:       uuid.NewString(),
		eventType:     eventType,
		occurredAt:    time.Now().UTC(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
	}
}

func (e BaseEvent) EventID() string       { return e.eventID }
func (e BaseEvent) EventType() string     { return e.eventType }
func (e BaseEvent) OccurredAt() time.Time { return e.occurredAt }
func (e BaseEvent) AggregateID() string   { return e.aggregateID }
func (e BaseEvent) AggregateType() string { return e.aggregateType }

// Aggregate types
const (
	AggregateTypeSession = "session"
)

// Event types
const (
	EventTypeSessionCreated    = "session.created"
	EventTypeParticipantJoined = "session.participant_joined"
	EventTypeParticipantLeft   = "session.participant_left"
	EventTypeSessionCompleted  = "session.completed"
	EventTypeSessionExpired    = "session.expired"
	EventTypeSwipeRecorded     = "session.swipe_recorded"
	EventTypeMatchFound        = "session.match_found"
	EventTypeChatMessageSent   = "session.chat_message"
)
