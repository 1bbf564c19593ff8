package event

import (
	"github.com/platemate/platemate-server/internal/domain/model"
)

// SessionCreated is emitted when a host opens a new session.
type SessionCreated struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	HostID    string `json:"host_id"`
}

// NewSessionCreated creates a new SessionCreated event.
func NewSessionCreated(sessionID, code, hostID string) SessionCreated {
	return SessionCreated{
		BaseEvent: NewBaseEvent(EventTypeSessionCreated, sessionID, AggregateTypeSession),
		SessionID: sessionID,
		Code:      code,
		HostID:    hostID,
	}
}

// ParticipantJoined is emitted when a user joins (or rejoins) a session.
type ParticipantJoined struct {
	BaseEvent
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Rejoined    bool   `json:"rejoined"`
}

// NewParticipantJoined creates a new ParticipantJoined event.
func NewParticipantJoined(sessionID, userID, displayName string, rejoined bool) ParticipantJoined {
	return ParticipantJoined{
		BaseEvent:   NewBaseEvent(EventTypeParticipantJoined, sessionID, AggregateTypeSession),
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		Rejoined:    rejoined,
	}
}

// ParticipantLeft is emitted when a user leaves a session.
type ParticipantLeft struct {
	BaseEvent
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Completed bool   `json:"completed"`
}

// NewParticipantLeft creates a new ParticipantLeft event.
func NewParticipantLeft(sessionID, userID string, completed bool) ParticipantLeft {
	return ParticipantLeft{
		BaseEvent: NewBaseEvent(EventTypeParticipantLeft, sessionID, AggregateTypeSession),
		SessionID: sessionID,
		UserID:    userID,
		Completed: completed,
	}
}

// SwipeRecorded is emitted after a swipe is persisted.
type SwipeRecorded struct {
	BaseEvent
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	ItemType  model.ItemType  `json:"item_type"`
	ItemID    string          `json:"item_id"`
	Direction model.Direction `json:"direction"`
}

// NewSwipeRecorded creates a new SwipeRecorded event.
func NewSwipeRecorded(sessionID string, swipe model.Swipe) SwipeRecorded {
	return SwipeRecorded{
		BaseEvent: NewBaseEvent(EventTypeSwipeRecorded, sessionID, AggregateTypeSession),
		SessionID: sessionID,
		UserID:    swipe.UserID,
		ItemType:  swipe.ItemType,
		ItemID:    swipe.ItemID,
		Direction: swipe.Direction,
	}
}

// MatchFound is emitted the first time the match threshold is crossed
// for an item within a session.
type MatchFound struct {
	BaseEvent
	SessionID    string         `json:"session_id"`
	ItemType     model.ItemType `json:"item_type"`
	ItemID       string         `json:"item_id"`
	ItemName     string         `json:"item_name"`
	MatchedUsers []string       `json:"matched_users"`
}

// NewMatchFound creates a new MatchFound event.
func NewMatchFound(sessionID string, match model.Match) MatchFound {
	return MatchFound{
		BaseEvent:    NewBaseEvent(EventTypeMatchFound, sessionID, AggregateTypeSession),
		SessionID:    sessionID,
		ItemType:     match.ItemType,
		ItemID:       match.ItemID,
		ItemName:     match.ItemName,
		MatchedUsers: match.MatchedUsers,
	}
}

// ChatMessageSent is emitted after a chat message is persisted.
type ChatMessageSent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// NewChatMessageSent creates a new ChatMessageSent event.
func NewChatMessageSent(sessionID string, msg model.ChatMessage) ChatMessageSent {
	return ChatMessageSent{
		BaseEvent: NewBaseEvent(EventTypeChatMessageSent, sessionID, AggregateTypeSession),
		SessionID: sessionID,
		MessageID: msg.ID,
		UserID:    msg.UserID,
	}
}
