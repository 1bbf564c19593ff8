package ws

import (
	"encoding/json"
	"fmt"

	"github.com/platemate/platemate-server/internal/domain/model"
)

// MessageType tags every frame on the wire.
type MessageType string

const (
	// Inbound only.
	TypeAuth MessageType = "auth"

	TypeJoinSession   MessageType = "join_session"
	TypeLeaveSession  MessageType = "leave_session"
	TypeSwipe         MessageType = "swipe"
	TypeMatchFound    MessageType = "match_found"
	TypeChatMessage   MessageType = "chat_message"
	TypeSessionUpdate MessageType = "session_update"
	TypeError         MessageType = "error"
)

// Envelope is the wire shape of every frame, inbound and outbound. The
// payload under data has a statically known shape per type; Decode maps
// inbound frames onto the closed set of variants below.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Inbound is the closed set of client-originated messages.
type Inbound interface {
	inbound()
}

type AuthMessage struct {
	Token string `json:"token"`
}

type JoinSessionMessage struct {
	SessionID string `json:"-"`
}

type LeaveSessionMessage struct {
	SessionID string `json:"-"`
}

type SwipeMessage struct {
	SessionID string          `json:"-"`
	ItemType  model.ItemType  `json:"itemType"`
	ItemID    string          `json:"itemId"`
	Direction model.Direction `json:"direction"`
}

type ChatSendMessage struct {
	SessionID string `json:"-"`
	Text      string `json:"text"`
}

func (AuthMessage) inbound()         {}
func (JoinSessionMessage) inbound()  {}
func (LeaveSessionMessage) inbound() {}
func (SwipeMessage) inbound()        {}
func (ChatSendMessage) inbound()     {}

// Decode parses a raw frame into one of the inbound variants. Unknown or
// malformed frames are rejected, never passed through.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case TypeAuth:
		var msg AuthMessage
		if err := unmarshalData(env.Data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeJoinSession:
		return JoinSessionMessage{SessionID: env.SessionID}, nil
	case TypeLeaveSession:
		return LeaveSessionMessage{SessionID: env.SessionID}, nil
	case TypeSwipe:
		var msg SwipeMessage
		if err := unmarshalData(env.Data, &msg); err != nil {
			return nil, err
		}
		msg.SessionID = env.SessionID
		return msg, nil
	case TypeChatMessage:
		var msg ChatSendMessage
		if err := unmarshalData(env.Data, &msg); err != nil {
			return nil, err
		}
		msg.SessionID = env.SessionID
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

func unmarshalData(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data payload")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("malformed data payload: %w", err)
	}
	return nil
}

// Outbound payloads, one per broadcast type.

type JoinedPayload struct {
	DisplayName  string `json:"displayName"`
	Participants int    `json:"participants"`
}

type LeftPayload struct {
	Completed bool `json:"completed"`
}

type SwipedPayload struct {
	ItemType  model.ItemType  `json:"itemType"`
	ItemID    string          `json:"itemId"`
	Direction model.Direction `json:"direction"`
}

// SessionView is the session snapshot pushed on session_update frames.
type SessionView struct {
	ID           string              `json:"id"`
	Code         string              `json:"code"`
	Status       model.Status        `json:"status"`
	Participants []model.Participant `json:"participants"`
	Matches      []model.Match       `json:"matches"`
	ExpiresAt    string              `json:"expiresAt"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewSessionView projects a session aggregate into its wire snapshot.
func NewSessionView(s *model.Session) SessionView {
	return SessionView{
		ID:           s.ID(),
		Code:         s.Code(),
		Status:       s.Status(),
		Participants: s.Participants(),
		Matches:      s.Matches(),
		ExpiresAt:    s.ExpiresAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// NewEnvelope builds an outbound frame. Payload marshalling of the known
// outbound types cannot fail; an error here indicates a programming bug
// and produces an empty data field.
func NewEnvelope(t MessageType, sessionID, userID string, payload any) Envelope {
	env := Envelope{Type: t, SessionID: sessionID, UserID: userID}
	if payload == nil {
		return env
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env
	}
	env.Data = data
	return env
}

// NewErrorEnvelope builds an error frame addressed to a single connection.
func NewErrorEnvelope(code, message string) Envelope {
	return NewEnvelope(TypeError, "", "", ErrorPayload{Code: code, Message: message})
}
