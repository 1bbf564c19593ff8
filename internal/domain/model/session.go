package model

import (
	"time"

	"github.com/google/uuid"

	domainerror "github.com/platemate/platemate-server/internal/domain/error"
)

// Status is the lifecycle state of a session.
// Transitions: WAITING -> ACTIVE -> COMPLETED, or any non-terminal
// state -> EXPIRED via time-based expiry. COMPLETED and EXPIRED are terminal.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// ItemType identifies the kind of item being voted on.
type ItemType string

const (
	ItemTypeRecipe     ItemType = "recipe"
	ItemTypeRestaurant ItemType = "restaurant"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemTypeRecipe || t == ItemTypeRestaurant
}

// Direction is a swipe vote.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight
}

// Participant is a member of a session. Participants are never removed
// from the list, only marked inactive on leave.
type Participant struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
	IsActive    bool      `json:"isActive"`
}

// Swipe is a single vote on an item. The swipe log is append-only and
// retained for the life of the session to support match recomputation.
type Swipe struct {
	UserID    string    `json:"userId"`
	ItemType  ItemType  `json:"itemType"`
	ItemID    string    `json:"itemId"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

// Match records that the matching threshold of distinct participants
// swiped right on the same item. At most one per (itemType, itemId).
type Match struct {
	ItemType     ItemType  `json:"itemType"`
	ItemID       string    `json:"itemId"`
	ItemName     string    `json:"itemName"`
	MatchedUsers []string  `json:"matchedUsers"`
	MatchedAt    time.Time `json:"matchedAt"`
}

// ChatMessage is a message posted into a session.
type ChatMessage struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// SessionConfig holds the tunable limits for session aggregates.
type SessionConfig struct {
	MaxParticipants int
	MatchThreshold  int
	SessionDuration time.Duration
	MaxMessageLen   int
}

// DefaultSessionConfig returns default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxParticipants: 5,
		MatchThreshold:  2,
		SessionDuration: 2 * time.Hour,
		MaxMessageLen:   500,
	}
}

// Session is the aggregate coordinating a shared swipe stream between
// participants. The document store is the durable owner; cached copies
// are disposable.
type Session struct {
	id           string
	code         string
	hostID       string
	status       Status
	participants []Participant
	swipes       []Swipe
	matches      []Match
	messages     []ChatMessage
	expiresAt    time.Time
	createdAt    time.Time
	updatedAt    time.Time

	config SessionConfig
}

// NewSession creates a WAITING session with the host as first participant.
func NewSession(hostID, hostName, code string, config SessionConfig) (*Session, error) {
	if hostID == "" {
		return nil, domainerror.ErrUserIDRequired
	}
	if code == "" {
		return nil, domainerror.ErrSessionCodeRequired
	}

	now := time.Now().UTC()

	return &Session{
		id:     uuid.NewString(),
		code:   code,
		hostID: hostID,
		status: StatusWaiting,
		participants: []Participant{{
			UserID:      hostID,
			DisplayName: hostName,
			JoinedAt:    now,
			IsActive:    true,
		}},
		expiresAt: now.Add(config.SessionDuration),
		createdAt: now,
		updatedAt: now,
		config:    config,
	}, nil
}

// SessionData carries persisted fields for reconstruction. The JSON shape
// is also what the cache tier stores under session:{id}.
type SessionData struct {
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	HostID       string        `json:"hostId"`
	Status       Status        `json:"status"`
	Participants []Participant `json:"participants"`
	Swipes       []Swipe       `json:"swipes"`
	Matches      []Match       `json:"matches"`
	Messages     []ChatMessage `json:"messages"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// ReconstructSession creates a Session from persisted data.
func ReconstructSession(data SessionData, config SessionConfig) *Session {
	return &Session{
		id:           data.ID,
		code:         data.Code,
		hostID:       data.HostID,
		status:       data.Status,
		participants: data.Participants,
		swipes:       data.Swipes,
		matches:      data.Matches,
		messages:     data.Messages,
		expiresAt:    data.ExpiresAt,
		createdAt:    data.CreatedAt,
		updatedAt:    data.UpdatedAt,
		config:       config,
	}
}

// Data returns the persisted fields of the session.
func (s *Session) Data() SessionData {
	return SessionData{
		ID:           s.id,
		Code:         s.code,
		HostID:       s.hostID,
		Status:       s.status,
		Participants: s.participants,
		Swipes:       s.swipes,
		Matches:      s.matches,
		Messages:     s.messages,
		ExpiresAt:    s.expiresAt,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}

// Getters

func (s *Session) ID() string                  { return s.id }
func (s *Session) Code() string                { return s.code }
func (s *Session) HostID() string              { return s.hostID }
func (s *Session) Status() Status              { return s.status }
func (s *Session) Participants() []Participant { return s.participants }
func (s *Session) Swipes() []Swipe             { return s.swipes }
func (s *Session) Matches() []Match            { return s.matches }
func (s *Session) Messages() []ChatMessage     { return s.messages }
func (s *Session) ExpiresAt() time.Time        { return s.expiresAt }
func (s *Session) CreatedAt() time.Time        { return s.createdAt }
func (s *Session) UpdatedAt() time.Time        { return s.updatedAt }
func (s *Session) Config() SessionConfig       { return s.config }

// Commands

// Join adds a user as a participant, or reactivates them if they already
// joined before. Joining flips a WAITING session to ACTIVE.
func (s *Session) Join(userID, displayName string) (*Participant, error) {
	if userID == "" {
		return nil, domainerror.ErrUserIDRequired
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// Rejoining is always allowed and does not consume a capacity slot.
	if i := s.participantIndex(userID); i >= 0 {
		s.participants[i].IsActive = true
		s.touch(now)
		return &s.participants[i], nil
	}

	if len(s.participants) >= s.config.MaxParticipants {
		return nil, domainerror.ErrSessionFull
	}

	s.participants = append(s.participants, Participant{
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    now,
		IsActive:    true,
	})
	s.status = StatusActive
	s.touch(now)
	return &s.participants[len(s.participants)-1], nil
}

// Leave marks the participant inactive. If every participant is now
// inactive the session transitions to COMPLETED. Returns true when the
// session completed as a result.
func (s *Session) Leave(userID string) (bool, error) {
	i := s.participantIndex(userID)
	if i < 0 {
		return false, domainerror.ErrNotParticipant
	}

	now := time.Now().UTC()
	s.participants[i].IsActive = false
	s.touch(now)

	for _, p := range s.participants {
		if p.IsActive {
			return false, nil
		}
	}
	s.status = StatusCompleted
	return true, nil
}

// AppendSwipe validates and appends a swipe to the log.
func (s *Session) AppendSwipe(userID string, itemType ItemType, itemID string, direction Direction) (*Swipe, error) {
	if userID == "" {
		return nil, domainerror.ErrUserIDRequired
	}
	if !itemType.Valid() {
		return nil, domainerror.ErrInvalidItemType
	}
	if itemID == "" || !direction.Valid() {
		return nil, domainerror.ErrInvalidSwipe
	}
	if s.participantIndex(userID) < 0 {
		return nil, domainerror.ErrNotParticipant
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	swipe := Swipe{
		UserID:    userID,
		ItemType:  itemType,
		ItemID:    itemID,
		Direction: direction,
		Timestamp: time.Now().UTC(),
	}
	s.swipes = append(s.swipes, swipe)
	s.touch(swipe.Timestamp)
	return &swipe, nil
}

// AppendMatch records a match for an item. Callers must check HasMatch
// first; the repository enforces idempotence a second time on write.
func (s *Session) AppendMatch(itemType ItemType, itemID, itemName string, users []string) Match {
	match := Match{
		ItemType:     itemType,
		ItemID:       itemID,
		ItemName:     itemName,
		MatchedUsers: users,
		MatchedAt:    time.Now().UTC(),
	}
	s.matches = append(s.matches, match)
	s.touch(match.MatchedAt)
	return match
}

// AppendMessage validates and appends a chat message.
func (s *Session) AppendMessage(userID, text string) (*ChatMessage, error) {
	if s.participantIndex(userID) < 0 {
		return nil, domainerror.ErrNotParticipant
	}
	if text == "" {
		return nil, domainerror.ErrMessageEmpty
	}
	if len(text) > s.config.MaxMessageLen {
		return nil, domainerror.ErrMessageTooLong
	}

	msg := ChatMessage{
		ID:     uuid.NewString(),
		UserID: userID,
		Text:   text,
		SentAt: time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	s.touch(msg.SentAt)
	return &msg, nil
}

// MarkExpired transitions a non-terminal session to EXPIRED.
func (s *Session) MarkExpired() bool {
	if s.status.IsTerminal() {
		return false
	}
	s.status = StatusExpired
	s.touch(time.Now().UTC())
	return true
}

// Queries

// DistinctRightSwipers scans the full swipe log and returns the distinct
// users who swiped right on the item, in first-swipe order. Re-scanning on
// every right-swipe is deliberate: log sizes are bounded by the participant
// cap times the item count per session.
func (s *Session) DistinctRightSwipers(itemType ItemType, itemID string) []string {
	seen := make(map[string]struct{})
	var users []string
	for _, sw := range s.swipes {
		if sw.ItemType != itemType || sw.ItemID != itemID || sw.Direction != DirectionRight {
			continue
		}
		if _, ok := seen[sw.UserID]; ok {
			continue
		}
		seen[sw.UserID] = struct{}{}
		users = append(users, sw.UserID)
	}
	return users
}

// HasMatch reports whether a match already exists for the item.
func (s *Session) HasMatch(itemType ItemType, itemID string) bool {
	for _, m := range s.matches {
		if m.ItemType == itemType && m.ItemID == itemID {
			return true
		}
	}
	return false
}

// HasParticipant reports whether the user ever joined the session.
func (s *Session) HasParticipant(userID string) bool {
	return s.participantIndex(userID) >= 0
}

// ActiveParticipants returns the participants not marked inactive.
func (s *Session) ActiveParticipants() []Participant {
	var active []Participant
	for _, p := range s.participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// IsExpired reports whether the session is past its expiry time.
func (s *Session) IsExpired() bool {
	return time.Now().UTC().After(s.expiresAt)
}

// Validate returns the domain error preventing further mutation, if any.
func (s *Session) Validate() error {
	if s.status == StatusCompleted {
		return domainerror.ErrSessionCompleted
	}
	if s.status == StatusExpired || s.IsExpired() {
		return domainerror.ErrSessionExpired
	}
	return nil
}

func (s *Session) participantIndex(userID string) int {
	for i, p := range s.participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *Session) touch(t time.Time) {
	s.updatedAt = t
}
