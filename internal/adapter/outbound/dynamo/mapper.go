package dynamo

import (
	"time"

	"github.com/platemate/platemate-server/internal/domain/model"
)

// Record structures for DynamoDB serialization. ExpiresAtEpoch doubles as
// the table's TTL attribute so abandoned sessions are reclaimed server-side.

type sessionRecord struct {
	ID             string              `dynamodbav:"id"`
	Code           string              `dynamodbav:"code"`
	HostID         string              `dynamodbav:"hostId"`
	Status         string              `dynamodbav:"status"`
	Participants   []participantRecord `dynamodbav:"participants"`
	Swipes         []swipeRecord       `dynamodbav:"swipes"`
	Matches        []matchRecord       `dynamodbav:"matches"`
	Messages       []messageRecord     `dynamodbav:"messages"`
	MatchKeys      []string            `dynamodbav:"matchKeys,stringset,omitempty"`
	ExpiresAtEpoch int64               `dynamodbav:"expiresAt"`
	CreatedAt      time.Time           `dynamodbav:"createdAt"`
	UpdatedAt      time.Time           `dynamodbav:"updatedAt"`
}

type participantRecord struct {
	UserID      string    `dynamodbav:"userId"`
	DisplayName string    `dynamodbav:"displayName"`
	JoinedAt    time.Time `dynamodbav:"joinedAt"`
	IsActive    bool      `dynamodbav:"isActive"`
}

type swipeRecord struct {
	UserID    string    `dynamodbav:"userId"`
	ItemType  string    `dynamodbav:"itemType"`
	ItemID    string    `dynamodbav:"itemId"`
	Direction string    `dynamodbav:"direction"`
	Timestamp time.Time `dynamodbav:"timestamp"`
}

type matchRecord struct {
	ItemType     string    `dynamodbav:"itemType"`
	ItemID       string    `dynamodbav:"itemId"`
	ItemName     string    `dynamodbav:"itemName"`
	MatchedUsers []string  `dynamodbav:"matchedUsers"`
	MatchedAt    time.Time `dynamodbav:"matchedAt"`
}

type messageRecord struct {
	ID     string    `dynamodbav:"id"`
	UserID string    `dynamodbav:"userId"`
	Text   string    `dynamodbav:"text"`
	SentAt time.Time `dynamodbav:"sentAt"`
}

type userSessionRecord struct {
	UserID    string    `dynamodbav:"userId"`
	SessionID string    `dynamodbav:"sessionId"`
	JoinedAt  time.Time `dynamodbav:"joinedAt"`
}

func newSessionRecord(s *model.Session) sessionRecord {
	data := s.Data()

	rec := sessionRecord{
		ID:             data.ID,
		Code:           data.Code,
		HostID:         data.HostID,
		Status:         string(data.Status),
		Participants:   make([]participantRecord, 0, len(data.Participants)),
		Swipes:         make([]swipeRecord, 0, len(data.Swipes)),
		Matches:        make([]matchRecord, 0, len(data.Matches)),
		Messages:       make([]messageRecord, 0, len(data.Messages)),
		ExpiresAtEpoch: data.ExpiresAt.Unix(),
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.UpdatedAt,
	}

	for _, p := range data.Participants {
		rec.Participants = append(rec.Participants, newParticipantRecord(p))
	}
	for _, sw := range data.Swipes {
		rec.Swipes = append(rec.Swipes, newSwipeRecord(sw))
	}
	for _, m := range data.Matches {
		rec.Matches = append(rec.Matches, newMatchRecord(m))
		rec.MatchKeys = append(rec.MatchKeys, matchKey(m.ItemType, m.ItemID))
	}
	for _, msg := range data.Messages {
		rec.Messages = append(rec.Messages, newMessageRecord(msg))
	}

	return rec
}

func newParticipantRecord(p model.Participant) participantRecord {
	return participantRecord{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
		IsActive:    p.IsActive,
	}
}

func newSwipeRecord(s model.Swipe) swipeRecord {
	return swipeRecord{
		UserID:    s.UserID,
		ItemType:  string(s.ItemType),
		ItemID:    s.ItemID,
		Direction: string(s.Direction),
		Timestamp: s.Timestamp,
	}
}

func newMatchRecord(m model.Match) matchRecord {
	return matchRecord{
		ItemType:     string(m.ItemType),
		ItemID:       m.ItemID,
		ItemName:     m.ItemName,
		MatchedUsers: m.MatchedUsers,
		MatchedAt:    m.MatchedAt,
	}
}

func newMessageRecord(m model.ChatMessage) messageRecord {
	return messageRecord{
		ID:     m.ID,
		UserID: m.UserID,
		Text:   m.Text,
		SentAt: m.SentAt,
	}
}

func (r sessionRecord) toModel(config model.SessionConfig) *model.Session {
	data := model.SessionData{
		ID:        r.ID,
		Code:      r.Code,
		HostID:    r.HostID,
		Status:    model.Status(r.Status),
		ExpiresAt: time.Unix(r.ExpiresAtEpoch, 0).UTC(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	for _, p := range r.Participants {
		data.Participants = append(data.Participants, model.Participant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt,
			IsActive:    p.IsActive,
		})
	}
	for _, sw := range r.Swipes {
		data.Swipes = append(data.Swipes, model.Swipe{
			UserID:    sw.UserID,
			ItemType:  model.ItemType(sw.ItemType),
			ItemID:    sw.ItemID,
			Direction: model.Direction(sw.Direction),
			Timestamp: sw.Timestamp,
		})
	}
	for _, m := range r.Matches {
		data.Matches = append(data.Matches, model.Match{
			ItemType:     model.ItemType(m.ItemType),
			ItemID:       m.ItemID,
			ItemName:     m.ItemName,
			MatchedUsers: m.MatchedUsers,
			MatchedAt:    m.MatchedAt,
		})
	}
	for _, msg := range r.Messages {
		data.Messages = append(data.Messages, model.ChatMessage{
			ID:     msg.ID,
			UserID: msg.UserID,
			Text:   msg.Text,
			SentAt: msg.SentAt,
		})
	}

	return model.ReconstructSession(data, config)
}

func matchKey(itemType model.ItemType, itemID string) string {
	return string(itemType) + "#" + itemID
}
