package repository

import (
	"context"

	"github.com/platemate/platemate-server/internal/domain/model"
)

// SessionRepository defines the system-of-record contract for session
// aggregates. Mutations are expressed as intent so implementations can use
// server-side atomic partial updates (append to list + set field in one
// operation) instead of client-side read-modify-write; see the concurrency
// notes in the dynamo adapter.
type SessionRepository interface {
	// Insert persists a new session aggregate.
	Insert(ctx context.Context, session *model.Session) error

	// FindByID retrieves a session by its ID.
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// FindByCode retrieves a session by its join code.
	FindByCode(ctx context.Context, code string) (*model.Session, error)

	// AppendParticipant atomically appends a participant and sets the
	// session status in a single update.
	AppendParticipant(ctx context.Context, id string, p model.Participant, status model.Status) error

	// SetParticipantActive flips a participant's active flag.
	SetParticipantActive(ctx context.Context, id, userID string, active bool) error

	// SetStatus sets the session status.
	SetStatus(ctx context.Context, id string, status model.Status) error

	// AppendSwipe atomically appends a swipe to the session's swipe log.
	AppendSwipe(ctx context.Context, id string, swipe model.Swipe) error

	// AppendMatch atomically appends a match, guarded server-side so that
	// at most one match per (itemType, itemId) exists. A second append for
	// the same item returns ErrAlreadyExists.
	AppendMatch(ctx context.Context, id string, match model.Match) error

	// AppendMessage atomically appends a chat message.
	AppendMessage(ctx context.Context, id string, msg model.ChatMessage) error

	// ListByUser retrieves all sessions the user ever participated in.
	ListByUser(ctx context.Context, userID string) ([]*model.Session, error)

	// CountActiveByHost counts the host's sessions in a non-terminal state.
	CountActiveByHost(ctx context.Context, hostID string) (int, error)
}

// ItemRepository resolves display metadata for swipeable items. Item
// metadata is comparatively static, so callers cache results with a long TTL.
type ItemRepository interface {
	// FindName returns the display name for an item, or ErrNotFound.
	FindName(ctx context.Context, itemType model.ItemType, itemID string) (string, error)
}
