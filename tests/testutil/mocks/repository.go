// Package mocks provides mock implementations of ports for testing.
package mocks

import (
	"context"
	"sync"

	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/repository"
)

// --- SessionRepository Mock ---

// SessionRepository is a mock implementation of repository.SessionRepository
// backed by in-memory aggregates.
type SessionRepository struct {
	mu sync.RWMutex

	// Storage
	sessions map[string]model.SessionData // by ID
	byCode   map[string]string            // code -> ID
	config   model.SessionConfig

	// Call tracking
	Calls struct {
		Insert               int
		FindByID             int
		FindByCode           int
		AppendParticipant    int
		SetParticipantActive int
		SetStatus            int
		AppendSwipe          int
		AppendMatch          int
		AppendMessage        int
		ListByUser           int
		CountActiveByHost    int
	}

	// Error injection
	Errors struct {
		Insert               error
		FindByID             error
		FindByCode           error
		AppendParticipant    error
		SetParticipantActive error
		SetStatus            error
		AppendSwipe          error
		AppendMatch          error
		AppendMessage        error
		ListByUser           error
		CountActiveByHost    error
	}
}

// NewSessionRepository creates a new mock SessionRepository.
func NewSessionRepository(config model.SessionConfig) *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]model.SessionData),
		byCode:   make(map[string]string),
		config:   config,
	}
}

func (m *SessionRepository) Insert(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Insert++

	if m.Errors.Insert != nil {
		return m.Errors.Insert
	}

	data := session.Data()
	m.sessions[data.ID] = data
	m.byCode[data.Code] = data.ID
	return nil
}

func (m *SessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.Calls.FindByID++

	if m.Errors.FindByID != nil {
		return nil, m.Errors.FindByID
	}
	return m.findLocked(id)
}

func (m *SessionRepository) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.Calls.FindByCode++

	if m.Errors.FindByCode != nil {
		return nil, m.Errors.FindByCode
	}

	id, ok := m.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m.findLocked(id)
}

func (m *SessionRepository) AppendParticipant(ctx context.Context, id string, p model.Participant, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.AppendParticipant++

	if m.Errors.AppendParticipant != nil {
		return m.Errors.AppendParticipant
	}

	data, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	data.Participants = append(data.Participants, p)
	data.Status = status
	m.sessions[id] = data
	return nil
}

func (m *SessionRepository) SetParticipantActive(ctx context.Context, id, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.SetParticipantActive++

	if m.Errors.SetParticipantActive != nil {
		return m.Errors.SetParticipantActive
	}

	data, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range data.Participants {
		if data.Participants[i].UserID == userID {
			data.Participants[i].IsActive = active
			m.sessions[id] = data
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *SessionRepository) SetStatus(ctx context.Context, id string, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.SetStatus++

	if m.Errors.SetStatus != nil {
		return m.Errors.SetStatus
	}

	data, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	data.Status = status
	m.sessions[id] = data
	return nil
}

func (m *SessionRepository) AppendSwipe(ctx context.Context, id string, swipe model.Swipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.AppendSwipe++

	if m.Errors.AppendSwipe != nil {
		return m.Errors.AppendSwipe
	}

	data, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	data.Swipes = append(data.Swipes, swipe)
	m.sessions[id] = data
	return nil
}

func (m *SessionRepository) AppendMatch(ctx context.Context, id string, match model.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.AppendMatch++

	if m.Errors.AppendMatch != nil {
		return m.Errors.AppendMatch
	}

	data, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range data.Matches {
		if existing.ItemType == match.ItemType && existing.ItemID == match.ItemID {
			return repository.ErrAlreadyExists
		}
	}
	data.Matches = append(data.Matches, match)
	m.sessions[id] = data
	return nil
}

func (m *SessionRepository) AppendMessage(ctx context.Context, id string, msg model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.AppendMessage++

	if m.Errors.AppendMessage != nil {
		return m.Errors.AppendMessage
	}

	data, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	data.Messages = append(data.Messages, msg)
	m.sessions[id] = data
	return nil
}

func (m *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.Calls.ListByUser++

	if m.Errors.ListByUser != nil {
		return nil, m.Errors.ListByUser
	}

	var out []*model.Session
	for _, data := range m.sessions {
		for _, p := range data.Participants {
			if p.UserID == userID {
				out = append(out, model.ReconstructSession(data, m.config))
				break
			}
		}
	}
	return out, nil
}

func (m *SessionRepository) CountActiveByHost(ctx context.Context, hostID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.Calls.CountActiveByHost++

	if m.Errors.CountActiveByHost != nil {
		return 0, m.Errors.CountActiveByHost
	}

	count := 0
	for _, data := range m.sessions {
		if data.HostID == hostID && !data.Status.IsTerminal() {
			count++
		}
	}
	return count, nil
}

// Stored returns the persisted state of a session, for assertions.
func (m *SessionRepository) Stored(id string) (model.SessionData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.sessions[id]
	return data, ok
}

func (m *SessionRepository) findLocked(id string) (*model.Session, error) {
	data, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return model.ReconstructSession(data, m.config), nil
}

// --- ItemRepository Mock ---

// ItemRepository is a mock implementation of repository.ItemRepository.
type ItemRepository struct {
	mu sync.RWMutex

	names map[string]string // itemType:itemID -> name

	Calls struct {
		FindName int
	}
	Errors struct {
		FindName error
	}
}

// NewItemRepository creates a new mock ItemRepository.
func NewItemRepository() *ItemRepository {
	return &ItemRepository{names: make(map[string]string)}
}

// AddItem seeds an item name.
func (m *ItemRepository) AddItem(itemType model.ItemType, itemID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[string(itemType)+":"+itemID] = name
}

func (m *ItemRepository) FindName(ctx context.Context, itemType model.ItemType, itemID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.Calls.FindName++

	if m.Errors.FindName != nil {
		return "", m.Errors.FindName
	}

	name, ok := m.names[string(itemType)+":"+itemID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return name, nil
}
