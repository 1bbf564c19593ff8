package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	domainerror "github.com/platemate/platemate-server/internal/domain/error"
	"github.com/platemate/platemate-server/internal/domain/event"
	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/cache"
	"github.com/platemate/platemate-server/internal/port/outbound/messaging"
	"github.com/platemate/platemate-server/internal/port/outbound/repository"
)

const (
	codeLength = 6

	// No I, L, O, 0, 1: codes are read aloud and typed on phones.
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// SessionServiceConfig holds session store tuning.
type SessionServiceConfig struct {
	Session           model.SessionConfig
	MaxActiveSessions int
	AggregateTTL      time.Duration
	ListTTL           time.Duration
}

// DefaultSessionServiceConfig returns default session store configuration.
func DefaultSessionServiceConfig() SessionServiceConfig {
	return SessionServiceConfig{
		Session:           model.DefaultSessionConfig(),
		MaxActiveSessions: 1,
		AggregateTTL:      10 * time.Minute,
		ListTTL:           5 * time.Minute,
	}
}

// SessionService is the cache-aside session store. Reads prefer the cache
// and fall back to the system-of-record; every mutation deletes the cached
// aggregate and its derived lookup keys before the caller observes success,
// so the next read repopulates from the authoritative write path. Deleting
// rather than overwriting matters: concurrent writers could otherwise leave
// a stale cached value behind.
type SessionService struct {
	repo      repository.SessionRepository
	cache     cache.Store
	publisher messaging.EventPublisher
	logger    zerolog.Logger
	config    SessionServiceConfig
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	repo repository.SessionRepository,
	store cache.Store,
	publisher messaging.EventPublisher,
	config SessionServiceConfig,
	logger zerolog.Logger,
) *SessionService {
	return &SessionService{
		repo:      repo,
		cache:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "session-store").Logger(),
		config:    config,
	}
}

// Config returns the session configuration in effect.
func (s *SessionService) Config() SessionServiceConfig { return s.config }

// Create opens a new WAITING session hosted by hostID. Hosts at their
// non-terminal session limit are rejected with TooManySessions.
func (s *SessionService) Create(ctx context.Context, hostID, hostName string) (*model.Session, error) {
	if hostID == "" {
		return nil, domainerror.ErrUserIDRequired
	}

	active, err := s.countActive(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if active >= s.config.MaxActiveSessions {
		return nil, domainerror.ErrTooManySessions
	}

	// Codes are drawn from a space large enough that collision over a
	// session's short lifetime is negligible; there is no liveness check.
	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session code: %w", err)
	}

	session, err := model.NewSession(hostID, hostName, code, s.config.Session)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	// Populate the aggregate, the by-code index, and the host's id list.
	s.cache.Set(ctx, cache.SessionKey(session.ID()), session.Data(), s.config.AggregateTTL)
	s.cache.Set(ctx, cache.SessionCodeKey(code), session.ID(), s.config.AggregateTTL)
	s.appendToUserList(ctx, hostID, session.ID())

	s.publish(ctx, event.NewSessionCreated(session.ID(), code, hostID))

	s.logger.Info().
		Str("session_id", session.ID()).
		Str("host_id", hostID).
		Msg("session created")

	return session, nil
}

// Get resolves a session by id, cache first. Sessions found past their
// expiry in a non-terminal state are observed as EXPIRED, and the
// transition is persisted opportunistically.
func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, domainerror.ErrSessionIDRequired
	}

	var data model.SessionData
	if s.cache.Get(ctx, cache.SessionKey(id), &data) {
		session := model.ReconstructSession(data, s.config.Session)
		return s.observeExpiry(ctx, session), nil
	}

	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerror.SessionNotFound(id)
		}
		return nil, err
	}

	session = s.observeExpiry(ctx, session)
	s.cache.Set(ctx, cache.SessionKey(id), session.Data(), s.config.AggregateTTL)
	return session, nil
}

// Join adds userID to the session identified by code. Rejoining is
// idempotent and never consumes a capacity slot.
func (s *SessionService) Join(ctx context.Context, code, userID, displayName string) (*model.Session, error) {
	if code == "" {
		return nil, domainerror.ErrSessionCodeRequired
	}
	if userID == "" {
		return nil, domainerror.ErrUserIDRequired
	}

	session, err := s.resolveByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// Join targets WAITING/ACTIVE sessions only; a completed session is
	// indistinguishable from an unknown code to the caller.
	if err := session.Validate(); err != nil {
		if errors.Is(err, domainerror.ErrSessionExpired) {
			return nil, domainerror.ErrSessionExpired
		}
		return nil, domainerror.SessionNotFoundByCode(code)
	}

	rejoined := session.HasParticipant(userID)

	participant, err := session.Join(userID, displayName)
	if err != nil {
		return nil, err
	}

	if rejoined {
		if err := s.repo.SetParticipantActive(ctx, session.ID(), userID, true); err != nil {
			return nil, fmt.Errorf("failed to reactivate participant: %w", err)
		}
	} else {
		if err := s.repo.AppendParticipant(ctx, session.ID(), *participant, session.Status()); err != nil {
			return nil, fmt.Errorf("failed to append participant: %w", err)
		}
	}

	s.invalidate(ctx, session, userID)
	s.publish(ctx, event.NewParticipantJoined(session.ID(), userID, displayName, rejoined))

	return session, nil
}

// Leave marks the participant inactive. When the last active participant
// leaves, the session completes.
func (s *SessionService) Leave(ctx context.Context, id, userID string) (*model.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	completed, err := session.Leave(userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetParticipantActive(ctx, id, userID, false); err != nil {
		return nil, fmt.Errorf("failed to deactivate participant: %w", err)
	}
	if completed {
		if err := s.repo.SetStatus(ctx, id, model.StatusCompleted); err != nil {
			return nil, fmt.Errorf("failed to complete session: %w", err)
		}
	}

	// Invalidated whether or not a status transition occurred.
	s.invalidate(ctx, session, userID)
	s.publish(ctx, event.NewParticipantLeft(id, userID, completed))

	return session, nil
}

// AddChatMessage appends a chat message to the session.
func (s *SessionService) AddChatMessage(ctx context.Context, id, userID, text string) (*model.ChatMessage, *model.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	msg, err := session.AppendMessage(userID, text)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.AppendMessage(ctx, id, *msg); err != nil {
		return nil, nil, fmt.Errorf("failed to append message: %w", err)
	}

	s.invalidate(ctx, session, userID)
	s.publish(ctx, event.NewChatMessageSent(id, *msg))

	return msg, session, nil
}

// ListForUser returns all sessions the user participated in, resolving the
// cached per-user id list first.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]*model.Session, error) {
	if userID == "" {
		return nil, domainerror.ErrUserIDRequired
	}

	var ids []string
	if s.cache.Get(ctx, cache.UserSessionsKey(userID), &ids) {
		sessions := make([]*model.Session, 0, len(ids))
		for _, id := range ids {
			session, err := s.Get(ctx, id)
			if err != nil {
				if domainerror.KindOf(err) == domainerror.KindNotFound {
					continue
				}
				return nil, err
			}
			sessions = append(sessions, session)
		}
		return sessions, nil
	}

	sessions, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	ids = make([]string, 0, len(sessions))
	for i, session := range sessions {
		sessions[i] = s.observeExpiry(ctx, session)
		ids = append(ids, session.ID())
	}
	s.cache.Set(ctx, cache.UserSessionsKey(userID), ids, s.config.ListTTL)

	return sessions, nil
}

// IsParticipant reports whether userID ever joined the session. Used by
// the broadcaster to authorize connection-level session joins.
func (s *SessionService) IsParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.HasParticipant(userID), nil
}

// resolveByCode resolves code -> id -> aggregate, cache first at each step,
// backfilling the cache on every fallback.
func (s *SessionService) resolveByCode(ctx context.Context, code string) (*model.Session, error) {
	var id string
	if s.cache.Get(ctx, cache.SessionCodeKey(code), &id) {
		session, err := s.Get(ctx, id)
		if err == nil {
			return session, nil
		}
		if domainerror.KindOf(err) != domainerror.KindNotFound {
			return nil, err
		}
		// Stale code mapping; fall through to the system-of-record.
	}

	session, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerror.SessionNotFoundByCode(code)
		}
		return nil, err
	}

	session = s.observeExpiry(ctx, session)
	s.cache.Set(ctx, cache.SessionCodeKey(code), session.ID(), s.config.AggregateTTL)
	s.cache.Set(ctx, cache.SessionKey(session.ID()), session.Data(), s.config.AggregateTTL)
	return session, nil
}

// observeExpiry applies lazy time-based expiry to a freshly loaded session.
func (s *SessionService) observeExpiry(ctx context.Context, session *model.Session) *model.Session {
	if session.Status().IsTerminal() || !session.IsExpired() {
		return session
	}

	session.MarkExpired()
	if err := s.repo.SetStatus(ctx, session.ID(), model.StatusExpired); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID()).Msg("failed to persist expiry")
	}
	s.cache.Delete(ctx, cache.SessionKey(session.ID()), cache.SessionCodeKey(session.Code()))
	return session
}

// countActive counts the host's non-terminal sessions, cache-first with a
// system-of-record fallback.
func (s *SessionService) countActive(ctx context.Context, hostID string) (int, error) {
	var ids []string
	if s.cache.Get(ctx, cache.UserSessionsKey(hostID), &ids) {
		count := 0
		for _, id := range ids {
			session, err := s.Get(ctx, id)
			if err != nil {
				if domainerror.KindOf(err) == domainerror.KindNotFound {
					continue
				}
				return 0, err
			}
			if session.HostID() == hostID && !session.Status().IsTerminal() {
				count++
			}
		}
		return count, nil
	}

	count, err := s.repo.CountActiveByHost(ctx, hostID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// invalidate deletes the cached aggregate and derived lookup keys.
func (s *SessionService) invalidate(ctx context.Context, session *model.Session, userIDs ...string) {
	keys := []string{
		cache.SessionKey(session.ID()),
		cache.SessionCodeKey(session.Code()),
	}
	for _, userID := range userIDs {
		keys = append(keys, cache.UserSessionsKey(userID))
	}
	s.cache.Delete(ctx, keys...)
}

// appendToUserList appends a session id to the cached per-user list. The
// list is a lazily recomputed view; a miss here is repopulated on read.
func (s *SessionService) appendToUserList(ctx context.Context, userID, sessionID string) {
	var ids []string
	if !s.cache.Get(ctx, cache.UserSessionsKey(userID), &ids) {
		return
	}
	s.cache.Set(ctx, cache.UserSessionsKey(userID), append(ids, sessionID), s.config.ListTTL)
}

// publish sends a domain event; failures are logged, never surfaced.
func (s *SessionService) publish(ctx context.Context, evt event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event", evt.EventType()).Msg("failed to publish event")
	}
}

// generateCode returns a fixed-length random code from the unambiguous
// alphabet.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
