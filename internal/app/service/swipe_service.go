package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/platemate/platemate-server/internal/domain/event"
	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/cache"
	"github.com/platemate/platemate-server/internal/port/outbound/messaging"
	"github.com/platemate/platemate-server/internal/port/outbound/repository"
)

// Item names change rarely; a long TTL keeps lookups off the catalog.
const itemNameTTL = 24 * time.Hour

// SwipeService records swipes and detects matches. A match forms the
// moment the number of distinct right-swipers on an item reaches the
// session's threshold; detection runs inline on the write path so the
// recording caller learns about the match it completed.
type SwipeService struct {
	sessions  *SessionService
	repo      repository.SessionRepository
	items     repository.ItemRepository
	cache     cache.Store
	publisher messaging.EventPublisher
	logger    zerolog.Logger
}

// NewSwipeService creates a new SwipeService.
func NewSwipeService(
	sessions *SessionService,
	repo repository.SessionRepository,
	items repository.ItemRepository,
	store cache.Store,
	publisher messaging.EventPublisher,
	logger zerolog.Logger,
) *SwipeService {
	return &SwipeService{
		sessions:  sessions,
		repo:      repo,
		items:     items,
		cache:     store,
		publisher: publisher,
		logger:    logger.With().Str("component", "swipe-service").Logger(),
	}
}

// RecordSwipe appends a swipe to the session's log and returns the match
// it completed, if any. Repeated swipes by the same user on the same item
// are recorded but never count twice toward the threshold.
func (s *SwipeService) RecordSwipe(
	ctx context.Context,
	sessionID, userID, itemID string,
	itemType model.ItemType,
	direction model.Direction,
) (*model.Swipe, *model.Match, *model.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := session.Validate(); err != nil {
		return nil, nil, nil, err
	}

	swipe, err := session.AppendSwipe(userID, itemType, itemID, direction)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.repo.AppendSwipe(ctx, sessionID, *swipe); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to append swipe: %w", err)
	}

	match := s.detectMatch(ctx, session, *swipe)

	s.invalidate(ctx, session)

	s.publish(ctx, event.NewSwipeRecorded(sessionID, *swipe))
	if match != nil {
		s.publish(ctx, event.NewMatchFound(sessionID, *match))
		s.logger.Info().
			Str("session_id", sessionID).
			Str("item_id", match.ItemID).
			Int("swipers", len(match.MatchedUsers)).
			Msg("match found")
	}

	return swipe, match, session, nil
}

// detectMatch evaluates the threshold after a swipe and persists the
// resulting match. The repository append is conditional on the item not
// already being matched, so concurrent swipes that race past the
// threshold produce exactly one match; the loser observes it as a
// non-match.
func (s *SwipeService) detectMatch(ctx context.Context, session *model.Session, swipe model.Swipe) *model.Match {
	if swipe.Direction != model.DirectionRight {
		return nil
	}
	if session.HasMatch(swipe.ItemType, swipe.ItemID) {
		return nil
	}

	swipers := session.DistinctRightSwipers(swipe.ItemType, swipe.ItemID)
	if len(swipers) < session.Config().MatchThreshold {
		return nil
	}

	name := s.itemName(ctx, swipe.ItemType, swipe.ItemID)
	match := session.AppendMatch(swipe.ItemType, swipe.ItemID, name, swipers)

	if err := s.repo.AppendMatch(ctx, session.ID(), match); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil
		}
		s.logger.Error().Err(err).
			Str("session_id", session.ID()).
			Str("item_id", swipe.ItemID).
			Msg("failed to persist match")
		return nil
	}

	return &match
}

// itemName resolves the display name for an item, cache-aside against the
// catalog. Resolution failure never blocks a match; the id stands in.
func (s *SwipeService) itemName(ctx context.Context, itemType model.ItemType, itemID string) string {
	var name string
	err := s.cache.GetOrSet(ctx, cache.ItemKey(itemType, itemID), itemNameTTL,
		func(ctx context.Context) (any, error) {
			return s.items.FindName(ctx, itemType, itemID)
		}, &name)
	if err != nil || name == "" {
		s.logger.Debug().Err(err).Str("item_id", itemID).Msg("item name unresolved")
		return itemID
	}
	return name
}

func (s *SwipeService) invalidate(ctx context.Context, session *model.Session) {
	s.cache.Delete(ctx, cache.SessionKey(session.ID()), cache.SessionCodeKey(session.Code()))
}

func (s *SwipeService) publish(ctx context.Context, evt event.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event", evt.EventType()).Msg("failed to publish event")
	}
}
