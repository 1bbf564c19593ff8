package model_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	domainerror "github.com/platemate/platemate-server/internal/domain/error"
	"github.com/platemate/platemate-server/internal/domain/model"
)

func newTestSession(t *testing.T) *model.Session {
	t.Helper()
	session, err := model.NewSession("host-1", "Alice", "ABC234", model.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session
}

func TestNewSession(t *testing.T) {
	t.Run("valid inputs", func(t *testing.T) {
		session := newTestSession(t)

		if session.ID() == "" {
			t.Error("session ID should not be empty")
		}
		if session.Code() != "ABC234" {
			t.Errorf("Code = %v, want ABC234", session.Code())
		}
		if session.HostID() != "host-1" {
			t.Errorf("HostID = %v, want host-1", session.HostID())
		}
		if session.Status() != model.StatusWaiting {
			t.Errorf("Status = %v, want %v", session.Status(), model.StatusWaiting)
		}
		if len(session.Participants()) != 1 {
			t.Fatalf("Participants = %d, want 1", len(session.Participants()))
		}
		host := session.Participants()[0]
		if host.UserID != "host-1" || host.DisplayName != "Alice" || !host.IsActive {
			t.Errorf("host participant = %+v", host)
		}
		if !session.ExpiresAt().After(time.Now()) {
			t.Error("ExpiresAt should be in the future")
		}
	})

	t.Run("empty host ID", func(t *testing.T) {
		_, err := model.NewSession("", "Alice", "ABC234", model.DefaultSessionConfig())
		if !errors.Is(err, domainerror.ErrUserIDRequired) {
			t.Fatalf("error = %v, want ErrUserIDRequired", err)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := model.NewSession("host-1", "Alice", "", model.DefaultSessionConfig())
		if !errors.Is(err, domainerror.ErrSessionCodeRequired) {
			t.Fatalf("error = %v, want ErrSessionCodeRequired", err)
		}
	})
}

func TestSessionJoin(t *testing.T) {
	t.Run("first join activates session", func(t *testing.T) {
		session := newTestSession(t)

		p, err := session.Join("user-2", "Bob")
		if err != nil {
			t.Fatalf("Join() error = %v", err)
		}
		if p.UserID != "user-2" || !p.IsActive {
			t.Errorf("participant = %+v", p)
		}
		if session.Status() != model.StatusActive {
			t.Errorf("Status = %v, want %v", session.Status(), model.StatusActive)
		}
		if len(session.Participants()) != 2 {
			t.Errorf("Participants = %d, want 2", len(session.Participants()))
		}
	})

	t.Run("rejoin is idempotent", func(t *testing.T) {
		session := newTestSession(t)
		if _, err := session.Join("user-2", "Bob"); err != nil {
			t.Fatalf("Join() error = %v", err)
		}
		if _, err := session.Leave("user-2"); err != nil {
			t.Fatalf("Leave() error = %v", err)
		}

		p, err := session.Join("user-2", "Bob")
		if err != nil {
			t.Fatalf("rejoin error = %v", err)
		}
		if !p.IsActive {
			t.Error("rejoined participant should be active")
		}
		if len(session.Participants()) != 2 {
			t.Errorf("Participants = %d, want 2", len(session.Participants()))
		}
	})

	t.Run("full session rejects and does not mutate", func(t *testing.T) {
		session := newTestSession(t)
		for i := 2; i <= 5; i++ {
			if _, err := session.Join(fmt.Sprintf("user-%d", i), "x"); err != nil {
				t.Fatalf("Join() error = %v", err)
			}
		}

		before := len(session.Participants())
		_, err := session.Join("user-6", "late")
		if !errors.Is(err, domainerror.ErrSessionFull) {
			t.Fatalf("error = %v, want ErrSessionFull", err)
		}
		if len(session.Participants()) != before {
			t.Error("failed join must not mutate participants")
		}

		// A prior participant can still rejoin at the cap.
		if _, err := session.Join("user-3", "x"); err != nil {
			t.Errorf("rejoin at cap error = %v", err)
		}
	})

	t.Run("completed session rejects join", func(t *testing.T) {
		session := newTestSession(t)
		if _, err := session.Leave("host-1"); err != nil {
			t.Fatalf("Leave() error = %v", err)
		}

		_, err := session.Join("user-2", "Bob")
		if !errors.Is(err, domainerror.ErrSessionCompleted) {
			t.Fatalf("error = %v, want ErrSessionCompleted", err)
		}
	})
}

func TestSessionLeave(t *testing.T) {
	t.Run("last active participant completes the session", func(t *testing.T) {
		session := newTestSession(t)
		if _, err := session.Join("user-2", "Bob"); err != nil {
			t.Fatalf("Join() error = %v", err)
		}

		completed, err := session.Leave("user-2")
		if err != nil {
			t.Fatalf("Leave() error = %v", err)
		}
		if completed {
			t.Error("session should not complete while the host is active")
		}
		if session.Status() != model.StatusActive {
			t.Errorf("Status = %v, want %v", session.Status(), model.StatusActive)
		}

		completed, err = session.Leave("host-1")
		if err != nil {
			t.Fatalf("Leave() error = %v", err)
		}
		if !completed {
			t.Error("last leave should complete the session")
		}
		if session.Status() != model.StatusCompleted {
			t.Errorf("Status = %v, want %v", session.Status(), model.StatusCompleted)
		}
	})

	t.Run("participants are never removed", func(t *testing.T) {
		session := newTestSession(t)
		if _, err := session.Join("user-2", "Bob"); err != nil {
			t.Fatalf("Join() error = %v", err)
		}
		if _, err := session.Leave("user-2"); err != nil {
			t.Fatalf("Leave() error = %v", err)
		}

		if len(session.Participants()) != 2 {
			t.Errorf("Participants = %d, want 2", len(session.Participants()))
		}
		if len(session.ActiveParticipants()) != 1 {
			t.Errorf("ActiveParticipants = %d, want 1", len(session.ActiveParticipants()))
		}
	})

	t.Run("non-participant", func(t *testing.T) {
		session := newTestSession(t)
		_, err := session.Leave("stranger")
		if !errors.Is(err, domainerror.ErrNotParticipant) {
			t.Fatalf("error = %v, want ErrNotParticipant", err)
		}
	})
}

func TestSessionAppendSwipe(t *testing.T) {
	session := newTestSession(t)
	if _, err := session.Join("user-2", "Bob"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	t.Run("valid swipe", func(t *testing.T) {
		swipe, err := session.AppendSwipe("user-2", model.ItemTypeRecipe, "r1", model.DirectionRight)
		if err != nil {
			t.Fatalf("AppendSwipe() error = %v", err)
		}
		if swipe.Timestamp.IsZero() {
			t.Error("swipe timestamp should be set")
		}
		if len(session.Swipes()) != 1 {
			t.Errorf("Swipes = %d, want 1", len(session.Swipes()))
		}
	})

	t.Run("invalid item type", func(t *testing.T) {
		_, err := session.AppendSwipe("user-2", model.ItemType("movie"), "m1", model.DirectionRight)
		if !errors.Is(err, domainerror.ErrInvalidItemType) {
			t.Fatalf("error = %v, want ErrInvalidItemType", err)
		}
	})

	t.Run("invalid direction", func(t *testing.T) {
		_, err := session.AppendSwipe("user-2", model.ItemTypeRecipe, "r1", model.Direction("up"))
		if !errors.Is(err, domainerror.ErrInvalidSwipe) {
			t.Fatalf("error = %v, want ErrInvalidSwipe", err)
		}
	})

	t.Run("non-participant", func(t *testing.T) {
		_, err := session.AppendSwipe("stranger", model.ItemTypeRecipe, "r1", model.DirectionRight)
		if !errors.Is(err, domainerror.ErrNotParticipant) {
			t.Fatalf("error = %v, want ErrNotParticipant", err)
		}
	})
}

func TestDistinctRightSwipers(t *testing.T) {
	session := newTestSession(t)
	if _, err := session.Join("user-2", "Bob"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	mustSwipe := func(userID, itemID string, dir model.Direction) {
		t.Helper()
		if _, err := session.AppendSwipe(userID, model.ItemTypeRecipe, itemID, dir); err != nil {
			t.Fatalf("AppendSwipe() error = %v", err)
		}
	}

	// The same user swiping right twice counts once.
	mustSwipe("host-1", "r1", model.DirectionRight)
	mustSwipe("host-1", "r1", model.DirectionRight)
	if got := session.DistinctRightSwipers(model.ItemTypeRecipe, "r1"); len(got) != 1 {
		t.Errorf("distinct swipers = %v, want 1", got)
	}

	// Left swipes never count.
	mustSwipe("user-2", "r1", model.DirectionLeft)
	if got := session.DistinctRightSwipers(model.ItemTypeRecipe, "r1"); len(got) != 1 {
		t.Errorf("distinct swipers = %v, want 1", got)
	}

	// Order follows first right-swipe.
	mustSwipe("user-2", "r1", model.DirectionRight)
	got := session.DistinctRightSwipers(model.ItemTypeRecipe, "r1")
	if len(got) != 2 || got[0] != "host-1" || got[1] != "user-2" {
		t.Errorf("distinct swipers = %v, want [host-1 user-2]", got)
	}

	// Different item tracked separately.
	if got := session.DistinctRightSwipers(model.ItemTypeRecipe, "r2"); len(got) != 0 {
		t.Errorf("distinct swipers for r2 = %v, want none", got)
	}
}

func TestSessionMatches(t *testing.T) {
	session := newTestSession(t)

	if session.HasMatch(model.ItemTypeRecipe, "r1") {
		t.Error("HasMatch should be false before any match")
	}

	match := session.AppendMatch(model.ItemTypeRecipe, "r1", "Carbonara", []string{"host-1", "user-2"})
	if match.ItemName != "Carbonara" {
		t.Errorf("ItemName = %v", match.ItemName)
	}
	if !session.HasMatch(model.ItemTypeRecipe, "r1") {
		t.Error("HasMatch should be true after AppendMatch")
	}
	if session.HasMatch(model.ItemTypeRestaurant, "r1") {
		t.Error("HasMatch must distinguish item types")
	}
}

func TestSessionAppendMessage(t *testing.T) {
	session := newTestSession(t)

	t.Run("valid message", func(t *testing.T) {
		msg, err := session.AppendMessage("host-1", "hello")
		if err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
		if msg.ID == "" {
			t.Error("message ID should be set")
		}
		if len(session.Messages()) != 1 {
			t.Errorf("Messages = %d, want 1", len(session.Messages()))
		}
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := session.AppendMessage("host-1", "")
		if !errors.Is(err, domainerror.ErrMessageEmpty) {
			t.Fatalf("error = %v, want ErrMessageEmpty", err)
		}
	})

	t.Run("too long", func(t *testing.T) {
		long := make([]byte, model.DefaultSessionConfig().MaxMessageLen+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err := session.AppendMessage("host-1", string(long))
		if !errors.Is(err, domainerror.ErrMessageTooLong) {
			t.Fatalf("error = %v, want ErrMessageTooLong", err)
		}
	})
}

func TestSessionExpiry(t *testing.T) {
	config := model.DefaultSessionConfig()
	config.SessionDuration = -time.Minute

	session, err := model.NewSession("host-1", "Alice", "ABC234", config)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if !session.IsExpired() {
		t.Error("session should be expired")
	}
	if err := session.Validate(); !errors.Is(err, domainerror.ErrSessionExpired) {
		t.Fatalf("Validate() = %v, want ErrSessionExpired", err)
	}
	if _, err := session.Join("user-2", "Bob"); !errors.Is(err, domainerror.ErrSessionExpired) {
		t.Fatalf("Join() = %v, want ErrSessionExpired", err)
	}

	if !session.MarkExpired() {
		t.Error("MarkExpired should transition a non-terminal session")
	}
	if session.Status() != model.StatusExpired {
		t.Errorf("Status = %v, want %v", session.Status(), model.StatusExpired)
	}
	if session.MarkExpired() {
		t.Error("MarkExpired on a terminal session should be a no-op")
	}
}

func TestReconstructSession(t *testing.T) {
	session := newTestSession(t)
	if _, err := session.Join("user-2", "Bob"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, err := session.AppendSwipe("user-2", model.ItemTypeRestaurant, "b1", model.DirectionRight); err != nil {
		t.Fatalf("AppendSwipe() error = %v", err)
	}

	rebuilt := model.ReconstructSession(session.Data(), model.DefaultSessionConfig())

	if rebuilt.ID() != session.ID() || rebuilt.Code() != session.Code() {
		t.Error("identity fields should survive reconstruction")
	}
	if rebuilt.Status() != session.Status() {
		t.Errorf("Status = %v, want %v", rebuilt.Status(), session.Status())
	}
	if len(rebuilt.Participants()) != 2 || len(rebuilt.Swipes()) != 1 {
		t.Error("collections should survive reconstruction")
	}
	if !rebuilt.HasParticipant("user-2") {
		t.Error("HasParticipant should hold after reconstruction")
	}
}
