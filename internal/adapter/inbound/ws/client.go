package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	domainerror "github.com/platemate/platemate-server/internal/domain/error"
	"github.com/platemate/platemate-server/internal/domain/model"
	"github.com/platemate/platemate-server/internal/port/outbound/cache"
	"github.com/platemate/platemate-server/internal/ratelimit"
)

// State is the connection lifecycle position. Transitions only move
// forward through authentication and are reversed by leave/disconnect.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateInSession
)

// Conn is the transport contract the client drives. *websocket.Conn
// satisfies it; tests substitute an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SessionOps is the session store surface the broadcaster drives.
type SessionOps interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Leave(ctx context.Context, id, userID string) (*model.Session, error)
	AddChatMessage(ctx context.Context, id, userID, text string) (*model.ChatMessage, *model.Session, error)
}

// SwipeOps is the swipe engine surface the broadcaster drives.
type SwipeOps interface {
	RecordSwipe(ctx context.Context, sessionID, userID, itemID string, itemType model.ItemType, direction model.Direction) (*model.Swipe, *model.Match, *model.Session, error)
}

// TokenVerifier verifies a bearer token and returns the subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// ClientConfig holds per-connection tuning.
type ClientConfig struct {
	AuthWait      time.Duration
	WriteWait     time.Duration
	PongWait      time.Duration
	PingPeriod    time.Duration
	MaxFrameBytes int64
	SendBuffer    int
	RateLimit     int64
	RateWindow    time.Duration
	OpTimeout     time.Duration
}

// DefaultClientConfig returns default connection configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		AuthWait:      10 * time.Second,
		WriteWait:     10 * time.Second,
		PongWait:      60 * time.Second,
		PingPeriod:    54 * time.Second,
		MaxFrameBytes: 16 * 1024,
		SendBuffer:    64,
		RateLimit:     30,
		RateWindow:    time.Minute,
		OpTimeout:     10 * time.Second,
	}
}

// Client drives a single websocket connection through the
// Unauthenticated -> Authenticated -> InSession state machine. All state
// fields are owned by the read pump; the write pump only drains send.
type Client struct {
	hub      *Hub
	conn     Conn
	sessions SessionOps
	swipes   SwipeOps
	verifier TokenVerifier
	limiter  *ratelimit.Limiter
	config   ClientConfig
	logger   zerolog.Logger

	base context.Context
	send chan Envelope
	// stop is closed by the hub (replacement or shutdown) to tear the
	// connection down. send itself is never closed; the read pump keeps
	// delivering into it until the pumps exit.
	stop chan struct{}

	state     State
	userID    string
	sessionID string
}

// NewClient wires a connection to the hub and services. Call Start to
// begin pumping.
func NewClient(
	base context.Context,
	hub *Hub,
	conn Conn,
	sessions SessionOps,
	swipes SwipeOps,
	verifier TokenVerifier,
	limiter *ratelimit.Limiter,
	config ClientConfig,
	logger zerolog.Logger,
) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		sessions: sessions,
		swipes:   swipes,
		verifier: verifier,
		limiter:  limiter,
		config:   config,
		logger:   logger.With().Str("component", "ws-client").Logger(),
		base:     base,
		send:     make(chan Envelope, config.SendBuffer),
		stop:     make(chan struct{}),
	}
}

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		if c.state != StateUnauthenticated {
			c.hub.Unregister(c)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxFrameBytes)
	// The first frame must authenticate within AuthWait.
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.AuthWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Str("user_id", c.userID).Msg("connection closed")
			}
			return
		}
		if !c.handleFrame(raw) {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.stop:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame processes one inbound frame. It returns false when the
// connection must close.
func (c *Client) handleFrame(raw []byte) bool {
	msg, err := Decode(raw)
	if err != nil {
		c.deliver(NewErrorEnvelope("MALFORMED_FRAME", err.Error()))
		// Before authentication a bad frame is fatal.
		return c.state != StateUnauthenticated
	}

	if c.state == StateUnauthenticated {
		auth, ok := msg.(AuthMessage)
		if !ok {
			c.deliver(NewErrorEnvelope(string(domainerror.CodeTokenInvalid), "first message must authenticate"))
			return false
		}
		return c.handleAuth(auth)
	}

	// Everything after authentication is rate limited per user.
	res := c.limiter.Check(c.base, cache.RateKey(c.userID), c.config.RateLimit, c.config.RateWindow)
	if !res.Allowed {
		c.deliver(NewErrorEnvelope(string(domainerror.CodeRateLimited), "rate limit exceeded"))
		return true
	}

	switch m := msg.(type) {
	case AuthMessage:
		// Already authenticated; ignore.
	case JoinSessionMessage:
		c.handleJoin(m.SessionID)
	case LeaveSessionMessage:
		c.handleLeaveSession()
	case SwipeMessage:
		c.handleSwipe(m)
	case ChatSendMessage:
		c.handleChat(m)
	}
	return true
}

func (c *Client) handleAuth(msg AuthMessage) bool {
	userID, err := c.verifier.Verify(msg.Token)
	if err != nil {
		c.deliverError(err)
		return false
	}

	c.userID = userID
	c.state = StateAuthenticated
	c.hub.Register(c)
	c.logger.Debug().Str("user_id", userID).Msg("connection authenticated")
	return true
}

func (c *Client) handleJoin(sessionID string) {
	if sessionID == "" {
		c.deliver(NewErrorEnvelope(string(domainerror.CodeSessionIDRequired), "sessionId is required"))
		return
	}

	ctx, cancel := c.opCtx()
	defer cancel()

	// Broadcast membership requires store-level membership first.
	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		c.deliverError(err)
		return
	}
	if !session.HasParticipant(c.userID) {
		c.deliverError(domainerror.ErrNotParticipant)
		return
	}

	c.hub.Join(sessionID, c.userID)
	c.state = StateInSession
	c.sessionID = sessionID

	// The joining connection gets a snapshot; everyone else a notification.
	c.deliver(NewEnvelope(TypeSessionUpdate, sessionID, c.userID, NewSessionView(session)))
	c.hub.BroadcastToSession(sessionID, c.userID, NewEnvelope(TypeJoinSession, sessionID, c.userID, JoinedPayload{
		DisplayName:  displayNameOf(session, c.userID),
		Participants: len(session.Participants()),
	}))
}

func (c *Client) handleLeaveSession() {
	if c.state != StateInSession {
		return
	}

	ctx, cancel := c.opCtx()
	defer cancel()

	sessionID := c.sessionID
	session, err := c.sessions.Leave(ctx, sessionID, c.userID)
	if err != nil {
		c.deliverError(err)
		return
	}

	completed := session.Status() == model.StatusCompleted
	c.hub.BroadcastToSession(sessionID, c.userID, NewEnvelope(TypeLeaveSession, sessionID, c.userID, LeftPayload{Completed: completed}))
	if completed {
		c.hub.BroadcastToSession(sessionID, c.userID, NewEnvelope(TypeSessionUpdate, sessionID, c.userID, NewSessionView(session)))
	}

	c.hub.Leave(c.userID)
	c.state = StateAuthenticated
	c.sessionID = ""
}

func (c *Client) handleSwipe(msg SwipeMessage) {
	if c.state != StateInSession {
		c.deliverError(domainerror.ErrNotParticipant)
		return
	}

	ctx, cancel := c.opCtx()
	defer cancel()

	swipe, match, _, err := c.swipes.RecordSwipe(ctx, c.sessionID, c.userID, msg.ItemID, msg.ItemType, msg.Direction)
	if err != nil {
		c.deliverError(err)
		return
	}

	// The swiper already knows their own swipe; matches go to everyone.
	c.hub.BroadcastToSession(c.sessionID, c.userID, NewEnvelope(TypeSwipe, c.sessionID, c.userID, SwipedPayload{
		ItemType:  swipe.ItemType,
		ItemID:    swipe.ItemID,
		Direction: swipe.Direction,
	}))
	if match != nil {
		c.hub.BroadcastToSession(c.sessionID, "", NewEnvelope(TypeMatchFound, c.sessionID, "", *match))
	}
}

func (c *Client) handleChat(msg ChatSendMessage) {
	if c.state != StateInSession {
		c.deliverError(domainerror.ErrNotParticipant)
		return
	}

	ctx, cancel := c.opCtx()
	defer cancel()

	chat, _, err := c.sessions.AddChatMessage(ctx, c.sessionID, c.userID, msg.Text)
	if err != nil {
		c.deliverError(err)
		return
	}

	// Chat is echoed to the sender as delivery confirmation.
	c.hub.BroadcastToSession(c.sessionID, "", NewEnvelope(TypeChatMessage, c.sessionID, c.userID, *chat))
}

// deliver enqueues a frame for this connection only, dropping it if the
// queue is full or the hub has torn the connection down.
func (c *Client) deliver(env Envelope) {
	select {
	case <-c.stop:
		return
	default:
	}
	select {
	case c.send <- env:
	default:
		hubDroppedFrames.Inc()
	}
}

func (c *Client) deliverError(err error) {
	var de *domainerror.Error
	if errors.As(err, &de) {
		c.deliver(NewErrorEnvelope(string(de.Code()), de.Message()))
		return
	}
	c.logger.Error().Err(err).Str("user_id", c.userID).Msg("operation failed")
	c.deliver(NewErrorEnvelope("INTERNAL", "internal error"))
}

func (c *Client) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.base, c.config.OpTimeout)
}

func displayNameOf(session *model.Session, userID string) string {
	for _, p := range session.Participants() {
		if p.UserID == userID {
			return p.DisplayName
		}
	}
	return ""
}
