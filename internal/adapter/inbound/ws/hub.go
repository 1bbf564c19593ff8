package ws

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	hubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "platemate",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Live websocket connections registered with the hub.",
	})
	hubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "platemate",
		Subsystem: "ws",
		Name:      "dropped_frames_total",
		Help:      "Outbound frames dropped because a client send queue was full.",
	})
)

type membership struct {
	sessionID string
	userID    string
}

type broadcastReq struct {
	sessionID string
	exclude   string
	env       Envelope
}

// Hub indexes live connections by user and tracks which users are wired
// into which session's broadcast group. All maps are owned by the Run
// loop; every mutation and read arrives over a channel, so no locking is
// needed and delivery order per connection follows enqueue order.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	broadcast  chan broadcastReq

	byUser      map[string]*Client
	sessions    map[string]map[string]struct{}
	userSession map[string]string

	logger zerolog.Logger
	done   chan struct{}
}

// NewHub creates a hub. Call Run before registering connections.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		join:        make(chan membership),
		leave:       make(chan membership),
		broadcast:   make(chan broadcastReq, 64),
		byUser:      make(map[string]*Client),
		sessions:    make(map[string]map[string]struct{}),
		userSession: make(map[string]string),
		logger:      logger.With().Str("component", "ws-hub").Logger(),
		done:        make(chan struct{}),
	}
}

// Run processes hub commands until ctx is cancelled, then closes every
// registered connection's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.byUser {
				close(c.stop)
			}
			h.byUser = make(map[string]*Client)
			h.sessions = make(map[string]map[string]struct{})
			h.userSession = make(map[string]string)
			hubConnections.Set(0)
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case m := <-h.join:
			h.handleJoin(m)
		case m := <-h.leave:
			h.handleLeave(m.userID)
		case req := <-h.broadcast:
			h.handleBroadcast(req)
		}
	}
}

// Register indexes an authenticated connection by its user id.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister drops a connection and prunes its session membership.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join adds the user to a session's broadcast group.
func (h *Hub) Join(sessionID, userID string) {
	select {
	case h.join <- membership{sessionID: sessionID, userID: userID}:
	case <-h.done:
	}
}

// Leave removes the user from its session's broadcast group.
func (h *Hub) Leave(userID string) {
	select {
	case h.leave <- membership{userID: userID}:
	case <-h.done:
	}
}

// BroadcastToSession pushes a frame to every member of the session's
// broadcast group, skipping excludeUserID when non-empty.
func (h *Hub) BroadcastToSession(sessionID, excludeUserID string, env Envelope) {
	select {
	case h.broadcast <- broadcastReq{sessionID: sessionID, exclude: excludeUserID, env: env}:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(c *Client) {
	// A reconnecting user replaces their previous connection.
	if prev, ok := h.byUser[c.userID]; ok && prev != c {
		h.dropLocked(prev)
	}
	h.byUser[c.userID] = c
	hubConnections.Set(float64(len(h.byUser)))
}

func (h *Hub) handleUnregister(c *Client) {
	if current, ok := h.byUser[c.userID]; !ok || current != c {
		return
	}
	h.dropLocked(c)
	hubConnections.Set(float64(len(h.byUser)))
}

// dropLocked removes the client from the indexes and signals its pumps to
// shut down. send stays open: the replaced connection's read pump may
// still be delivering, and only it may close its own resources.
func (h *Hub) dropLocked(c *Client) {
	delete(h.byUser, c.userID)
	h.handleLeave(c.userID)
	close(c.stop)
}

func (h *Hub) handleJoin(m membership) {
	// A user belongs to at most one broadcast group at a time.
	h.handleLeave(m.userID)

	members, ok := h.sessions[m.sessionID]
	if !ok {
		members = make(map[string]struct{})
		h.sessions[m.sessionID] = members
	}
	members[m.userID] = struct{}{}
	h.userSession[m.userID] = m.sessionID
}

func (h *Hub) handleLeave(userID string) {
	sessionID, ok := h.userSession[userID]
	if !ok {
		return
	}
	delete(h.userSession, userID)

	members := h.sessions[sessionID]
	delete(members, userID)
	if len(members) == 0 {
		delete(h.sessions, sessionID)
	}
}

func (h *Hub) handleBroadcast(req broadcastReq) {
	for userID := range h.sessions[req.sessionID] {
		if userID == req.exclude {
			continue
		}
		c, ok := h.byUser[userID]
		if !ok {
			continue
		}
		select {
		case <-c.stop:
			continue
		default:
		}
		select {
		case c.send <- req.env:
		default:
			// Slow consumer; the frame is dropped rather than the loop
			// blocked. The connection is pruned when its pumps notice.
			hubDroppedFrames.Inc()
			h.logger.Warn().
				Str("user_id", userID).
				Str("session_id", req.sessionID).
				Msg("send queue full, frame dropped")
		}
	}
}
