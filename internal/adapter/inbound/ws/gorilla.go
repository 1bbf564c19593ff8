package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/platemate/platemate-server/internal/ratelimit"
)

// Handler upgrades HTTP requests to websocket connections and hands each
// one to a Client.
type Handler struct {
	base     context.Context
	hub      *Hub
	sessions SessionOps
	swipes   SwipeOps
	verifier TokenVerifier
	limiter  *ratelimit.Limiter
	config   ClientConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler. base bounds the lifetime of all
// connection-driven service calls; cancel it during shutdown.
func NewHandler(
	base context.Context,
	hub *Hub,
	sessions SessionOps,
	swipes SwipeOps,
	verifier TokenVerifier,
	limiter *ratelimit.Limiter,
	config ClientConfig,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		base:     base,
		hub:      hub,
		sessions: sessions,
		swipes:   swipes,
		verifier: verifier,
		limiter:  limiter,
		config:   config,
		logger:   logger.With().Str("component", "ws-handler").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth happens on the first frame; origin checks belong
			// to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	client := NewClient(h.base, h.hub, conn, h.sessions, h.swipes, h.verifier, h.limiter, h.config, h.logger)
	client.Start()
}
