package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Host        string
	Port        int
	ReadTimeout time.Duration
}

// HealthFunc reports liveness detail for the health endpoint.
type HealthFunc func(ctx context.Context) map[string]any

// Server hosts the websocket upgrade endpoint alongside the metrics and
// health surfaces.
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	listener   net.Listener
	logger     zerolog.Logger
}

// NewServer wires the websocket handler and operational endpoints into a
// single HTTP server.
func NewServer(config ServerConfig, wsHandler http.Handler, health HealthFunc, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(health))

	return &Server{
		config: config,
		httpServer: &http.Server{
			Handler:     mux,
			ReadTimeout: config.ReadTimeout,
		},
		logger: logger.With().Str("component", "http-server").Logger(),
	}
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.logger.Info().Str("address", addr).Msg("http server starting")

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, forcing closure when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("http server stopping")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("graceful shutdown expired, forcing close")
		return s.httpServer.Close()
	}

	s.logger.Info().Msg("http server stopped gracefully")
	return nil
}

// Address returns the server's listening address.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func healthHandler(health HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(health(r.Context()))
	}
}
