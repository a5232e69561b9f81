// Package server exposes the HTTP surface: WebSocket upgrades, the login
// endpoint, and the health check.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roomrelay/roomrelay/internal/config"
	"github.com/roomrelay/roomrelay/internal/metrics"
	"github.com/roomrelay/roomrelay/internal/relay"
)

// Server bundles the HTTP handlers with their dependencies: configuration,
// the hub, and the identities issued by the login endpoint.
type Server struct {
	cfg      *config.Config
	hub      *Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader

	usersMu sync.Mutex
	users   map[string]relay.UserIdentity // username -> issued identity
}

// New creates the HTTP server surface around a hub.
func New(cfg *config.Config, hub *Hub, log zerolog.Logger) *Server {
	checker := newOriginChecker(cfg.AllowedOrigins, log)
	return &Server{
		cfg: cfg,
		hub: hub,
		log: log.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checker.check,
		},
		users: make(map[string]relay.UserIdentity),
	}
}

// handleWebSocket upgrades the HTTP connection, creates a Client, and hands
// it to the hub, which registers it with the relay and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg, s.log)
	s.hub.RegisterClient(client)
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	User relay.UserIdentity `json:"user"`
}

// handleLogin issues an opaque identity for a username. A username that
// already logged in gets its existing identity back; new usernames beyond
// the configured cap are rejected.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	s.usersMu.Lock()
	identity, exists := s.users[req.Username]
	if !exists {
		if s.cfg.MaxUsers > 0 && len(s.users) >= s.cfg.MaxUsers {
			s.usersMu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "maximum user limit reached"})
			return
		}
		identity = relay.UserIdentity{ID: uuid.NewString(), DisplayName: req.Username}
		s.users[req.Username] = identity
		metrics.LoginsTotal.Inc()
	}
	s.usersMu.Unlock()

	s.log.Info().Str("username", req.Username).Msg("user logged in")
	writeJSON(w, http.StatusOK, loginResponse{User: identity})
}

// handleHealth provides a simple health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
