// Package server exposes the monitor over HTTP: JSON status endpoints for
// polling consumers and a WebSocket stream carrying live bus events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halcyon-app/netstate"
	"github.com/halcyon-app/netstate/internal/coordinator"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// Server wraps HTTP serving of the status API.
type Server struct {
	httpServer *http.Server
	svc        *netstate.Service
	logger     *slog.Logger
}

// New creates a configured HTTP server for the monitor service.
func New(addr string, svc *netstate.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		svc:        svc,
		logger:     logger.With("component", "server"),
	}

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/policy", s.handlePolicy)
	mux.HandleFunc("/api/check", s.handleCheck)
	mux.HandleFunc("/api/events", s.handleEvents)
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	s.logger.Info("status server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.svc.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":              s.svc.GetNetworkSummary(),
		"network":              s.svc.Network(),
		"state":                state,
		"is_offline":           s.svc.IsOffline(),
		"can_sync":             s.svc.CanSync(),
		"use_offline_queue":    s.svc.ShouldUseOfflineQueue(),
		"service_availability": s.svc.ServiceAvailability(),
		"backend_health":       s.svc.BackendHealth(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"history": s.svc.History(),
	})
}

func (s *Server) handlePolicy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CurrentPolicy())
}

// handleCheck triggers an interactive re-check with the short cache window.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := s.svc.ForceCheck(r.Context())
	if errors.Is(err, coordinator.ErrThrottled) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"state": state,
			"error": "re-check throttled, try again shortly",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

// handleEvents upgrades to WebSocket and streams bus events until the
// client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, events := s.svc.Bus().Subscribe()
	defer s.svc.Bus().Unsubscribe(id)

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed", "subscriber", id, "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
