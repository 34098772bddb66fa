// Package monitor serves the gate dashboard: status and event polling
// endpoints, manual gate controls, the camera relay stream, and stored
// violation snapshots.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safesite-labs/ppe-gate-monitor/internal/auth"
	"github.com/safesite-labs/ppe-gate-monitor/internal/camera"
	"github.com/safesite-labs/ppe-gate-monitor/internal/config"
	"github.com/safesite-labs/ppe-gate-monitor/internal/eventlog"
	"github.com/safesite-labs/ppe-gate-monitor/internal/watcher"
)

// Server serves the dashboard endpoints.
type Server struct {
	cfg     config.Config
	watcher *watcher.Watcher
	auth    *auth.Manager
	camera  camera.Source
}

// NewServer returns a configured dashboard server.
func NewServer(cfg config.Config, w *watcher.Watcher, am *auth.Manager, cam camera.Source) *Server {
	if cfg.MJPEGInterval <= 0 {
		cfg.MJPEGInterval = config.DefaultConfig().MJPEGInterval
	}
	return &Server{
		cfg:     cfg,
		watcher: w,
		auth:    am,
		camera:  cam,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)
	r.Get("/stream", s.handleStream)
	r.Get("/api/status/stream", s.handleStatusStream)
	r.Get("/api/events/stream", s.handleEventsStream)
	r.Get("/violations/{name}", s.handleViolation)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Post("/control/relay", s.handleControlRelay)
		r.Post("/control/restore", s.handleControlRestore)
	})

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.watcher.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, reversed(s.watcher.Events()))
}

func (s *Server) handleControlRelay(w http.ResponseWriter, r *http.Request) {
	state, err := s.watcher.ToggleRelay(auth.UserFromContext(r.Context()))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"relay":           state,
		"override_active": true,
	})
}

func (s *Server) handleControlRestore(w http.ResponseWriter, r *http.Request) {
	s.watcher.Restore(auth.UserFromContext(r.Context()))
	writeJSON(w, map[string]any{
		"relay":           s.watcher.Status().Relay,
		"override_active": false,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid login data"}, http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSONWithStatus(w, map[string]any{"error": "Invalid credentials"}, http.StatusUnauthorized)
			return
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"token": token})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	streamMJPEG(w, r, s.cfg.MJPEGInterval.Std(), s.camera.Frame)
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, 3*time.Second, func() any {
		return s.watcher.Status()
	})
}

func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, 5*time.Second, func() any {
		return reversed(s.watcher.Events())
	})
}

// reversed returns the activity log newest first for display.
func reversed(entries []eventlog.Entry) []eventlog.Entry {
	out := make([]eventlog.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
