// Package server exposes scrape sessions over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/ao3-wrapped/models"
	"github.com/aluiziolira/ao3-wrapped/session"
)

const maxBodyBytes = 1 << 16

type startRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Consent  bool   `json:"consent"`
}

type startResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server routes the start and progress endpoints to a session manager.
type Server struct {
	manager  *session.Manager
	registry *prometheus.Registry
	mux      *http.ServeMux
}

// New builds the HTTP handler. registry may be nil to disable /metrics.
func New(manager *session.Manager, registry *prometheus.Registry) *Server {
	s := &Server{
		manager:  manager,
		registry: registry,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/start-scrape", s.handleStart)
	s.mux.HandleFunc("GET /api/scrape-progress", s.handleProgress)
	s.mux.HandleFunc("GET /api/scrape-progress/{id}", s.handleProgressByID)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP applies CORS headers and dispatches to the routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" || !req.Consent {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Username, password, and consent required"})
		return
	}

	run, err := s.manager.Start(models.Credentials{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	})
	if errors.Is(err, session.ErrInFlight) {
		writeJSON(w, http.StatusConflict, errorResponse{Detail: "A scrape is already in progress"})
		return
	}
	if err != nil {
		slog.Error("start scrape", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "could not start scrape"})
		return
	}

	writeJSON(w, http.StatusOK, startResponse{Status: "scrape_started", SessionID: run.ID})
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Current())
}

func (s *Server) handleProgressByID(w http.ResponseWriter, r *http.Request) {
	state, ok := s.manager.Lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write response", slog.Any("error", err))
	}
}
