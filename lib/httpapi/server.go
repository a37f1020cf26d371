// Copyright 2026 The Browsergrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi serves the control plane's HTTP surface: the public
// session API, the worker-facing internal API, and the realtime
// WebSocket endpoint. All business logic lives in the orchestrator;
// this package only decodes, dispatches, and encodes.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/browsergrid/browsergrid/lib/orchestrator"
	"github.com/browsergrid/browsergrid/lib/session"
)

// Config carries the server's dependencies.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}

// Server is the control-plane HTTP handler.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
	mux          *http.ServeMux
	realtime     map[string]realtimeHandler
}

// New builds the server and registers its routes and realtime message
// handlers.
func New(config Config) (*Server, error) {
	if config.Orchestrator == nil {
		return nil, fmt.Errorf("httpapi: orchestrator is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		orchestrator: config.Orchestrator,
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("GET /v1/realtime", s.handleRealtime)

	mux.HandleFunc("POST /internal/session-claim", s.handleClaim)
	mux.HandleFunc("POST /internal/session-release", s.handleRelease)
	mux.HandleFunc("POST /internal/workers/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /internal/sessions/{id}/connected", s.handleMarkConnected)

	mux.HandleFunc("GET /health", s.handleHealth)
	s.mux = mux

	s.realtime = map[string]realtimeHandler{
		messageKindConnect:    s.realtimeConnect,
		messageKindDisconnect: s.realtimeDisconnect,
	}
	return s, nil
}

// Handler returns the http.Handler for mounting in a server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request session.CreateRequest
	if err := decodeStrict(r.Body, &request); err != nil {
		s.writeError(w, err, "invalid session creation body")
		return
	}
	response, err := s.orchestrator.CreateSession(r.Context(), request)
	if err != nil {
		s.writeError(w, err, "session creation failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, response)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.orchestrator.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "session lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	err := s.orchestrator.EndSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "session end failed")
		return
	}
	s.writeJSON(w, http.StatusOK, session.EndResponse{Success: true})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var request session.ClaimRequest
	if err := decodeStrict(r.Body, &request); err != nil {
		s.writeError(w, err, "invalid claim body")
		return
	}
	response, err := s.orchestrator.Claim(r.Context(), request)
	if err != nil {
		s.writeError(w, err, "claim failed")
		return
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var request session.ReleaseRequest
	if err := decodeStrict(r.Body, &request); err != nil {
		s.writeError(w, err, "invalid release body")
		return
	}
	if err := s.orchestrator.ReleaseClaim(r.Context(), request); err != nil {
		s.writeError(w, err, "release failed")
		return
	}
	s.writeJSON(w, http.StatusOK, session.EndResponse{Success: true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var request session.HeartbeatRequest
	if err := decodeStrict(r.Body, &request); err != nil {
		s.writeError(w, err, "invalid heartbeat body")
		return
	}
	if err := s.orchestrator.Heartbeat(r.Context(), r.PathValue("id"), request); err != nil {
		s.writeError(w, err, "heartbeat failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkConnected(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.MarkConnected(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err, "connected report failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeStrict decodes a JSON body rejecting unknown fields, so shape
// mistakes surface as 400s at the boundary instead of zero values
// deeper in.
func decodeStrict(body io.Reader, v any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", session.ErrMalformedRequest, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, message string) {
	status := session.HTTPStatus(err)
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, session.ErrorBody{
		Error:   session.ErrorCode(err),
		Message: message,
	})
}
