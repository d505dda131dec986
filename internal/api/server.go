// Package api exposes the orchestrator over HTTP: a request/response
// chat endpoint, a websocket variant for interactive clients, session
// management, and health/usage introspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ndelin/parley/internal/agent"
	"github.com/ndelin/parley/internal/buildinfo"
	"github.com/ndelin/parley/internal/usage"
)

// Chatter is the orchestrator surface the server needs.
type Chatter interface {
	Handle(ctx context.Context, req agent.Request) agent.Result
	Clear(ctx context.Context, provider, conversation string) error
}

// UsageReader reports accumulated usage totals. Optional.
type UsageReader interface {
	Totals(ctx context.Context) (usage.Summary, error)
}

// Pinger probes backend reachability for the health endpoint. Optional.
type Pinger interface {
	PingAll(ctx context.Context) map[string]error
}

// Server is the HTTP front end.
type Server struct {
	chatter Chatter
	usage   UsageReader
	pinger  Pinger
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates a server bound to addr. usageReader and pinger may be nil;
// the corresponding endpoints then report 404 and skip provider probes.
func New(addr string, chatter Chatter, usageReader UsageReader, pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		chatter: chatter,
		usage:   usageReader,
		pinger:  pinger,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	mux.HandleFunc("POST /api/sessions/clear", s.handleClear)
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the listener until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result := s.chatter.Handle(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

type clearRequest struct {
	Provider     string `json:"provider,omitempty"`
	Conversation string `json:"conversation,omitempty"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.chatter.Clear(r.Context(), req.Provider, req.Conversation); err != nil {
		s.logger.Error("session clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusNotFound, "usage tracking not enabled")
		return
	}

	totals, err := s.usage.Totals(r.Context())
	if err != nil {
		s.logger.Error("usage totals failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// handleHealth always answers 200; degraded providers are reported in
// the body so monitoring can distinguish "down" from "up but impaired".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().String(),
	}

	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		providers := make(map[string]string)
		for name, err := range s.pinger.PingAll(ctx) {
			if err != nil {
				providers[name] = err.Error()
				body["status"] = "degraded"
			} else {
				providers[name] = "ok"
			}
		}
		body["providers"] = providers
	}

	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
