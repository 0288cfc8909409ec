// Package gateway exposes the orchestration engine over HTTP and websocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/pokus/internal/actors"
	"github.com/dohr-michael/pokus/internal/events"
	"github.com/dohr-michael/pokus/internal/gateway/ws"
	"github.com/dohr-michael/pokus/internal/graph"
	"github.com/dohr-michael/pokus/internal/sessions"
	"github.com/dohr-michael/pokus/internal/tasks"
)

// Submitter runs one turn. *graph.Graph implements it.
type Submitter interface {
	Submit(ctx context.Context, sessionID, userID, content string) (*graph.TurnResult, error)
}

// Info is static metadata reported by /api/health.
type Info struct {
	Version     string
	LLMProvider string
	WebSearch   string
}

// Config holds the server dependencies.
type Config struct {
	Host        string
	Port        int
	Graph       Submitter
	Registry    *tasks.Registry
	Checkpoints sessions.Store
	Bus         *events.Bus
	Info        Info
}

// DefaultUserID is used when a message carries no user id.
const DefaultUserID = "anonymous"

var errEmptyContent = errors.New("content is required")

// Server is the pokus gateway HTTP server.
type Server struct {
	httpServer  *http.Server
	hub         *ws.Hub
	bus         *events.Bus
	graph       Submitter
	registry    *tasks.Registry
	checkpoints sessions.Store
	info        Info
	startedAt   time.Time
}

// NewServer creates a new gateway server.
func NewServer(cfg Config) *Server {
	s := &Server{
		bus:         cfg.Bus,
		graph:       cfg.Graph,
		registry:    cfg.Registry,
		checkpoints: cfg.Checkpoints,
		info:        cfg.Info,
		startedAt:   time.Now(),
	}
	s.hub = ws.NewHub(cfg.Bus, s)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/tasks", s.handleTasks)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleSessions)
		r.Get("/{id}", s.handleSession)
		r.Post("/{id}/messages", s.handleMessage)
	})
	r.Post("/api/messages", s.handleMessage)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("pokus gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// SendMessage runs one turn for a websocket client.
func (s *Server) SendMessage(ctx context.Context, p ws.SendMessageParams) (string, any, error) {
	res, err := s.submit(ctx, p.SessionID, p.UserID, p.Content)
	if err != nil {
		return p.SessionID, nil, err
	}
	return res.SessionID, res, nil
}

// ListTasks returns the task manifest for a websocket client.
func (s *Server) ListTasks(_ context.Context) (any, error) {
	return s.manifest(), nil
}

func (s *Server) submit(ctx context.Context, sessionID, userID, content string) (*graph.TurnResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errEmptyContent
	}
	if sessionID == "" {
		sessionID = sessions.NewSessionID()
	}
	if userID == "" {
		userID = DefaultUserID
	}
	return s.graph.Submit(ctx, sessionID, userID, content)
}

type manifestResponse struct {
	Tasks []tasks.ManifestEntry `json:"tasks"`
	Total int                   `json:"total"`
}

func (s *Server) manifest() manifestResponse {
	entries := s.registry.Manifest()
	if entries == nil {
		entries = []tasks.ManifestEntry{}
	}
	return manifestResponse{Tasks: entries, Total: len(entries)}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	registered, enabled := s.registry.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.info.Version,
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"tasks_registered": registered,
		"tasks_enabled":    enabled,
		"llm_provider":     s.info.LLMProvider,
		"web_search":       s.info.WebSearch,
		"ws_clients":       s.hub.Clients(),
		"events_dropped":   s.bus.Dropped(),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manifest())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var history []events.Event
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		history = s.bus.HistoryFor(sid, limit)
	} else {
		history = s.bus.History(limit)
	}
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.checkpoints.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []sessions.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cp, err := s.checkpoints.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.SessionID = id
	}

	res, err := s.submit(r.Context(), req.SessionID, req.UserID, req.Content)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			slog.Error("turn failed", "session_id", req.SessionID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps a turn error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errEmptyContent), errors.Is(err, sessions.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrPersistence), errors.Is(err, actors.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
