package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JamesPrial/mcp-registry-gateway/internal/transport"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// Components whose log level can be inspected and changed at runtime
var Components = []string{
	"main",
	"admin",
	"dispatcher",
	"eventlog",
	"mailbox",
	"notify",
	"registry",
	"storage",
	"transport.http",
	"transport.stdio",
}

// Pinger reports whether the record store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionLister reports the open push sessions
type SessionLister interface {
	Count() int
	Snapshot() []transport.SessionInfo
	GetSession(sessionID string) (*transport.Session, bool)
}

// AdminServer provides health, metrics, runtime log-level and registry write endpoints
type AdminServer struct {
	store     Pinger
	sessions  SessionLister
	registrar Registrar
	version   string
	started   time.Time
	logger    *slog.Logger
	router    chi.Router
}

// NewAdminServer creates a new admin server; sessions may be nil
func NewAdminServer(store Pinger, sessions SessionLister, version string) *AdminServer {
	a := &AdminServer{
		store:    store,
		sessions: sessions,
		version:  version,
		started:  time.Now(),
		logger:   logging.GetGlobalLogger("admin"),
	}
	r := chi.NewRouter()
	a.Register(r)
	a.router = r
	return a
}

// Register installs /health, /metrics and the /admin routes on r
func (a *AdminServer) Register(r chi.Router) {
	r.Get("/health", a.handleHealth)
	r.Get("/metrics", a.handleMetrics)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/log-level", a.getLogLevel)
		r.Post("/log-level", a.setLogLevel)
		r.Get("/log-levels", a.handleLogLevels)
		r.Get("/sessions", a.handleSessions)
		r.Get("/sessions/{id}", a.handleSession)
		r.Post("/servers", a.registerServer)
		r.Post("/servers/{name}/status", a.updateServerStatus)
	})
}

// ServeHTTP implements http.Handler
func (a *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Server   string `json:"server"`
	Version  string `json:"version"`
	Store    string `json:"store"`
	Sessions int    `json:"sessions"`
	UptimeMs int64  `json:"uptimeMs"`
	Error    string `json:"error,omitempty"`
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:   "healthy",
		Server:   "mcp-registry-gateway",
		Version:  a.version,
		Store:    "ok",
		UptimeMs: time.Since(a.started).Milliseconds(),
	}
	if a.sessions != nil {
		response.Sessions = a.sessions.Count()
	}

	status := http.StatusOK
	if a.store != nil {
		if err := a.store.Ping(ctx); err != nil {
			a.logger.WarnContext(ctx, "Health check failed", slog.String("error", err.Error()))
			response.Status = "unhealthy"
			response.Store = "unavailable"
			response.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, response)
}

func (a *AdminServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	logging.GetGlobalMetricsCollector().Handler().ServeHTTP(w, r)
}

// LogLevelRequest represents a log level change request
type LogLevelRequest struct {
	Component string `json:"component"`
	Level     string `json:"level"`
}

// LogLevelResponse represents a log level response
type LogLevelResponse struct {
	Component string `json:"component"`
	Level     string `json:"level"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

func (a *AdminServer) getLogLevel(w http.ResponseWriter, r *http.Request) {
	component := r.URL.Query().Get("component")
	if component == "" {
		component = "default"
	}

	writeJSON(w, http.StatusOK, LogLevelResponse{
		Component: component,
		Level:     string(logging.GlobalLevel(component)),
		Success:   true,
	})
}

func (a *AdminServer) setLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, LogLevelResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid JSON: %v", err),
		})
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, LogLevelResponse{
			Component: req.Component,
			Success:   false,
			Message:   fmt.Sprintf("Invalid log level '%s'. Must be one of: debug, info, warn, error", req.Level),
		})
		return
	}

	component := req.Component
	if component == "" {
		component = "default"
	}
	logging.UpdateGlobalLevel(component, level)

	a.logger.InfoContext(r.Context(), "Log level updated",
		slog.String("component", component),
		slog.String("level", string(level)),
	)

	writeJSON(w, http.StatusOK, LogLevelResponse{
		Component: component,
		Level:     string(level),
		Success:   true,
		Message:   fmt.Sprintf("Log level for component '%s' updated to '%s'", component, level),
	})
}

func (a *AdminServer) handleLogLevels(w http.ResponseWriter, _ *http.Request) {
	levels := make(map[string]string, len(Components)+1)
	levels["default"] = string(logging.GlobalLevel("default"))
	for _, c := range Components {
		levels[c] = string(logging.GlobalLevel(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": levels})
}

func (a *AdminServer) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := []transport.SessionInfo{}
	if a.sessions != nil {
		sessions = a.sessions.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (a *AdminServer) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.sessions != nil {
		if s, ok := a.sessions.GetSession(id); ok {
			writeJSON(w, http.StatusOK, s.Info())
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("session %q not found", id),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
