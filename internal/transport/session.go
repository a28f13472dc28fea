package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JamesPrial/mcp-registry-gateway/internal/eventlog"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// SessionState is a push connection's lifecycle stage
type SessionState int32

const (
	StateOpening SessionState = iota
	StateReplaying
	StateLive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateReplaying:
		return "replaying"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SessionKind distinguishes the RPC gateway stream from a plain event subscription
type SessionKind string

const (
	KindGateway SessionKind = "gateway"
	KindEvents  SessionKind = "events"
)

// Close reasons carried by the close event and the session metrics
const (
	CloseReasonQuota      = "quota_exceeded"
	CloseReasonShutdown   = "server_shutdown"
	CloseReasonDisconnect = "client_disconnect"
	CloseReasonWriteError = "write_error"
)

// Session is the in-memory state of one open push connection. It is owned by the
// goroutine serving the connection; only State and Info are safe to call elsewhere.
type Session struct {
	ID            string
	Kind          SessionKind
	CorrelationID string
	Filter        eventlog.TypeFilter
	CreatedAt     time.Time

	state atomic.Int32

	// cursor is the timestamp of the newest delivered event, or the requested since
	cursor    time.Time
	delivered map[string]time.Time
}

// NewSession starts a session in the opening state
func NewSession(kind SessionKind, correlationID string, since time.Time, filter eventlog.TypeFilter) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Kind:          kind,
		CorrelationID: correlationID,
		Filter:        filter,
		CreatedAt:     time.Now(),
		cursor:        since.UTC(),
		delivered:     make(map[string]time.Time),
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Cursor is the resume point a client should reconnect with
func (s *Session) Cursor() time.Time {
	return s.cursor
}

// markDelivered records e unless it was already sent; it reports whether e is new
func (s *Session) markDelivered(e mcp.ChangeEvent) bool {
	if _, seen := s.delivered[e.ID]; seen {
		return false
	}
	s.delivered[e.ID] = e.Timestamp
	if e.Timestamp.After(s.cursor) {
		s.cursor = e.Timestamp.UTC()
	}
	return true
}

// seen reports whether id was delivered without recording anything
func (s *Session) seen(id string) bool {
	_, ok := s.delivered[id]
	return ok
}

// pruneDelivered forgets ids older than the cursor; replays from the cursor never return them
func (s *Session) pruneDelivered() {
	for id, ts := range s.delivered {
		if ts.Before(s.cursor) {
			delete(s.delivered, id)
		}
	}
}

// SessionInfo is a read-only snapshot for health and admin endpoints
type SessionInfo struct {
	ID            string      `json:"id"`
	Kind          SessionKind `json:"kind"`
	CorrelationID string      `json:"correlationId,omitempty"`
	State         string      `json:"state"`
	AgeMs         int64       `json:"ageMs"`
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:            s.ID,
		Kind:          s.Kind,
		CorrelationID: s.CorrelationID,
		State:         s.State().String(),
		AgeMs:         time.Since(s.CreatedAt).Milliseconds(),
	}
}

// SessionManager tracks the open sessions of one transport
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

func (sm *SessionManager) Add(s *Session) {
	sm.mu.Lock()
	sm.sessions[s.ID] = s
	sm.mu.Unlock()
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[sessionID]
	return s, ok
}

// RemoveSession removes a session
func (sm *SessionManager) RemoveSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Snapshot lists every open session
func (sm *SessionManager) Snapshot() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Info())
	}
	return out
}
