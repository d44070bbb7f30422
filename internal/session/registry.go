// ABOUTME: In-memory registry mapping connected users to their live connections
// ABOUTME: Central presence table used by the dispatcher for per-user and per-role fan-out

package session

import (
	"log/slog"
	"sync"
)

// Conn is the send capability of a live bidirectional connection. The concrete
// transport lives in the gateway package; the registry and dispatcher only
// need to emit named events on it.
type Conn interface {
	// Emit sends one named event with a JSON-serializable payload.
	Emit(event string, payload any) error
	// Close tears down the underlying transport.
	Close() error
}

// Session binds a connected user to their live connection. The role is cached
// at handshake time so role fan-out never re-queries the directory.
type Session struct {
	UserID string
	Role   string
	Conn   Conn
}

// Registry tracks the live connection for each connected user. At most one
// session is held per user: a reconnect overwrites the previous entry without
// closing its transport (last writer wins).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With("component", "session"),
	}
}

// Set registers the session for its user, silently overwriting any previous
// entry for the same user.
func (r *Registry) Set(s *Session) {
	r.mu.Lock()
	_, replaced := r.sessions[s.UserID]
	r.sessions[s.UserID] = s
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("session registered",
		"user_id", s.UserID,
		"role", s.Role,
		"replaced", replaced,
		"total_sessions", total,
	)
}

// Get returns the user's current session. A miss is a normal outcome, not an
// error: the user is simply not connected.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	return s, ok
}

// Remove unconditionally drops the user's entry. No-op if absent.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, userID)
}

// RemoveSession drops the user's entry only if it still is s. A disconnect
// callback that races with a newer connect for the same user must not evict
// the newer session, so removal is conditional on identity of the stored
// entry, not just the user ID.
func (r *Registry) RemoveSession(s *Session) bool {
	r.mu.Lock()
	current, ok := r.sessions[s.UserID]
	if !ok || current != s {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, s.UserID)
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("session removed",
		"user_id", s.UserID,
		"total_sessions", total,
	)
	return true
}

// ByRole returns a snapshot of all sessions whose cached role matches.
func (r *Registry) ByRole(role string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Role == role {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Len returns the number of connected users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
