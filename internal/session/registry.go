package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pysuper/titan/internal/config"
	"github.com/pysuper/titan/internal/metrics"
)

// Registry tracks live sessions. In single mode at most one session holds
// the default slot; registering a new one evicts the previous holder before
// the newcomer is inserted, so no reader ever observes two defaults.
type Registry struct {
	mode config.ConnectionMode

	// registerMu serializes registration sequences; mu guards the maps.
	// Eviction blocks on the old session's teardown, which must happen
	// outside mu so the dying session's handlers can still reach the
	// registry.
	registerMu sync.Mutex
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*Session
	defaultID  uuid.UUID
	hasDefault bool
}

// NewRegistry creates a registry with the given connection mode.
func NewRegistry(mode config.ConnectionMode) *Registry {
	return &Registry{
		mode:     mode,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Register adds a session. In single mode the previous default session is
// fully evicted first: its tasks are cancelled, a superseded notice is sent,
// and its transport is closed before the new session becomes visible.
func (r *Registry) Register(s *Session) {
	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	if r.mode == config.ModeSingle {
		r.mu.Lock()
		var old *Session
		if r.hasDefault {
			old = r.sessions[r.defaultID]
			delete(r.sessions, r.defaultID)
			r.hasDefault = false
		}
		r.mu.Unlock()

		if old != nil {
			slog.Info("Evicting superseded session", "session_id", old.ID(), "new_session_id", s.ID())
			old.evict()
			metrics.SessionsEvicted.Inc()
		}
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	if r.mode == config.ModeSingle || !r.hasDefault {
		r.defaultID = s.id
		r.hasDefault = true
	}
	size := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(size))
}

// Unregister removes a session, releasing the default slot if it held it.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	if r.hasDefault && r.defaultID == id {
		r.hasDefault = false
		// In multi mode any remaining session may take over the slot.
		for other := range r.sessions {
			r.defaultID = other
			r.hasDefault = true
			break
		}
	}
	size := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(size))
}

// Lookup returns the session with the given id.
func (r *Registry) Lookup(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Default returns the session holding the default slot, the one HTTP
// control commands are routed to.
func (r *Registry) Default() (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasDefault {
		return nil, false
	}
	s, ok := r.sessions[r.defaultID]
	return s, ok
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll tears down every session, used on server shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.All() {
		s.Close()
	}
}
