package fix

import (
	"fmt"
	"sync"
)

// -------------------------------------------------------------------------
// Registry — engine-scoped session table
// -------------------------------------------------------------------------

// Registry is the engine-scoped table of live sessions, keyed by
// SessionID. At most one session is registered per ID at any time;
// connections register on bind and unregister on disconnect. The registry
// is passed explicitly to acceptors and initiators so multiple engines
// can coexist in one process.
type Registry struct {
	mu       sync.Mutex
	sessions map[SessionID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[SessionID]*Session)}
}

// Register installs s under its SessionID. It fails with
// ErrDuplicateSession if any session is already registered there.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return fmt.Errorf("%s: %w", s.ID(), ErrDuplicateSession)
	}
	r.sessions[s.ID()] = s
	return nil
}

// Unregister removes the registration for id. Unregistering an absent ID
// is a no-op.
func (r *Registry) Unregister(id SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Lookup returns the registered session for id.
func (r *Registry) Lookup(id SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// IsRegistered reports whether any session is registered under id.
func (r *Registry) IsRegistered(id SessionID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Snapshot returns the currently registered sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SendToTarget encodes and sends msg on the session registered under id.
// The message's header identity fields are filled by the session.
func (r *Registry) SendToTarget(msg *Message, id SessionID) error {
	s, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return s.Send(msg)
}
