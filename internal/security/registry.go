// Package security restricts what constrained (widget) sessions may run.
package security

import "sync"

// Registry is the server-side set of constrained session ids.
// Membership is authoritative; nothing a client sends can change it.
type Registry struct {
	sessions map[string]struct{}
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]struct{})}
}

// Register marks a session as constrained. Registering twice is a no-op.
func (r *Registry) Register(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = struct{}{}
}

// Unregister removes the constraint. Unknown ids are ignored.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// IsConstrained reports whether the session is registered.
func (r *Registry) IsConstrained(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// Count returns the number of constrained sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
