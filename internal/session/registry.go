// Package session tracks which display name is bound to each live connection.
package session

import "sync"

// Registry maps connection ids to usernames.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]string),
	}
}

// Bind records the username for a connection.
func (r *Registry) Bind(connID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[connID] = username
}

// Lookup returns the username bound to a connection.
func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[connID]
	return name, ok
}

// Unbind removes a connection. Unknown ids are ignored.
func (r *Registry) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, connID)
}

// Count returns the number of bound sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
