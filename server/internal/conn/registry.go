package conn

import (
	"sort"
	"sync"
)

// Registry indexes connections by library and client id. Each mutation is a
// single critical section; readers get copies.
type Registry struct {
	mu   sync.RWMutex
	libs map[string]map[string]*Connection
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{libs: make(map[string]map[string]*Connection)}
}

// Add registers c. A second connection with the same (libraryId, clientId) is
// rejected with ErrDuplicate.
func (r *Registry) Add(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clients, ok := r.libs[c.libraryID]
	if !ok {
		clients = make(map[string]*Connection)
		r.libs[c.libraryID] = clients
	}
	if _, exists := clients[c.clientID]; exists {
		return ErrDuplicate
	}
	clients[c.clientID] = c
	return nil
}

// Remove unregisters the connection of clientID in libraryID.
func (r *Registry) Remove(libraryID, clientID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.libs[libraryID][clientID]
	if ok {
		r.deleteLocked(libraryID, clientID)
	}
	return c, ok
}

// RemoveConn unregisters c only if it is still the registered connection for
// its (libraryId, clientId). It is used for lazy removal of stale connections.
func (r *Registry) RemoveConn(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.libs[c.libraryID][c.clientID]; !ok || cur != c {
		return false
	}
	r.deleteLocked(c.libraryID, c.clientID)
	return true
}

func (r *Registry) deleteLocked(libraryID, clientID string) {
	delete(r.libs[libraryID], clientID)
	if len(r.libs[libraryID]) == 0 {
		delete(r.libs, libraryID)
	}
}

// Get returns the connection of clientID in libraryID.
func (r *Registry) Get(libraryID, clientID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.libs[libraryID][clientID]
	return c, ok
}

// ListByLibrary returns a copy of the library's connections ordered by client id.
func (r *Registry) ListByLibrary(libraryID string) []*Connection {
	r.mu.RLock()
	clients := r.libs[libraryID]
	out := make([]*Connection, 0, len(clients))
	for _, c := range clients {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].clientID < out[j].clientID })
	return out
}

// Count returns the number of connections of a library.
func (r *Registry) Count(libraryID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.libs[libraryID])
}

// Total returns the number of connections across libraries.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, clients := range r.libs {
		n += len(clients)
	}
	return n
}

// Snapshot returns the metadata of every connection ordered by library and client.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	conns := make([]*Connection, 0)
	for _, clients := range r.libs {
		for _, c := range clients {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()
	out := make([]Info, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LibraryID != out[j].LibraryID {
			return out[i].LibraryID < out[j].LibraryID
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out
}
