// Package serverstate tracks whether the server accepts new connections.
// The state can live in process memory or in Redis so that a load balancer
// health check and every replica observe the same drain decision.
package serverstate

import (
	"sync"
	"time"
)

// Status values.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
	StatusUnknown  = "unknown"
)

// State is the server status and draining flag, always updated together.
type State struct {
	Status    string    `json:"status"`
	Draining  bool      `json:"draining"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists the state.
type Store interface {
	Load() State
	Store(State)
}

var (
	mu     sync.RWMutex
	active Store = NewMemoryStore()
)

// UseStore replaces the active Store. A nil store is ignored.
func UseStore(s Store) {
	if s == nil {
		return
	}
	mu.Lock()
	active = s
	mu.Unlock()
}

func current() Store {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

type memoryStore struct {
	mu sync.RWMutex
	st State
}

// NewMemoryStore returns a process-local Store starting as not_ready.
func NewMemoryStore() Store {
	return &memoryStore{st: State{Status: StatusNotReady, UpdatedAt: time.Now().UTC()}}
}

func (m *memoryStore) Load() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

func (m *memoryStore) Store(s State) {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
}

// SetState updates the status string, keeping the draining flag.
func SetState(status string) {
	s := current()
	st := s.Load()
	st.Status = status
	st.UpdatedAt = time.Now().UTC()
	s.Store(st)
}

// GetState returns the current status.
func GetState() string { return current().Load().Status }

// Snapshot returns the full current state.
func Snapshot() State { return current().Load() }

// StartDrain marks the server as draining. New connections are refused from
// then on.
func StartDrain() {
	s := current()
	s.Store(State{Status: StatusDraining, Draining: true, UpdatedAt: time.Now().UTC()})
}

// IsDraining reports whether the server is draining.
func IsDraining() bool { return current().Load().Draining }
