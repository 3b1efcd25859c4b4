package events

import (
	"context"
	"sort"
	"sync"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Manager owns the global bus and one bus per open library.
type Manager struct {
	global *Bus

	mu   sync.RWMutex
	libs map[string]*Bus
}

// NewManager returns a Manager with an empty global bus.
func NewManager() *Manager {
	return &Manager{global: NewBus(""), libs: map[string]*Bus{}}
}

// Global returns the library-agnostic bus.
func (m *Manager) Global() *Bus { return m.global }

// Open returns the bus of libraryID, creating it when needed. A closed bus is
// replaced by a fresh one.
func (m *Manager) Open(libraryID string) *Bus {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.libs[libraryID]
	if !ok || b.Closed() {
		b = NewBus(libraryID)
		m.libs[libraryID] = b
	}
	return b
}

// Library returns the bus of an open library.
func (m *Manager) Library(libraryID string) (*Bus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.libs[libraryID]
	return b, ok
}

// Close closes b and unregisters it, unless its library already has a newer
// bus. It returns once b's pending notifications have completed.
func (m *Manager) Close(b *Bus) {
	m.mu.Lock()
	if m.libs[b.Scope()] == b {
		delete(m.libs, b.Scope())
	}
	m.mu.Unlock()
	b.Close()
}

// Libraries returns the ids of libraries with an open bus.
func (m *Manager) Libraries() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.libs))
	for id := range m.libs {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Gate runs the gating hooks of the event's library, then the global ones.
// Any veto stops the chain.
func (m *Manager) Gate(ctx context.Context, ev spi.Event) bool {
	if lib := ev.Library(); lib != "" {
		if b, ok := m.Library(lib); ok && !b.EmitGating(ctx, ev) {
			return false
		}
	}
	return m.global.EmitGating(ctx, ev)
}

// Notify fires the notification hooks of the event's library and the global ones.
func (m *Manager) Notify(ctx context.Context, ev spi.Event) {
	if lib := ev.Library(); lib != "" {
		if b, ok := m.Library(lib); ok {
			b.EmitNotify(ctx, ev)
		}
	}
	m.global.EmitNotify(ctx, ev)
}

// Wait blocks until every bus has drained its pending notifications.
func (m *Manager) Wait() {
	m.mu.RLock()
	buses := make([]*Bus, 0, len(m.libs))
	for _, b := range m.libs {
		buses = append(buses, b)
	}
	m.mu.RUnlock()
	for _, b := range buses {
		b.Wait()
	}
	m.global.Wait()
}
