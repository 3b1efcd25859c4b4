// Package library opens a library on its first connection and closes it when
// the last connection is released.
package library

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
	"github.com/gaspardpetit/libsync/server/internal/storage"
)

// Library is an open library: its store and its event bus.
type Library struct {
	id       string
	store    spi.Store
	bus      *events.Bus
	openedAt time.Time
}

func (l *Library) ID() string          { return l.id }
func (l *Library) Store() spi.Store    { return l.store }
func (l *Library) Bus() spi.EventBus   { return l.bus }
func (l *Library) OpenedAt() time.Time { return l.openedAt }

// OpenHook is called for every library being opened, before it is handed to
// the first caller. An error aborts the open.
type OpenHook func(ctx context.Context, lib spi.Library) error

type entry struct {
	lib   *Library
	refs  int
	ready chan struct{}
	err   error

	// closing is set when the last reference is released; closed is closed
	// once the store and bus are torn down and the entry is gone.
	closing bool
	closed  chan struct{}
}

// Manager reference-counts open libraries.
type Manager struct {
	open   storage.Opener
	events *events.Manager
	hook   OpenHook

	mu   sync.Mutex
	libs map[string]*entry
}

// NewManager returns a Manager opening stores with open. hook may be nil.
func NewManager(open storage.Opener, em *events.Manager, hook OpenHook) *Manager {
	return &Manager{open: open, events: em, hook: hook, libs: map[string]*entry{}}
}

// Acquire returns the library id, opening it when this is the first
// reference. A library that is still closing is reopened only once its
// teardown has finished. Every successful Acquire must be paired with a Release.
func (m *Manager) Acquire(ctx context.Context, id string) (*Library, error) {
	m.mu.Lock()
	for {
		e, ok := m.libs[id]
		if !ok {
			break
		}
		if !e.closing {
			e.refs++
			m.mu.Unlock()
			<-e.ready
			return e.lib, e.err
		}
		m.mu.Unlock()
		select {
		case <-e.closed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
	}
	e := &entry{refs: 1, ready: make(chan struct{}), closed: make(chan struct{})}
	m.libs[id] = e
	m.mu.Unlock()

	e.lib, e.err = m.openLibrary(ctx, id)
	if e.err != nil {
		m.mu.Lock()
		delete(m.libs, id)
		m.mu.Unlock()
		close(e.closed)
	}
	close(e.ready)
	return e.lib, e.err
}

// Release drops one reference to id and closes the library when none remain.
func (m *Manager) Release(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.libs[id]
	if !ok || e.closing {
		m.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		m.mu.Unlock()
		return
	}
	e.closing = true
	m.mu.Unlock()
	m.finish(ctx, id, e)
}

// finish tears down a closing entry and then removes it.
func (m *Manager) finish(ctx context.Context, id string, e *entry) {
	m.closeLibrary(ctx, e.lib)
	m.mu.Lock()
	if m.libs[id] == e {
		delete(m.libs, id)
	}
	m.mu.Unlock()
	close(e.closed)
}

// Get returns an open library.
func (m *Manager) Get(id string) (*Library, bool) {
	m.mu.Lock()
	e, ok := m.libs[id]
	if ok && e.closing {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.lib, e.err == nil
	default:
		return nil, false
	}
}

// Store returns the store of an open library.
func (m *Manager) Store(id string) (spi.Store, bool) {
	lib, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return lib.store, true
}

// Info describes an open library.
type Info struct {
	ID       string    `json:"id"`
	Refs     int       `json:"refs"`
	OpenedAt time.Time `json:"openedAt"`
}

// Snapshot lists open libraries sorted by id.
func (m *Manager) Snapshot() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.libs))
	for id, e := range m.libs {
		if e.closing {
			continue
		}
		select {
		case <-e.ready:
			if e.err == nil {
				out = append(out, Info{ID: id, Refs: e.refs, OpenedAt: e.lib.openedAt})
			}
		default:
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CloseAll closes every open library regardless of references, and waits for
// libraries already closing.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	closing := map[string]*entry{}
	var pending []chan struct{}
	for id, e := range m.libs {
		if e.closing {
			pending = append(pending, e.closed)
			continue
		}
		select {
		case <-e.ready:
			if e.err == nil {
				e.closing = true
				closing[id] = e
			}
		default:
		}
	}
	m.mu.Unlock()
	for id, e := range closing {
		m.finish(ctx, id, e)
	}
	for _, ch := range pending {
		<-ch
	}
}

func (m *Manager) openLibrary(ctx context.Context, id string) (*Library, error) {
	store, err := m.open(id)
	if err != nil {
		return nil, fmt.Errorf("open library %s: %w", id, err)
	}
	lib := &Library{id: id, store: store, bus: m.events.Open(id), openedAt: time.Now()}
	if m.hook != nil {
		if err := m.hook(ctx, lib); err != nil {
			m.events.Close(lib.bus)
			_ = store.Close()
			return nil, fmt.Errorf("open library %s: %w", id, err)
		}
	}
	metrics.LibraryOpened()
	ev := spi.LibraryEvent{EventName: spi.EventLibraryOpened, LibraryID: id}
	if info, err := store.GetLibraryInfo(ctx); err == nil {
		ev.Info = &info
	}
	m.events.Notify(ctx, ev)
	logx.Log.Info().Str("library_id", id).Msg("library opened")
	return lib, nil
}

func (m *Manager) closeLibrary(ctx context.Context, lib *Library) {
	ev := spi.LibraryEvent{EventName: spi.EventLibraryClosed, LibraryID: lib.id}
	if info, err := lib.store.GetLibraryInfo(ctx); err == nil {
		ev.Info = &info
	}
	m.events.Notify(ctx, ev)
	m.events.Close(lib.bus)
	if err := lib.store.Close(); err != nil {
		logx.Log.Warn().Err(err).Str("library_id", lib.id).Msg("close store")
	}
	metrics.LibraryClosed()
	logx.Log.Info().Str("library_id", lib.id).Msg("library closed")
}
