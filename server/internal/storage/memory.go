package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

type memEntry struct {
	seq     int64
	rec     spi.Record
	deleted bool
}

type memoryBackend struct {
	mu    sync.RWMutex
	seq   int64
	kinds map[string]map[string]*memEntry
}

// NewMemory returns a store that keeps the library in process memory.
func NewMemory(libraryID string) spi.Store {
	return &store{
		id:        libraryID,
		createdAt: time.Now().UTC(),
		b:         &memoryBackend{kinds: map[string]map[string]*memEntry{}},
	}
}

func copyRecord(r spi.Record) spi.Record {
	out := make(spi.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (m *memoryBackend) list(_ context.Context, kind string, deleted bool) ([]spi.Record, error) {
	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.kinds[kind]))
	for _, e := range m.kinds[kind] {
		if e.deleted == deleted {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]spi.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, copyRecord(e.rec))
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *memoryBackend) insert(_ context.Context, kind string, rec spi.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.kinds[kind]
	if !ok {
		recs = map[string]*memEntry{}
		m.kinds[kind] = recs
	}
	m.seq++
	recs[rec.ID()] = &memEntry{seq: m.seq, rec: copyRecord(rec)}
	return nil
}

func (m *memoryBackend) get(_ context.Context, kind, id string) (spi.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.kinds[kind][id]
	if !ok {
		return nil, false, nil
	}
	return copyRecord(e.rec), true, nil
}

func (m *memoryBackend) put(_ context.Context, kind, id string, rec spi.Record, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.kinds[kind][id]
	if !ok {
		return spi.ErrNotFound
	}
	e.rec = copyRecord(rec)
	e.deleted = deleted
	return nil
}

func (m *memoryBackend) erase(_ context.Context, kind, id string) error {
	m.mu.Lock()
	delete(m.kinds[kind], id)
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) close() error { return nil }
