// Package events implements the per-library hook buses. Gating hooks can veto
// an operation; notification hooks observe it without ever blocking or failing
// the caller.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
)

type hook struct {
	id     uint64
	gate   spi.GateFunc
	notify spi.NotifyFunc
}

// Bus holds the hooks of one scope: a library, or the global scope when
// scope is empty.
type Bus struct {
	scope string

	mu      sync.RWMutex
	nextID  uint64
	gates   map[string][]hook
	notifys map[string][]hook
	closed  bool

	// inflight.Add only runs under mu while the bus is open, so Close's Wait
	// never races a new notification.
	inflight sync.WaitGroup
}

// NewBus returns an empty Bus for scope.
func NewBus(scope string) *Bus {
	return &Bus{scope: scope, gates: map[string][]hook{}, notifys: map[string][]hook{}}
}

// Scope returns the library id of the bus, "" for the global bus.
func (b *Bus) Scope() string { return b.scope }

// OnGate registers a gating hook for name.
func (b *Bus) OnGate(name string, fn spi.GateFunc) func() {
	return b.add(b.gates, name, hook{gate: fn})
}

// OnNotify registers a notification hook for name.
func (b *Bus) OnNotify(name string, fn spi.NotifyFunc) func() {
	return b.add(b.notifys, name, hook{notify: fn})
}

func (b *Bus) add(table map[string][]hook, name string, h hook) func() {
	b.mu.Lock()
	b.nextID++
	h.id = b.nextID
	table[name] = append(table[name], h)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			hs := table[name]
			for i := range hs {
				if hs[i].id == h.id {
					table[name] = append(hs[:i:i], hs[i+1:]...)
					break
				}
			}
			if len(table[name]) == 0 {
				delete(table, name)
			}
		})
	}
}

func (b *Bus) snapshot(table map[string][]hook, name string) []hook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := table[name]
	if len(hs) == 0 {
		return nil
	}
	return append([]hook(nil), hs...)
}

// HookCount returns the number of gating and notification hooks for name.
func (b *Bus) HookCount(name string) (gating, notification int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.gates[name]), len(b.notifys[name])
}

// EmitGating runs the gating hooks for ev in registration order and reports
// whether all of them allowed it. The first veto stops the chain. Hook errors
// and panics count as a veto and are logged, never returned.
func (b *Bus) EmitGating(ctx context.Context, ev spi.Event) bool {
	for i, h := range b.snapshot(b.gates, ev.Name()) {
		ok, err := b.runGate(ctx, h.gate, ev)
		if err != nil {
			logx.Log.Warn().Err(err).Str("event", ev.Name()).Str("library_id", b.scope).Int("hook", i+1).Msg("gating hook failed; treating as veto")
			metrics.RecordHookFailure(ev.Name(), spi.Gating)
		}
		if !ok {
			metrics.RecordHookVeto(ev.Name())
			logx.Log.Debug().Str("event", ev.Name()).Str("library_id", b.scope).Int("hook", i+1).Msg("vetoed")
			return false
		}
	}
	return true
}

func (b *Bus) runGate(ctx context.Context, fn spi.GateFunc, ev spi.Event) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	ok, err = fn(ctx, ev)
	if err != nil {
		ok = false
	}
	return ok, err
}

// EmitNotify starts every notification hook for ev on its own goroutine and
// returns immediately. Hooks run with a context that is not cancelled with the
// caller's.
func (b *Bus) EmitNotify(ctx context.Context, ev spi.Event) {
	b.mu.RLock()
	hs := b.notifys[ev.Name()]
	if b.closed || len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	hs = append([]hook(nil), hs...)
	b.inflight.Add(len(hs))
	b.mu.RUnlock()

	hctx := context.WithoutCancel(ctx)
	for _, h := range hs {
		go b.runNotify(hctx, h.notify, ev)
	}
}

func (b *Bus) runNotify(ctx context.Context, fn spi.NotifyFunc, ev spi.Event) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			logx.Log.Error().Str("event", ev.Name()).Str("library_id", b.scope).Interface("panic", r).Msg("notification hook panicked")
			metrics.RecordHookFailure(ev.Name(), spi.Notification)
		}
	}()
	if err := fn(ctx, ev); err != nil {
		logx.Log.Warn().Err(err).Str("event", ev.Name()).Str("library_id", b.scope).Msg("notification hook failed")
		metrics.RecordHookFailure(ev.Name(), spi.Notification)
	}
}

// Wait blocks until all notification hooks started so far have returned.
func (b *Bus) Wait() { b.inflight.Wait() }

// Close stops the bus from starting new notifications and waits for the
// pending ones.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.inflight.Wait()
}

// Closed reports whether Close was called.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
