package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

func connectEvent(lib string) spi.Event {
	return spi.ConnectionEvent{EventName: spi.EventClientBeforeConnect, LibraryID: lib, ClientID: "c1"}
}

func TestGatingShortCircuitsOnFirstVeto(t *testing.T) {
	const n, k = 5, 3
	b := NewBus("L")
	var calls [n]int
	for i := 0; i < n; i++ {
		i := i
		b.OnGate(spi.EventClientBeforeConnect, func(context.Context, spi.Event) (bool, error) {
			calls[i]++
			return i+1 != k, nil
		})
	}
	if b.EmitGating(context.Background(), connectEvent("L")) {
		t.Fatalf("expected veto")
	}
	for i := 0; i < n; i++ {
		want := 1
		if i+1 > k {
			want = 0
		}
		if calls[i] != want {
			t.Fatalf("hook %d called %d times; want %d", i+1, calls[i], want)
		}
	}
}

func TestGatingRunsInRegistrationOrder(t *testing.T) {
	b := NewBus("L")
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		b.OnGate(spi.EventClientBeforeConnect, func(context.Context, spi.Event) (bool, error) {
			order = append(order, i)
			return true, nil
		})
	}
	if !b.EmitGating(context.Background(), connectEvent("L")) {
		t.Fatalf("expected all hooks to allow")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v", order)
	}
}

func TestGatingWithoutHooksAllows(t *testing.T) {
	if !NewBus("L").EmitGating(context.Background(), connectEvent("L")) {
		t.Fatalf("no hooks should allow")
	}
}

func TestGatingErrorAndPanicAreVetoes(t *testing.T) {
	b := NewBus("L")
	b.OnGate("x", func(context.Context, spi.Event) (bool, error) { return true, errors.New("boom") })
	if b.EmitGating(context.Background(), spi.CustomEvent{EventName: "x"}) {
		t.Fatalf("error should veto")
	}

	p := NewBus("L")
	p.OnGate("x", func(context.Context, spi.Event) (bool, error) { panic("bad plugin") })
	if p.EmitGating(context.Background(), spi.CustomEvent{EventName: "x"}) {
		t.Fatalf("panic should veto")
	}
}

func TestUnregister(t *testing.T) {
	b := NewBus("L")
	off := b.OnGate("x", func(context.Context, spi.Event) (bool, error) { return false, nil })
	b.OnNotify("x", func(context.Context, spi.Event) error { return nil })
	if g, n := b.HookCount("x"); g != 1 || n != 1 {
		t.Fatalf("hook count = %d,%d", g, n)
	}
	off()
	off()
	if g, _ := b.HookCount("x"); g != 0 {
		t.Fatalf("gating hook still registered")
	}
	if !b.EmitGating(context.Background(), spi.CustomEvent{EventName: "x"}) {
		t.Fatalf("unregistered veto still applied")
	}
}

func TestNotifyIsolatesFailures(t *testing.T) {
	b := NewBus("L")
	var ok atomic.Int32
	b.OnNotify("file::created", func(context.Context, spi.Event) error { return errors.New("fail") })
	b.OnNotify("file::created", func(context.Context, spi.Event) error { panic("fail harder") })
	b.OnNotify("file::created", func(context.Context, spi.Event) error { ok.Add(1); return nil })
	b.EmitNotify(context.Background(), spi.CustomEvent{EventName: "file::created"})
	b.Wait()
	if ok.Load() != 1 {
		t.Fatalf("healthy hook ran %d times; want 1", ok.Load())
	}
}

func TestNotifyDoesNotBlockCaller(t *testing.T) {
	b := NewBus("")
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	b.OnNotify("slow", func(context.Context, spi.Event) error {
		defer wg.Done()
		<-release
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	b.EmitNotify(ctx, spi.CustomEvent{EventName: "slow"})
	cancel()
	close(release)
	wg.Wait()
	b.Wait()
}

func TestNotifyContextOutlivesCaller(t *testing.T) {
	b := NewBus("")
	errCh := make(chan error, 1)
	start := make(chan struct{})
	b.OnNotify("x", func(ctx context.Context, _ spi.Event) error {
		<-start
		errCh <- ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	b.EmitNotify(ctx, spi.CustomEvent{EventName: "x"})
	cancel()
	close(start)
	b.Wait()
	if err := <-errCh; err != nil {
		t.Fatalf("hook context cancelled with caller: %v", err)
	}
}

func TestManagerGateRunsLibraryThenGlobal(t *testing.T) {
	m := NewManager()
	lib := m.Open("L")
	var order []string
	m.Global().OnGate(spi.EventClientBeforeConnect, func(context.Context, spi.Event) (bool, error) {
		order = append(order, "global")
		return true, nil
	})
	lib.OnGate(spi.EventClientBeforeConnect, func(context.Context, spi.Event) (bool, error) {
		order = append(order, "library")
		return true, nil
	})
	if !m.Gate(context.Background(), connectEvent("L")) {
		t.Fatalf("expected allow")
	}
	if len(order) != 2 || order[0] != "library" || order[1] != "global" {
		t.Fatalf("order = %v", order)
	}

	order = nil
	if !m.Gate(context.Background(), connectEvent("other")) {
		t.Fatalf("expected allow")
	}
	if len(order) != 1 || order[0] != "global" {
		t.Fatalf("other library should only see global hooks, got %v", order)
	}
}

func TestManagerLibraryVetoSkipsGlobal(t *testing.T) {
	m := NewManager()
	globalCalled := false
	m.Global().OnGate("x", func(context.Context, spi.Event) (bool, error) { globalCalled = true; return true, nil })
	m.Open("L").OnGate("x", func(context.Context, spi.Event) (bool, error) { return false, nil })
	if m.Gate(context.Background(), spi.CustomEvent{EventName: "x", LibraryID: "L"}) {
		t.Fatalf("expected veto")
	}
	if globalCalled {
		t.Fatalf("global hook ran after library veto")
	}
}

func TestManagerNotifyAndClose(t *testing.T) {
	m := NewManager()
	var lib, global atomic.Int32
	bus := m.Open("L")
	bus.OnNotify("x", func(context.Context, spi.Event) error { lib.Add(1); return nil })
	m.Global().OnNotify("x", func(context.Context, spi.Event) error { global.Add(1); return nil })
	m.Notify(context.Background(), spi.CustomEvent{EventName: "x", LibraryID: "L"})
	m.Wait()
	if lib.Load() != 1 || global.Load() != 1 {
		t.Fatalf("lib=%d global=%d", lib.Load(), global.Load())
	}
	m.Close(bus)
	if _, ok := m.Library("L"); ok {
		t.Fatalf("library bus still open")
	}
	m.Notify(context.Background(), spi.CustomEvent{EventName: "x", LibraryID: "L"})
	m.Wait()
	if lib.Load() != 1 || global.Load() != 2 {
		t.Fatalf("after close lib=%d global=%d", lib.Load(), global.Load())
	}
}

func TestCloseKeepsNewerBus(t *testing.T) {
	m := NewManager()
	old := m.Open("L")
	old.Close()
	fresh := m.Open("L")
	if fresh == old {
		t.Fatalf("closed bus reused")
	}
	m.Close(old)
	if b, ok := m.Library("L"); !ok || b != fresh {
		t.Fatalf("closing the old bus dropped the new one")
	}
}

func TestClosedBusStartsNoNotifications(t *testing.T) {
	b := NewBus("L")
	var n atomic.Int32
	b.OnNotify("x", func(context.Context, spi.Event) error { n.Add(1); return nil })
	b.Close()
	b.EmitNotify(context.Background(), spi.CustomEvent{EventName: "x", LibraryID: "L"})
	b.Wait()
	if n.Load() != 0 {
		t.Fatalf("notification ran on a closed bus")
	}
}

func TestCloseWaitsForRacingNotifications(t *testing.T) {
	b := NewBus("L")
	var running, done atomic.Int32
	b.OnNotify("x", func(context.Context, spi.Event) error {
		running.Add(1)
		done.Add(1)
		return nil
	})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.EmitNotify(context.Background(), spi.CustomEvent{EventName: "x", LibraryID: "L"})
		}()
	}
	b.Close()
	closedAt := done.Load()
	wg.Wait()
	b.Wait()
	if running.Load() != closedAt {
		t.Fatalf("%d notifications started after Close returned with %d", running.Load(), closedAt)
	}
}
