package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/fanout"
)

func setup() (*Lifecycle, *conn.Registry, *events.Manager) {
	reg := conn.NewRegistry()
	em := events.NewManager()
	em.Open("lib1")
	return New(reg, em, fanout.New(reg, em)), reg, em
}

func nextEvent(t *testing.T, c *conn.Connection) wire.Event {
	t.Helper()
	select {
	case b := <-c.Outbound():
		var ev wire.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	default:
		t.Fatalf("no frame queued")
	}
	return wire.Event{}
}

func TestAdmitActivates(t *testing.T) {
	l, _, em := setup()
	var connected atomic.Int32
	em.Global().OnNotify(spi.EventClientConnected, func(context.Context, spi.Event) error {
		connected.Add(1)
		return nil
	})
	c := conn.New("lib1", "a", conn.RemoteInfo{}, 4)
	if err := l.Open(c); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !l.Admit(context.Background(), c, Handshake("lib1", "a", nil)) {
		t.Fatalf("admit failed without gates")
	}
	if c.Status() != spi.StatusActive {
		t.Fatalf("status %s", c.Status())
	}
	if ev := nextEvent(t, c); ev.EventName != spi.EventClientConnected {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !l.Admit(context.Background(), c, Handshake("lib1", "a", nil)) {
		t.Fatalf("second admit should succeed")
	}
	if len(c.Outbound()) != 0 {
		t.Fatalf("second admit should not resend client::connected")
	}
	em.Wait()
	if connected.Load() != 1 {
		t.Fatalf("connected hooks fired %d times", connected.Load())
	}
}

func TestAdmitRejected(t *testing.T) {
	l, _, em := setup()
	var seen *wire.Message
	bus, _ := em.Library("lib1")
	bus.OnGate(spi.EventClientBeforeConnect, func(_ context.Context, ev spi.Event) (bool, error) {
		seen = ev.(spi.ConnectionEvent).Message
		return seen.Payload.Data["clientKey"] == "secret", nil
	})
	c := conn.New("lib1", "a", conn.RemoteInfo{}, 4)
	_ = l.Open(c)

	if l.Admit(context.Background(), c, Handshake("lib1", "a", map[string]any{"clientKey": "nope"})) {
		t.Fatalf("admit should be vetoed")
	}
	if c.Status() != spi.StatusConnecting {
		t.Fatalf("status %s", c.Status())
	}
	if ev := nextEvent(t, c); ev.EventName != spi.EventClientRejected {
		t.Fatalf("unexpected event %+v", ev)
	}
	if seen == nil || seen.Action != ActionConnect {
		t.Fatalf("gate did not receive the handshake: %+v", seen)
	}

	if !l.Admit(context.Background(), c, Handshake("lib1", "a", map[string]any{"clientKey": "secret"})) {
		t.Fatalf("admit with valid key failed")
	}
}

func TestOpenDuplicate(t *testing.T) {
	l, _, _ := setup()
	_ = l.Open(conn.New("lib1", "a", conn.RemoteInfo{}, 1))
	if err := l.Open(conn.New("lib1", "a", conn.RemoteInfo{}, 1)); !errors.Is(err, conn.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestDisconnectOnce(t *testing.T) {
	l, reg, em := setup()
	var gone atomic.Int32
	em.Global().OnNotify(spi.EventClientDisconnected, func(context.Context, spi.Event) error {
		gone.Add(1)
		return nil
	})
	c := conn.New("lib1", "a", conn.RemoteInfo{}, 1)
	_ = l.Open(c)
	l.Admit(context.Background(), c, Handshake("lib1", "a", nil))

	l.Disconnect(context.Background(), c, "client closed")
	l.Disconnect(context.Background(), c, "client closed")
	em.Wait()
	if c.Status() != spi.StatusClosed {
		t.Fatalf("status %s", c.Status())
	}
	if _, ok := reg.Get("lib1", "a"); ok {
		t.Fatalf("connection still registered")
	}
	if gone.Load() != 1 {
		t.Fatalf("disconnected hooks fired %d times", gone.Load())
	}
	if l.Admit(context.Background(), c, Handshake("lib1", "a", nil)) {
		t.Fatalf("closed connection admitted")
	}
}
