// Package fanout delivers replies and events to connected clients and plugin hooks.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
)

// Fanout never blocks on a slow client: frames are queued on each
// connection's outbound queue and dropped when it is full.
type Fanout struct {
	conns  *conn.Registry
	events *events.Manager
}

// New returns a Fanout addressing the connections of reg and the hooks of em.
func New(reg *conn.Registry, em *events.Manager) *Fanout {
	return &Fanout{conns: reg, events: em}
}

// ToOriginator sends envelope (a wire.Reply or wire.Event) to c.
func (f *Fanout) ToOriginator(c *conn.Connection, envelope any) error {
	b, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return f.deliver(c, b, "reply")
}

// ToLibraryPeers sends an event frame to every active connection of libraryID
// except excludeClientID. It returns the number of frames queued.
func (f *Fanout) ToLibraryPeers(libraryID, excludeClientID, eventName string, data any) int {
	b, err := json.Marshal(wire.Event{EventName: eventName, LibraryID: libraryID, Data: data})
	if err != nil {
		logx.Log.Error().Err(err).Str("library_id", libraryID).Str("event", eventName).Msg("encode broadcast")
		return 0
	}
	sent := 0
	for _, c := range f.conns.ListByLibrary(libraryID) {
		if c.ClientID() == excludeClientID || c.Status() != spi.StatusActive {
			continue
		}
		if f.deliver(c, b, eventName) == nil {
			sent++
		}
	}
	return sent
}

// ToAllPlugins fires the notification hooks registered for ev.
func (f *Fanout) ToAllPlugins(ctx context.Context, ev spi.Event) {
	f.events.Notify(ctx, ev)
}

// SendToWebsocket sends ev to the connection identified by ref.
func (f *Fanout) SendToWebsocket(ref spi.ConnRef, ev wire.Event) error {
	c, ok := f.conns.Get(ref.LibraryID(), ref.ClientID())
	if !ok {
		return conn.ErrClosed
	}
	if ev.LibraryID == "" {
		ev.LibraryID = ref.LibraryID()
	}
	return f.ToOriginator(c, ev)
}

// BroadcastLibraryEvent sends a custom event to all active connections of
// libraryID and notifies the hooks registered for it.
func (f *Fanout) BroadcastLibraryEvent(ctx context.Context, libraryID, name string, payload any) {
	f.ToLibraryPeers(libraryID, "", name, payload)
	f.ToAllPlugins(ctx, spi.CustomEvent{EventName: name, LibraryID: libraryID, Payload: payload})
}

func (f *Fanout) deliver(c *conn.Connection, frame []byte, what string) error {
	err := c.Enqueue(frame)
	switch {
	case err == nil:
		if what != "reply" {
			metrics.RecordBroadcast("sent")
		}
	case errors.Is(err, conn.ErrClosed):
		metrics.RecordBroadcast("stale")
		logx.Log.Debug().Str("library_id", c.LibraryID()).Str("client_id", c.ClientID()).Str("event", what).Msg("send to closed connection")
		f.conns.RemoveConn(c)
	case errors.Is(err, conn.ErrQueueFull):
		metrics.RecordBroadcast("dropped")
		logx.Log.Warn().Str("library_id", c.LibraryID()).Str("client_id", c.ClientID()).Str("event", what).Msg("outbound queue full; frame dropped")
	}
	return err
}
