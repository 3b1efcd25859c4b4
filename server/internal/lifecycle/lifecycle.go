// Package lifecycle moves client connections through
// Connecting -> Active -> Closed and emits the matching client events.
package lifecycle

import (
	"context"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/fanout"
)

// ActionConnect is the explicit handshake action.
const ActionConnect = "client.connect"

// Lifecycle admits and retires connections.
type Lifecycle struct {
	conns  *conn.Registry
	events *events.Manager
	out    *fanout.Fanout
}

func New(reg *conn.Registry, em *events.Manager, out *fanout.Fanout) *Lifecycle {
	return &Lifecycle{conns: reg, events: em, out: out}
}

// Handshake builds the client.connect message used to admit a connection
// when the transport opens.
func Handshake(libraryID, clientID string, data map[string]any) *wire.Message {
	if data == nil {
		data = map[string]any{}
	}
	return &wire.Message{
		Action:    ActionConnect,
		LibraryID: libraryID,
		ClientID:  clientID,
		Payload:   wire.Payload{Type: "client", Data: data},
	}
}

// Open registers c. It fails with conn.ErrDuplicate when the client is
// already connected to the library.
func (l *Lifecycle) Open(c *conn.Connection) error {
	if err := l.conns.Add(c); err != nil {
		return err
	}
	logx.Log.Debug().Str("library_id", c.LibraryID()).Str("client_id", c.ClientID()).Str("remote", c.RemoteAddr()).Msg("connection opened")
	return nil
}

// Admit runs the client::before_connect gate with msg. On success c becomes
// Active and receives client::connected; otherwise it stays Connecting and
// receives client::rejected. Admitting an Active connection is a no-op.
func (l *Lifecycle) Admit(ctx context.Context, c *conn.Connection, msg *wire.Message) bool {
	switch c.Status() {
	case spi.StatusActive:
		return true
	case spi.StatusClosed:
		return false
	}
	ev := spi.ConnectionEvent{
		EventName: spi.EventClientBeforeConnect,
		LibraryID: c.LibraryID(),
		ClientID:  c.ClientID(),
		Message:   msg,
		Conn:      c,
	}
	if !l.events.Gate(ctx, ev) {
		rejected := spi.ConnectionEvent{
			EventName: spi.EventClientRejected,
			LibraryID: c.LibraryID(),
			ClientID:  c.ClientID(),
			Message:   msg,
			Conn:      c,
			Reason:    "connection rejected",
		}
		_ = l.out.ToOriginator(c, wire.Event{EventName: rejected.EventName, LibraryID: c.LibraryID(), Data: rejected.Data()})
		l.out.ToAllPlugins(ctx, rejected)
		logx.Log.Info().Str("library_id", c.LibraryID()).Str("client_id", c.ClientID()).Msg("connection rejected")
		return false
	}
	if !c.Activate() {
		return c.Status() == spi.StatusActive
	}
	connected := spi.ConnectionEvent{
		EventName: spi.EventClientConnected,
		LibraryID: c.LibraryID(),
		ClientID:  c.ClientID(),
		Message:   msg,
		Conn:      c,
	}
	_ = l.out.ToOriginator(c, wire.Event{EventName: connected.EventName, LibraryID: c.LibraryID(), Data: connected.Data()})
	l.out.ToAllPlugins(ctx, connected)
	logx.Log.Info().Str("library_id", c.LibraryID()).Str("client_id", c.ClientID()).Msg("client connected")
	return true
}

// Disconnect closes c, removes it from the registry and notifies
// client::disconnected hooks. Only the first call has any effect.
func (l *Lifecycle) Disconnect(ctx context.Context, c *conn.Connection, reason string) {
	wasOpen := c.Close()
	l.conns.RemoveConn(c)
	if !wasOpen {
		return
	}
	l.out.ToAllPlugins(ctx, spi.ConnectionEvent{
		EventName: spi.EventClientDisconnected,
		LibraryID: c.LibraryID(),
		ClientID:  c.ClientID(),
		Conn:      c,
		Reason:    reason,
	})
	logx.Log.Info().Str("library_id", c.LibraryID()).Str("client_id", c.ClientID()).Str("reason", reason).Msg("client disconnected")
}
