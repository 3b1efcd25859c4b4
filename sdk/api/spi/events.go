package spi

import (
	"context"

	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
)

// HookKind distinguishes hooks that can veto an operation from hooks that
// merely observe it.
type HookKind int

const (
	Gating HookKind = iota + 1
	Notification
)

func (k HookKind) String() string {
	switch k {
	case Gating:
		return "gating"
	case Notification:
		return "notification"
	default:
		return "unknown"
	}
}

// Built-in event names. Resource events follow "<resource>::<past tense>",
// e.g. "file::created"; see ResourceEventName.
const (
	EventClientBeforeConnect = "client::before_connect"
	EventClientConnected     = "client::connected"
	EventClientRejected      = "client::rejected"
	EventClientDisconnected  = "client::disconnected"
	EventLibraryOpened       = "library::opened"
	EventLibraryClosed       = "library::closed"
)

// ResourceEventName builds the domain event name for a resource mutation.
func ResourceEventName(resource, past string) string { return resource + "::" + past }

// Event is the closed set of payloads delivered to hooks. Plugins define their
// own events through CustomEvent.
type Event interface {
	Name() string
	// Library returns the library the event belongs to, or "" for global events.
	Library() string
	// Data is what clients receive when the event is broadcast.
	Data() any
	sealed()
}

// ConnectionEvent describes a client connecting, being rejected or leaving.
type ConnectionEvent struct {
	EventName string
	LibraryID string
	ClientID  string
	// Message is the handshake or action message that triggered the event; nil on disconnect.
	Message *wire.Message
	Conn    ConnRef
	Reason  string
}

func (e ConnectionEvent) Name() string    { return e.EventName }
func (e ConnectionEvent) Library() string { return e.LibraryID }
func (e ConnectionEvent) Data() any {
	d := map[string]any{"clientId": e.ClientID}
	if e.Reason != "" {
		d["reason"] = e.Reason
	}
	return d
}
func (ConnectionEvent) sealed() {}

// ResourceEvent describes a successful file, folder or tag mutation.
type ResourceEvent struct {
	EventName string
	LibraryID string
	ClientID  string
	Resource  string
	Verb      string
	// Request is the payload data of the originating message.
	Request map[string]any
	// Payload is the broadcast data (the created record, or the changed id).
	Payload any
	Store   Store
}

func (e ResourceEvent) Name() string    { return e.EventName }
func (e ResourceEvent) Library() string { return e.LibraryID }
func (e ResourceEvent) Data() any       { return e.Payload }
func (ResourceEvent) sealed()           {}

// LibraryEvent describes a library being opened or closed.
type LibraryEvent struct {
	EventName string
	LibraryID string
	Info      *LibraryInfo
}

func (e LibraryEvent) Name() string    { return e.EventName }
func (e LibraryEvent) Library() string { return e.LibraryID }
func (e LibraryEvent) Data() any       { return e.Info }
func (LibraryEvent) sealed()           {}

// CustomEvent carries plugin-defined events with arbitrary payloads.
type CustomEvent struct {
	EventName string
	LibraryID string
	Payload   any
}

func (e CustomEvent) Name() string    { return e.EventName }
func (e CustomEvent) Library() string { return e.LibraryID }
func (e CustomEvent) Data() any       { return e.Payload }
func (CustomEvent) sealed()           {}

// GateFunc is a gating hook. Returning false or an error vetoes the operation.
type GateFunc func(ctx context.Context, ev Event) (bool, error)

// NotifyFunc is a notification hook. Its error is logged and otherwise ignored.
type NotifyFunc func(ctx context.Context, ev Event) error

// EventBus registers hooks by event name. The returned function removes the hook.
type EventBus interface {
	OnGate(name string, fn GateFunc) (unregister func())
	OnNotify(name string, fn NotifyFunc) (unregister func())
}

// ConnStatus is the lifecycle state of a client connection.
type ConnStatus string

const (
	StatusConnecting ConnStatus = "connecting"
	StatusActive     ConnStatus = "active"
	StatusClosed     ConnStatus = "closed"
)

// ConnRef is the plugin view of a client connection.
type ConnRef interface {
	LibraryID() string
	ClientID() string
	RemoteAddr() string
	Status() ConnStatus
}
