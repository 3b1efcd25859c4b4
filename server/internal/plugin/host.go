package plugin

import (
	"context"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/fanout"
	"github.com/gaspardpetit/libsync/server/internal/fields"
	"github.com/gaspardpetit/libsync/server/internal/library"
)

// Host implements spi.Host over the server's registries.
type Host struct {
	fields *fields.Registry
	events *events.Manager
	libs   *library.Manager
	out    *fanout.Fanout
}

func NewHost(fr *fields.Registry, em *events.Manager, libs *library.Manager, out *fanout.Fanout) *Host {
	return &Host{fields: fr, events: em, libs: libs, out: out}
}

func (h *Host) RegisterFields(reqs ...spi.FieldRequirement) { h.fields.Register(reqs...) }

func (h *Host) Global() spi.EventBus { return h.events.Global() }

func (h *Host) Library(id string) (spi.Library, bool) {
	lib, ok := h.libs.Get(id)
	if !ok {
		return nil, false
	}
	return lib, true
}

func (h *Host) BroadcastPluginEvent(ctx context.Context, name string, payload any) {
	h.out.ToAllPlugins(ctx, spi.CustomEvent{EventName: name, Payload: payload})
}

func (h *Host) BroadcastLibraryEvent(ctx context.Context, libraryID, name string, payload any) {
	h.out.BroadcastLibraryEvent(ctx, libraryID, name, payload)
}

func (h *Host) SendToWebsocket(c spi.ConnRef, ev wire.Event) error {
	return h.out.SendToWebsocket(c, ev)
}

var _ spi.Host = (*Host)(nil)
