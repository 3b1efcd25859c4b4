package clientkey

import (
	"context"
	"testing"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
)

func connectEvent(data map[string]any) spi.ConnectionEvent {
	return spi.ConnectionEvent{
		EventName: spi.EventClientBeforeConnect,
		LibraryID: "lib1",
		ClientID:  "a",
		Message:   &wire.Message{Action: "client.connect", Payload: wire.Payload{Data: data}},
	}
}

func TestGate(t *testing.T) {
	p := New(spi.Options{ClientKey: "server", PluginOptions: map[string]map[string]string{"clientkey": {"key": "plugin"}}})
	cases := []struct {
		data map[string]any
		want bool
	}{
		{map[string]any{DataKey: "plugin"}, true},
		{map[string]any{DataKey: "server"}, false},
		{map[string]any{}, false},
		{map[string]any{DataKey: 42}, false},
	}
	for _, tc := range cases {
		ok, err := p.gate(context.Background(), connectEvent(tc.data))
		if err != nil || ok != tc.want {
			t.Fatalf("gate(%v) = %v, %v", tc.data, ok, err)
		}
	}
	if ok, _ := p.gate(context.Background(), spi.CustomEvent{EventName: spi.EventClientBeforeConnect}); ok {
		t.Fatalf("non-connection event accepted")
	}
}

func TestFallsBackToServerKey(t *testing.T) {
	p := New(spi.Options{ClientKey: "server"})
	if ok, _ := p.gate(context.Background(), connectEvent(map[string]any{DataKey: "server"})); !ok {
		t.Fatalf("server key rejected")
	}
}

func TestDescriptor(t *testing.T) {
	d := Descriptor()
	if d.ID != "clientkey" || len(d.Args) != 1 || !d.Args[0].Secret {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}
