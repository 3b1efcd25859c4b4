package plugin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/fanout"
	"github.com/gaspardpetit/libsync/server/internal/fields"
	"github.com/gaspardpetit/libsync/server/internal/library"
	"github.com/gaspardpetit/libsync/server/internal/storage"
)

func TestBuiltinsRegistered(t *testing.T) {
	ids := IDs()
	want := []string{"clientkey", "fields", "uploader"}
	if len(ids) != len(want) {
		t.Fatalf("ids: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids: %v", ids)
		}
		if d, ok := Descriptor(want[i]); !ok || d.ID != want[i] {
			t.Fatalf("descriptor for %s: %+v", want[i], d)
		}
	}
	if _, err := Build([]string{"nope"}, spi.Options{}); err == nil {
		t.Fatalf("expected error for unknown plugin")
	}
}

func TestLoadWiresCapabilities(t *testing.T) {
	fr := fields.NewRegistry()
	em := events.NewManager()
	reg := conn.NewRegistry()
	out := fanout.New(reg, em)

	var loaded *Registry
	libs := library.NewManager(storage.MemoryOpener(), em, func(ctx context.Context, lib spi.Library) error {
		return loaded.OpenLibrary(ctx, lib)
	})
	host := NewHost(fr, em, libs, out)

	opts := spi.Options{
		ClientKey: "k",
		PluginOptions: map[string]map[string]string{
			"uploader": {"require_username": "true"},
			"fields":   {"required": "update:tag:label"},
		},
	}
	plugins, err := Build([]string{"clientkey", "uploader", "fields"}, opts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r := chi.NewRouter()
	loaded, err = Load(r, prometheus.NewRegistry(), host, plugins)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := loaded.IDs(); len(got) != 3 || got[0] != "clientkey" {
		t.Fatalf("loaded: %v", got)
	}
	if len(fr.RequiredFieldsFor("create", "file")) != 1 || len(fr.RequiredFieldsFor("update", "tag")) != 1 {
		t.Fatalf("field requirements not registered: %v", fr.Snapshot())
	}
	if g, _ := em.Global().HookCount(spi.EventClientBeforeConnect); g != 1 {
		t.Fatalf("clientkey gate not registered")
	}
	if len(loaded.Mounts()) != 1 || loaded.Mounts()[0].Path != "/api/plugins/uploader" {
		t.Fatalf("mounts: %+v", loaded.Mounts())
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/plugins/uploader/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("plugin route: %d", rr.Code)
	}

	lib, err := libs.Acquire(context.Background(), "lib1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	bus, _ := em.Library("lib1")
	if _, n := bus.HookCount("file::created"); n != 1 {
		t.Fatalf("uploader hook not registered on library bus")
	}
	if got, ok := host.Library("lib1"); !ok || got.ID() != lib.ID() {
		t.Fatalf("host library lookup failed")
	}
	if _, ok := host.Library("missing"); ok {
		t.Fatalf("unexpected library")
	}
}

func TestHostBroadcasts(t *testing.T) {
	em := events.NewManager()
	reg := conn.NewRegistry()
	out := fanout.New(reg, em)
	host := NewHost(fields.NewRegistry(), em, library.NewManager(storage.MemoryOpener(), em, nil), out)

	var got atomic.Int32
	host.Global().OnNotify("sync::done", func(_ context.Context, ev spi.Event) error {
		if ev.Library() == "" && ev.Data() == "payload" {
			got.Add(1)
		}
		return nil
	})
	host.BroadcastPluginEvent(context.Background(), "sync::done", "payload")
	em.Wait()
	if got.Load() != 1 {
		t.Fatalf("plugin event not delivered")
	}

	c := conn.New("lib1", "a", conn.RemoteInfo{}, 4)
	c.Activate()
	_ = reg.Add(c)
	host.BroadcastLibraryEvent(context.Background(), "lib1", "scan::progress", map[string]any{"pct": 50})
	if len(c.Outbound()) != 1 {
		t.Fatalf("library event not sent")
	}
}
