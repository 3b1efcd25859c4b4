package uploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// memStore records UpdateFile calls; other methods are not used.
type memStore struct {
	spi.Store
	updates map[string]spi.Record
}

func (s *memStore) UpdateFile(_ context.Context, id string, patch spi.Record) (bool, error) {
	s.updates[id] = patch
	return true, nil
}

type broadcast struct {
	library, name string
	payload       any
}

type fakeHost struct {
	spi.Host
	reqs []spi.FieldRequirement
	sent []broadcast
}

func (h *fakeHost) RegisterFields(reqs ...spi.FieldRequirement) { h.reqs = append(h.reqs, reqs...) }

func (h *fakeHost) BroadcastLibraryEvent(_ context.Context, libraryID, name string, payload any) {
	h.sent = append(h.sent, broadcast{libraryID, name, payload})
}

func TestRequireUsername(t *testing.T) {
	h := &fakeHost{}
	p := New(spi.Options{PluginOptions: map[string]map[string]string{"uploader": {"require_username": "true"}}})
	if err := p.Init(h); err != nil {
		t.Fatalf("init: %v", err)
	}
	if len(h.reqs) != 1 || h.reqs[0] != (spi.FieldRequirement{Action: "create", ResourceType: "file", FieldName: "username"}) {
		t.Fatalf("unexpected requirements: %v", h.reqs)
	}

	h = &fakeHost{}
	_ = New(spi.Options{}).Init(h)
	if len(h.reqs) != 0 {
		t.Fatalf("username required by default")
	}
}

func TestStamp(t *testing.T) {
	p := New(spi.Options{})
	h := &fakeHost{}
	if err := p.Init(h); err != nil {
		t.Fatalf("init: %v", err)
	}
	reg := prometheus.NewRegistry()
	p.RegisterMetrics(reg)
	st := &memStore{updates: map[string]spi.Record{}}

	ev := spi.ResourceEvent{
		EventName: "file::created",
		LibraryID: "lib1",
		Request:   map[string]any{"username": "ann"},
		Payload:   spi.Record{"id": "f1"},
		Store:     st,
	}
	if err := p.stamp(context.Background(), ev); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if st.updates["f1"]["uploadedBy"] != "ann" {
		t.Fatalf("file not stamped: %v", st.updates)
	}
	if len(h.sent) != 1 || h.sent[0].library != "lib1" || h.sent[0].name != "file::updated" {
		t.Fatalf("stamp not broadcast: %+v", h.sent)
	}
	if sent := h.sent[0].payload.(map[string]any); sent["id"] != "f1" || sent["patch"].(spi.Record)["uploadedBy"] != "ann" {
		t.Fatalf("unexpected broadcast payload: %v", sent)
	}

	ev.Request = map[string]any{}
	ev.Payload = spi.Record{"id": "f2"}
	_ = p.stamp(context.Background(), ev)
	if _, ok := st.updates["f2"]; ok || len(h.sent) != 1 {
		t.Fatalf("file without username stamped")
	}
	if v := testutil.ToFloat64(p.stamped); v != 1 {
		t.Fatalf("stamped counter: %v", v)
	}
}

func TestRoutes(t *testing.T) {
	p := New(spi.Options{PluginOptions: map[string]map[string]string{"uploader": {"field": "owner"}}})
	r := chi.NewRouter()
	p.RegisterRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	body, _ := io.ReadAll(rr.Body)
	if rr.Code != http.StatusOK || !strings.Contains(string(body), `"field":"owner"`) {
		t.Fatalf("unexpected response %d %s", rr.Code, body)
	}
}
