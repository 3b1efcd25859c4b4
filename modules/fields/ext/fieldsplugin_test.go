package fields

import (
	"testing"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

type fakeHost struct {
	spi.Host
	reqs []spi.FieldRequirement
}

func (h *fakeHost) RegisterFields(reqs ...spi.FieldRequirement) { h.reqs = append(h.reqs, reqs...) }

func TestInit(t *testing.T) {
	h := &fakeHost{}
	p := New(spi.Options{PluginOptions: map[string]map[string]string{"fields": {"required": "create:file:username, update:tag:label"}}})
	if err := p.Init(h); err != nil {
		t.Fatalf("init: %v", err)
	}
	want := []spi.FieldRequirement{
		{Action: "create", ResourceType: "file", FieldName: "username"},
		{Action: "update", ResourceType: "tag", FieldName: "label"},
	}
	if len(h.reqs) != 2 || h.reqs[0] != want[0] || h.reqs[1] != want[1] {
		t.Fatalf("got %v", h.reqs)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"create:file", "create::username", "a:b:c:d"} {
		if _, err := Parse([]string{in}); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
