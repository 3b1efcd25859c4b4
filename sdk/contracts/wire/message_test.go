package wire

import (
	"encoding/json"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		action, typ    string
		resource, verb string
	}{
		{"file.create", "", "file", "create"},
		{"file.createFromPath", "file", "file", "createFromPath"},
		{"create", "tag", "tag", "create"},
		{"library.info", "", "library", "info"},
	}
	for _, c := range cases {
		m := Message{Action: c.action, Payload: Payload{Type: c.typ}}
		r, v := m.Split()
		if r != c.resource || v != c.verb {
			t.Errorf("Split(%q,%q)=%q,%q want %q,%q", c.action, c.typ, r, v, c.resource, c.verb)
		}
	}
}

func TestReplyEncoding(t *testing.T) {
	b, _ := json.Marshal(OK("r1", map[string]any{"id": 42}))
	if string(b) != `{"requestId":"r1","status":"ok","data":{"id":42}}` {
		t.Fatalf("ok reply = %s", b)
	}
	b, _ = json.Marshal(Failure("", "MalformedMessage", "bad json"))
	if string(b) != `{"requestId":null,"status":"error","error":"bad json","code":"MalformedMessage"}` {
		t.Fatalf("null-correlated reply = %s", b)
	}
	b, _ = json.Marshal(Event{EventName: "file::created", LibraryID: "L", Data: map[string]any{"id": 42}})
	if string(b) != `{"eventName":"file::created","libraryId":"L","data":{"id":42}}` {
		t.Fatalf("event = %s", b)
	}
}
