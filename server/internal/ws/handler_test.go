package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandshakeData(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?libraryId=lib1&clientId=a&client_key=k1&username=ann", nil)
	r.Header.Set("User-Agent", "sync/1.0")
	r.Header.Set("Authorization", "Bearer other")
	data := handshakeData(r)
	if data["clientKey"] != "k1" || data["username"] != "ann" || data["userAgent"] != "sync/1.0" {
		t.Fatalf("unexpected handshake data: %v", data)
	}
	for _, k := range []string{ParamLibraryID, ParamClientID, ParamClientKey} {
		if _, ok := data[k]; ok {
			t.Fatalf("%s leaked into handshake data", k)
		}
	}
}

func TestHandshakeBearerFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?libraryId=lib1", nil)
	r.Header.Set("Authorization", "Bearer k2")
	if got := handshakeData(r)["clientKey"]; got != "k2" {
		t.Fatalf("clientKey = %v", got)
	}
}

func TestRejectsBeforeUpgrade(t *testing.T) {
	h := Handler(Options{})
	for _, q := range []string{"", "?libraryId=", "?libraryId=a/b", "?libraryId=.hidden"} {
		rr := httptest.NewRecorder()
		h(rr, httptest.NewRequest(http.MethodGet, "/ws"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%q: status %d", q, rr.Code)
		}
	}
}
