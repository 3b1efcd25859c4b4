package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerOrRolesMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		name    string
		secrets []string
		roles   []string
		bearer  string
		header  string
		want    int
	}{
		{"open", nil, nil, "", "", http.StatusNoContent},
		{"blank config is open", []string{" "}, nil, "", "", http.StatusNoContent},
		{"valid token", []string{"k1", "k2"}, nil, "k2", "", http.StatusNoContent},
		{"bad token", []string{"k1"}, nil, "nope", "", http.StatusUnauthorized},
		{"missing token", []string{"k1"}, nil, "", "", http.StatusUnauthorized},
		{"role", []string{"k1"}, []string{"admin"}, "", "viewer, admin", http.StatusNoContent},
		{"wrong role", nil, []string{"admin"}, "", "viewer", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			if tc.header != "" {
				req.Header.Set(RolesHeader, tc.header)
			}
			rr := httptest.NewRecorder()
			BearerOrRolesMiddleware(tc.secrets, tc.roles)(ok).ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("got %d want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  abc ")
	if got := ExtractBearer(req); got != "abc" {
		t.Fatalf("got %q", got)
	}
	req.Header.Set("Authorization", "Basic abc")
	if got := ExtractBearer(req); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestCheckSecret(t *testing.T) {
	if !CheckSecret("anything", "") {
		t.Fatalf("empty secret should accept")
	}
	if !CheckSecret("abc", "abc") || CheckSecret("abd", "abc") || CheckSecret("", "abc") {
		t.Fatalf("unexpected comparison result")
	}
}
