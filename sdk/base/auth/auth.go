// Package auth provides the bearer-key and role checks shared by the HTTP
// surface and the connection gate.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// RolesHeader carries the caller's comma separated roles, as set by an
// authenticating proxy.
const RolesHeader = "X-User-Roles"

// BearerOrRolesMiddleware authorizes a request when its bearer token matches
// one of secrets or when a role in RolesHeader is in allowedRoles. With no
// secrets and no roles configured every request is allowed.
func BearerOrRolesMiddleware(secrets []string, allowedRoles []string) spi.Middleware {
	secrets = trimmed(secrets)
	allowedRoles = trimmed(allowedRoles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secrets) == 0 && len(allowedRoles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if MatchesAny(ExtractBearer(r), secrets) || hasAnyRole(r.Header.Get(RolesHeader), allowedRoles) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
}

// ExtractBearer returns the token of an "Authorization: Bearer" header.
func ExtractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// CheckSecret reports whether token matches expected. An empty expected
// secret accepts any token.
func CheckSecret(token, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// MatchesAny reports whether a non-empty token equals one of secrets.
func MatchesAny(token string, secrets []string) bool {
	if token == "" {
		return false
	}
	for _, s := range secrets {
		if s != "" && CheckSecret(token, s) {
			return true
		}
	}
	return false
}

func hasAnyRole(header string, allowed []string) bool {
	if header == "" || len(allowed) == 0 {
		return false
	}
	for _, role := range strings.Split(header, ",") {
		role = strings.TrimSpace(role)
		for _, a := range allowed {
			if role == a {
				return true
			}
		}
	}
	return false
}

func trimmed(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
