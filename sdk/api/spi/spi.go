// Package spi is the contract between the library server and its plugins.
package spi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/libsync/sdk/contracts/wire"
)

// FieldRequirement declares that payload.data must contain FieldName for
// messages with the given verb and resource type.
type FieldRequirement struct {
	Action       string `json:"action" yaml:"action"`
	ResourceType string `json:"resourceType" yaml:"resource_type"`
	FieldName    string `json:"fieldName" yaml:"field_name"`
}

// Plugin is implemented by all server plugins. Init is called once at startup,
// before any connection is accepted.
type Plugin interface {
	ID() string
	Init(host Host) error
}

// LibraryPlugin is implemented by plugins that hook into individual libraries.
// OpenLibrary is called every time a library is opened, before its first
// connection is admitted.
type LibraryPlugin interface {
	OpenLibrary(ctx context.Context, lib Library) error
}

// RouteProvider is implemented by plugins exposing HTTP endpoints under /api/plugins/{id}.
type RouteProvider interface {
	RegisterRoutes(r chi.Router)
}

// MetricsProvider is implemented by plugins exporting their own collectors.
type MetricsProvider interface {
	RegisterMetrics(reg prometheus.Registerer)
}

// Library is the plugin view of an open library.
type Library interface {
	ID() string
	Bus() EventBus
	Store() Store
}

// Host is the capability set the server exposes to plugins.
type Host interface {
	// RegisterFields adds required-field declarations. Duplicates are ignored.
	RegisterFields(reqs ...FieldRequirement)
	// Global returns the library-agnostic event bus.
	Global() EventBus
	// Library returns an open library, if any.
	Library(libraryID string) (Library, bool)
	// BroadcastPluginEvent notifies every plugin hook registered for name.
	BroadcastPluginEvent(ctx context.Context, name string, payload any)
	// BroadcastLibraryEvent sends an event frame to all active connections of a
	// library and notifies that library's hooks.
	BroadcastLibraryEvent(ctx context.Context, libraryID, name string, payload any)
	// SendToWebsocket sends an event frame to a single connection.
	SendToWebsocket(c ConnRef, ev wire.Event) error
}

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler
