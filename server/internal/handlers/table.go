// Package handlers maps (resource type, verb) pairs to storage operations.
package handlers

import (
	"context"
	"sort"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Request is the input of a handler.
type Request struct {
	LibraryID string
	ClientID  string
	Data      map[string]any
	Store     spi.Store
}

// Result is what a handler produced. Event is empty when nothing changed and
// no broadcast must happen; Payload is the broadcast data.
type Result struct {
	Data    any
	Event   string
	Payload any
}

// HandlerFunc executes one operation.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

// Route binds a handler to a resource type and verb. Required lists the
// payload fields the handler cannot run without.
type Route struct {
	Resource string
	Verb     string
	Required []string
	Handle   HandlerFunc
}

type routeKey struct{ resource, verb string }

// Table is the registry of routes. It is built once at startup and read-only
// afterwards.
type Table struct {
	routes map[routeKey]Route
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{routes: map[routeKey]Route{}}
}

// Register adds r, replacing any route with the same resource and verb.
func (t *Table) Register(r Route) {
	t.routes[routeKey{r.Resource, r.Verb}] = r
}

// Lookup returns the route for resource and verb.
func (t *Table) Lookup(resource, verb string) (Route, bool) {
	r, ok := t.routes[routeKey{resource, verb}]
	return r, ok
}

// Actions lists the registered actions as "resource.verb", sorted.
func (t *Table) Actions() []string {
	out := make([]string, 0, len(t.routes))
	for k := range t.routes {
		out = append(out, k.resource+"."+k.verb)
	}
	sort.Strings(out)
	return out
}

// Requirements returns the core field requirements of every route, to be
// registered with the field registry.
func (t *Table) Requirements() []spi.FieldRequirement {
	var out []spi.FieldRequirement
	for _, r := range t.routes {
		for _, f := range r.Required {
			out = append(out, spi.FieldRequirement{Action: r.Verb, ResourceType: r.Resource, FieldName: f})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.FieldName < b.FieldName
	})
	return out
}
