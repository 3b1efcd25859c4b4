// Package fields keeps the required-field declarations contributed by plugins
// and by the built-in handlers.
package fields

import (
	"sort"
	"sync"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

type key struct {
	action   string
	resource string
}

// Registry is an append-only set of field requirements keyed by
// (action, resource type). It only ever adds requirements.
type Registry struct {
	mu     sync.RWMutex
	fields map[key]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fields: make(map[key]map[string]struct{})}
}

// Register adds requirements. Registering the same triple again has no effect.
func (r *Registry) Register(reqs ...spi.FieldRequirement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range reqs {
		if req.FieldName == "" {
			continue
		}
		k := key{req.Action, req.ResourceType}
		set, ok := r.fields[k]
		if !ok {
			set = make(map[string]struct{})
			r.fields[k] = set
		}
		set[req.FieldName] = struct{}{}
	}
}

// RequiredFieldsFor returns the sorted field names required for the pair.
// Unknown pairs yield an empty slice.
func (r *Registry) RequiredFieldsFor(action, resourceType string) []string {
	r.mu.RLock()
	set := r.fields[key{action, resourceType}]
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Missing returns the required fields for the pair that are absent from data.
func (r *Registry) Missing(action, resourceType string, data map[string]any) []string {
	var missing []string
	for _, f := range r.RequiredFieldsFor(action, resourceType) {
		if _, ok := data[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Snapshot lists every registered requirement in a stable order.
func (r *Registry) Snapshot() []spi.FieldRequirement {
	r.mu.RLock()
	out := make([]spi.FieldRequirement, 0, len(r.fields))
	for k, set := range r.fields {
		for f := range set {
			out = append(out, spi.FieldRequirement{Action: k.action, ResourceType: k.resource, FieldName: f})
		}
	}
	r.mu.RUnlock()
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
