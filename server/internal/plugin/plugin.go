// Package plugin instantiates server plugins, mounts their surfaces and
// exposes the server to them through Host.
package plugin

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// SurfaceMount represents a mounted plugin surface.
type SurfaceMount struct {
	Path   string
	Router chi.Router
}

// Registry holds loaded plugins and their optional capabilities.
type Registry struct {
	plugins []spi.Plugin
	libs    []spi.LibraryPlugin
	mounts  []SurfaceMount
}

// Build instantiates the enabled plugins in order. Unknown IDs are an error.
func Build(enabled []string, opts spi.Options) ([]spi.Plugin, error) {
	var out []spi.Plugin
	for _, id := range enabled {
		f, ok := Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", id)
		}
		out = append(out, f(opts))
	}
	return out, nil
}

// RegisterSurface mounts a plugin's routes under /api/plugins/{id}.
func RegisterSurface(parent chi.Router, p spi.Plugin, rp spi.RouteProvider) SurfaceMount {
	path := "/api/plugins/" + p.ID()
	sub := chi.NewRouter()
	rp.RegisterRoutes(sub)
	parent.Mount(path, sub)
	return SurfaceMount{Path: path, Router: sub}
}

// Load initializes plugins and wires their optional capabilities. parent and
// preg may be nil when no HTTP surface or metrics registry is available.
func Load(parent chi.Router, preg prometheus.Registerer, host spi.Host, plugins []spi.Plugin) (*Registry, error) {
	reg := &Registry{}
	for _, p := range plugins {
		if err := p.Init(host); err != nil {
			return nil, fmt.Errorf("init plugin %s: %w", p.ID(), err)
		}
		if rp, ok := p.(spi.RouteProvider); ok && parent != nil {
			reg.mounts = append(reg.mounts, RegisterSurface(parent, p, rp))
		}
		if mp, ok := p.(spi.MetricsProvider); ok && preg != nil {
			mp.RegisterMetrics(preg)
		}
		if lp, ok := p.(spi.LibraryPlugin); ok {
			reg.libs = append(reg.libs, lp)
		}
		reg.plugins = append(reg.plugins, p)
		logx.Log.Info().Str("plugin", p.ID()).Msg("plugin loaded")
	}
	return reg, nil
}

// OpenLibrary hands a newly opened library to every LibraryPlugin.
func (r *Registry) OpenLibrary(ctx context.Context, lib spi.Library) error {
	if r == nil {
		return nil
	}
	for _, lp := range r.libs {
		if err := lp.OpenLibrary(ctx, lib); err != nil {
			return err
		}
	}
	return nil
}

// Plugins returns all loaded plugins.
func (r *Registry) Plugins() []spi.Plugin { return r.plugins }

// IDs returns the IDs of the loaded plugins in load order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p.ID())
	}
	return out
}

// Mounts returns the mounted plugin surfaces.
func (r *Registry) Mounts() []SurfaceMount { return r.mounts }
