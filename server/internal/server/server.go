// Package server assembles the libsync HTTP surface: the WebSocket endpoint,
// health and state endpoints, metrics and plugin routes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/libsync/sdk/api/spi"
	baseauth "github.com/gaspardpetit/libsync/sdk/base/auth"
	"github.com/gaspardpetit/libsync/sdk/base/inflight"
	"github.com/gaspardpetit/libsync/server/internal/config"
	"github.com/gaspardpetit/libsync/server/internal/conn"
	"github.com/gaspardpetit/libsync/server/internal/dispatch"
	"github.com/gaspardpetit/libsync/server/internal/events"
	"github.com/gaspardpetit/libsync/server/internal/fanout"
	"github.com/gaspardpetit/libsync/server/internal/fields"
	"github.com/gaspardpetit/libsync/server/internal/handlers"
	"github.com/gaspardpetit/libsync/server/internal/library"
	"github.com/gaspardpetit/libsync/server/internal/lifecycle"
	"github.com/gaspardpetit/libsync/server/internal/metrics"
	"github.com/gaspardpetit/libsync/server/internal/plugin"
	"github.com/gaspardpetit/libsync/server/internal/storage"
	"github.com/gaspardpetit/libsync/server/internal/ws"
)

// Server is the assembled server. Handler serves every endpoint.
type Server struct {
	Handler  http.Handler
	Metrics  *prometheus.Registry
	Inflight *inflight.Counter

	fields    *fields.Registry
	routes    *handlers.Table
	events    *events.Manager
	conns     *conn.Registry
	libraries *library.Manager
	plugins   *plugin.Registry
}

// New wires the server components and initializes plugins.
func New(cfg config.ServerConfig, plugins []spi.Plugin) (*Server, error) {
	opener, err := storage.NewOpener(cfg.StorageDriver, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Metrics:  prometheus.NewRegistry(),
		Inflight: &inflight.Counter{},
		fields:   fields.NewRegistry(),
		routes:   handlers.Default(),
		events:   events.NewManager(),
		conns:    conn.NewRegistry(),
	}
	s.fields.Register(s.routes.Requirements()...)
	s.fields.Register(cfg.RequiredFields...)
	metrics.Register(s.Metrics)

	out := fanout.New(s.conns, s.events)
	life := lifecycle.New(s.conns, s.events, out)
	s.libraries = library.NewManager(opener, s.events, func(ctx context.Context, lib spi.Library) error {
		return s.plugins.OpenLibrary(ctx, lib)
	})
	host := plugin.NewHost(s.fields, s.events, s.libraries, out)

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range MiddlewareChain() {
		r.Use(m)
	}

	if s.plugins, err = plugin.Load(r, s.Metrics, host, plugins); err != nil {
		return nil, err
	}

	d := dispatch.New(dispatch.Options{
		Fields:    s.fields,
		Routes:    s.routes,
		Lifecycle: life,
		Fanout:    out,
		Stores:    s.libraries,
		Inflight:  s.Inflight,
	})

	r.Get("/healthz", healthz)
	r.Get("/ws", ws.Handler(ws.Options{
		Libraries:       s.libraries,
		Lifecycle:       life,
		Dispatcher:      d,
		QueueSize:       cfg.QueueSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
		AllowedOrigins:  originPatterns(cfg.AllowedOrigins),
	}))
	r.Route("/api", func(ar chi.Router) {
		ar.Group(func(g chi.Router) {
			var secrets []string
			if cfg.APIKey != "" {
				secrets = append(secrets, cfg.APIKey)
			}
			g.Use(baseauth.BearerOrRolesMiddleware(secrets, cfg.StateRoles))
			g.Get("/state", s.stateHandler)
			g.Get("/state/descriptors", stateDescriptors)
		})
	})

	if cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.HandlerFor(s.Metrics, promhttp.HandlerOpts{}))
	}

	s.Handler = r
	return s, nil
}

// Shutdown closes every open library and waits for pending notifications.
func (s *Server) Shutdown(ctx context.Context) {
	s.libraries.CloseAll(ctx)
	s.events.Wait()
}

// originPatterns turns CORS origins into WebSocket host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		out = append(out, o)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
