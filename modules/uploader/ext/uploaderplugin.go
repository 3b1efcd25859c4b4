// Package uploader stamps newly created files with the username of the
// client that created them.
package uploader

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/core/options"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// UsernameField is the payload field naming the uploader.
const UsernameField = "username"

type Plugin struct {
	host            spi.Host
	requireUsername bool
	field           string
	stamped         prometheus.Counter
}

func New(opts spi.Options) *Plugin {
	o := options.For(opts.PluginOptions, "uploader")
	return &Plugin{
		requireUsername: o.Bool("require_username", false),
		field:           o.String("field", "uploadedBy"),
		stamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "libsync_uploader_stamped_total",
			Help: "Files stamped with their uploader",
		}),
	}
}

func (p *Plugin) ID() string { return "uploader" }

func (p *Plugin) Init(host spi.Host) error {
	p.host = host
	if p.requireUsername {
		host.RegisterFields(spi.FieldRequirement{Action: "create", ResourceType: "file", FieldName: UsernameField})
	}
	return nil
}

// OpenLibrary registers the stamping hook on the library's bus.
func (p *Plugin) OpenLibrary(_ context.Context, lib spi.Library) error {
	lib.Bus().OnNotify(spi.ResourceEventName("file", "created"), p.stamp)
	return nil
}

func (p *Plugin) RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(p.stamped)
}

func (p *Plugin) RegisterRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"requireUsername": p.requireUsername,
			"field":           p.field,
		})
	})
}

func (p *Plugin) stamp(ctx context.Context, ev spi.Event) error {
	re, ok := ev.(spi.ResourceEvent)
	if !ok || re.Store == nil {
		return nil
	}
	user, _ := re.Request[UsernameField].(string)
	if user == "" {
		return nil
	}
	rec, ok := re.Payload.(spi.Record)
	if !ok || rec.ID() == "" {
		return nil
	}
	patch := spi.Record{p.field: user}
	changed, err := re.Store.UpdateFile(ctx, rec.ID(), patch)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	p.stamped.Inc()
	// Peers already saw file::created without the stamp.
	if p.host != nil {
		p.host.BroadcastLibraryEvent(ctx, re.LibraryID, spi.ResourceEventName("file", "updated"), map[string]any{"id": rec.ID(), "patch": patch})
	}
	logx.Log.Debug().Str("library_id", re.LibraryID).Str("file_id", rec.ID()).Str("user", user).Msg("uploader: stamped file")
	return nil
}
