// Package clientkey gates client connections on a shared key.
package clientkey

import (
	"context"

	"github.com/gaspardpetit/libsync/core/logx"
	"github.com/gaspardpetit/libsync/core/options"
	"github.com/gaspardpetit/libsync/core/secret"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
	"github.com/gaspardpetit/libsync/sdk/base/auth"
)

// DataKey is the handshake field carrying the client key.
const DataKey = "clientKey"

type Plugin struct {
	key string
}

// New builds the plugin. The plugin option takes precedence over the server
// wide client key.
func New(opts spi.Options) *Plugin {
	return &Plugin{key: options.For(opts.PluginOptions, "clientkey").String("key", opts.ClientKey)}
}

func (p *Plugin) ID() string { return "clientkey" }

func (p *Plugin) Init(host spi.Host) error {
	if p.key == "" {
		logx.Log.Info().Msg("clientkey: no key configured; connections are not gated")
		return nil
	}
	logx.Log.Info().Str("key", secret.Mask(p.key)).Msg("clientkey: gating connections")
	host.Global().OnGate(spi.EventClientBeforeConnect, p.gate)
	return nil
}

func (p *Plugin) gate(_ context.Context, ev spi.Event) (bool, error) {
	ce, ok := ev.(spi.ConnectionEvent)
	if !ok || ce.Message == nil {
		return false, nil
	}
	presented, _ := ce.Message.Payload.Data[DataKey].(string)
	if presented == "" || !auth.CheckSecret(presented, p.key) {
		logx.Log.Debug().Str("library_id", ce.LibraryID).Str("client_id", ce.ClientID).Msg("clientkey: rejected")
		return false, nil
	}
	return true, nil
}
