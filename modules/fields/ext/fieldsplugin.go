// Package fields registers static field requirements from configuration.
package fields

import (
	"fmt"
	"strings"

	"github.com/gaspardpetit/libsync/core/options"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

type Plugin struct {
	raw []string
}

func New(opts spi.Options) *Plugin {
	return &Plugin{raw: options.For(opts.PluginOptions, "fields").List("required")}
}

func (p *Plugin) ID() string { return "fields" }

func (p *Plugin) Init(host spi.Host) error {
	reqs, err := Parse(p.raw)
	if err != nil {
		return err
	}
	host.RegisterFields(reqs...)
	return nil
}

// Parse reads "verb:resource:field" items.
func Parse(items []string) ([]spi.FieldRequirement, error) {
	out := make([]spi.FieldRequirement, 0, len(items))
	for _, it := range items {
		parts := strings.Split(it, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("fields: invalid requirement %q, want verb:resource:field", it)
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] == "" {
				return nil, fmt.Errorf("fields: invalid requirement %q, empty part", it)
			}
		}
		out = append(out, spi.FieldRequirement{Action: parts[0], ResourceType: parts[1], FieldName: parts[2]})
	}
	return out, nil
}
