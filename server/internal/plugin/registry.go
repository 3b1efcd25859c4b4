package plugin

import (
	"sort"

	clientkey "github.com/gaspardpetit/libsync/modules/clientkey/ext"
	fields "github.com/gaspardpetit/libsync/modules/fields/ext"
	uploader "github.com/gaspardpetit/libsync/modules/uploader/ext"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// Factory is the common constructor for server extensions.
type Factory func(opts spi.Options) spi.Plugin

var (
	registry    = map[string]Factory{}
	descriptors = map[string]spi.PluginDescriptor{}
)

// Register adds a factory and descriptor for a given plugin ID.
func Register(id string, f Factory, d spi.PluginDescriptor) {
	registry[id] = f
	if d.ID == "" {
		d.ID = id
	}
	descriptors[id] = d
}

// Get returns a factory by ID.
func Get(id string) (Factory, bool) { f, ok := registry[id]; return f, ok }

// IDs returns the registered plugin IDs, sorted.
func IDs() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Descriptor returns the descriptor for a plugin ID.
func Descriptor(id string) (spi.PluginDescriptor, bool) { d, ok := descriptors[id]; return d, ok }

// Descriptors returns all known descriptors.
func Descriptors() map[string]spi.PluginDescriptor { return descriptors }

// Wire built-in plugins.
func init() {
	Register("clientkey", func(opts spi.Options) spi.Plugin { return clientkey.New(opts) }, clientkey.Descriptor())
	Register("uploader", func(opts spi.Options) spi.Plugin { return uploader.New(opts) }, uploader.Descriptor())
	Register("fields", func(opts spi.Options) spi.Plugin { return fields.New(opts) }, fields.Descriptor())
}
