package spi

// Options are the server settings handed to plugin factories.
type Options struct {
	// ClientKey is the shared key clients present when connecting, if configured.
	ClientKey string
	// PluginOptions holds plugin-specific options keyed by plugin ID.
	PluginOptions map[string]map[string]string
}
