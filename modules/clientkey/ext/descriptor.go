package clientkey

import "github.com/gaspardpetit/libsync/sdk/api/spi"

// Descriptor returns the client key plugin descriptor.
func Descriptor() spi.PluginDescriptor {
	return spi.PluginDescriptor{
		ID:      "clientkey",
		Name:    "Client Key",
		Summary: "Rejects connections that do not present the shared client key",
		Args: []spi.ArgSpec{
			{
				ID:          "key",
				Flag:        "--clientkey-key",
				Env:         "CLIENTKEY_KEY",
				Type:        spi.ArgString,
				Example:     "s3cr3t",
				Description: "Shared key clients must present; defaults to the server client key",
				Secret:      true,
			},
		},
	}
}
