package fields

import "github.com/gaspardpetit/libsync/sdk/api/spi"

// Descriptor returns the fields plugin descriptor.
func Descriptor() spi.PluginDescriptor {
	return spi.PluginDescriptor{
		ID:      "fields",
		Name:    "Required Fields",
		Summary: "Declares payload fields that messages must carry",
		Args: []spi.ArgSpec{
			{
				ID:          "required",
				Flag:        "--fields-required",
				Env:         "FIELDS_REQUIRED",
				Type:        spi.ArgList,
				Example:     "create:file:username,create:tag:label",
				Description: "Comma separated verb:resource:field requirements",
			},
		},
	}
}
