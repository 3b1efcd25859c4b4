package uploader

import "github.com/gaspardpetit/libsync/sdk/api/spi"

// Descriptor returns the uploader plugin descriptor.
func Descriptor() spi.PluginDescriptor {
	return spi.PluginDescriptor{
		ID:      "uploader",
		Name:    "Uploader",
		Summary: "Records which user created each file",
		Args: []spi.ArgSpec{
			{
				ID:          "require_username",
				Flag:        "--uploader-require-username",
				Env:         "UPLOADER_REQUIRE_USERNAME",
				Type:        spi.ArgBool,
				Default:     "false",
				Example:     "true",
				Description: "Reject file.create messages without a username field",
			},
			{
				ID:          "field",
				Flag:        "--uploader-field",
				Env:         "UPLOADER_FIELD",
				Type:        spi.ArgString,
				Default:     "uploadedBy",
				Example:     "owner",
				Description: "File field receiving the username",
			},
		},
	}
}
