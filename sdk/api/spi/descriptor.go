package spi

import "strings"

// ArgType is a type hint for a plugin option.
type ArgType string

const (
	ArgString   ArgType = "string"
	ArgInt      ArgType = "int"
	ArgBool     ArgType = "bool"
	ArgDuration ArgType = "duration"
	ArgList     ArgType = "list"
)

// ArgSpec describes one option of a plugin and where it can be set from.
type ArgSpec struct {
	ID          string  // key within plugin_options.<plugin>
	Flag        string  // command-line flag, e.g. --uploader-require-username
	Env         string  // environment variable, e.g. UPLOADER_REQUIRE_USERNAME
	Type        ArgType // type hint for help output
	Default     string  // applied when no other source sets the option
	Example     string
	Description string
	Secret      bool // masked in logs and state output
}

// YAMLPath returns where the option lives in the config file.
func (a ArgSpec) YAMLPath(pluginID string) string {
	return "plugin_options." + pluginID + "." + a.ID
}

// FlagName returns the flag without its leading dashes.
func (a ArgSpec) FlagName() string { return strings.TrimLeft(a.Flag, "-") }

// PluginDescriptor is the human-readable metadata of a plugin and its options.
type PluginDescriptor struct {
	ID      string
	Name    string
	Summary string
	Args    []ArgSpec
}

// Defaults returns the default value of every option that declares one.
func (d PluginDescriptor) Defaults() map[string]string {
	out := map[string]string{}
	for _, a := range d.Args {
		if a.Default != "" {
			out[a.ID] = a.Default
		}
	}
	return out
}
