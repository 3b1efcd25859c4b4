package options

import (
	"strconv"
	"strings"
	"time"
)

// Values holds the option map of a single plugin, as resolved from defaults,
// the config file, the environment and command line flags.
type Values map[string]string

// For returns the option values for pluginID from a per-plugin options map.
func For(all map[string]map[string]string, pluginID string) Values {
	if all == nil {
		return Values{}
	}
	return Values(all[pluginID])
}

// String returns the option value or def when absent or empty.
func (v Values) String(key, def string) string {
	if s, ok := v[key]; ok && s != "" {
		return s
	}
	return def
}

// Int parses the option as int, falling back to def on error or absence.
func (v Values) Int(key string, def int) int {
	if n, err := strconv.Atoi(v.String(key, "")); err == nil {
		return n
	}
	return def
}

// Bool parses the option as bool, falling back to def on error or absence.
func (v Values) Bool(key string, def bool) bool {
	if b, err := strconv.ParseBool(v.String(key, "")); err == nil {
		return b
	}
	return def
}

// Duration parses the option as a Go duration, falling back to def.
func (v Values) Duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v.String(key, "")); err == nil {
		return d
	}
	return def
}

// List splits a comma separated option into trimmed, non-empty items.
func (v Values) List(key string) []string {
	raw := v.String(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
