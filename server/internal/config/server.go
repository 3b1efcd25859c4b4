package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/gaspardpetit/libsync/core/config"
	"github.com/gaspardpetit/libsync/sdk/api/spi"
)

// ServerConfig holds configuration for the libsync server.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	APIKey         string        `yaml:"api_key"`
	StateRoles     []string      `yaml:"state_roles"`
	ClientKey      string        `yaml:"client_key"`
	RedisAddr      string        `yaml:"redis_addr"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`

	StorageDriver   string `yaml:"storage_driver"`
	DataDir         string `yaml:"data_dir"`
	QueueSize       int    `yaml:"queue_size"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`

	RequiredFields []spi.FieldRequirement       `yaml:"required_fields"`
	Plugins        []string                     `yaml:"plugins"`
	PluginOptions  map[string]map[string]string `yaml:"plugin_options"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "sqlite"
	}
	if c.DataDir == "" {
		c.DataDir = commoncfg.DefaultDataDir()
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.Plugins == nil {
		c.Plugins = []string{"*"}
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("server.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := commoncfg.GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := commoncfg.GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := commoncfg.GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := commoncfg.GetEnv("API_KEY", ""); v != "" {
		c.APIKey = v
	}
	if v := commoncfg.GetEnv("STATE_ROLES", ""); v != "" {
		c.StateRoles = splitComma(v)
	}
	if v := commoncfg.GetEnv("CLIENT_KEY", ""); v != "" {
		c.ClientKey = v
	}
	if v := commoncfg.GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := commoncfg.GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := commoncfg.GetEnv("STORAGE_DRIVER", ""); v != "" {
		c.StorageDriver = v
	}
	if v := commoncfg.GetEnv("DATA_DIR", ""); v != "" {
		c.DataDir = v
	}
	if v := commoncfg.GetEnv("QUEUE_SIZE", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueueSize = n
		}
	}
	if v := commoncfg.GetEnv("MAX_MESSAGE_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMessageBytes = n
		}
	}
	if v := commoncfg.GetEnv("PLUGINS", ""); v != "" {
		c.Plugins = splitComma(v)
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for WebSocket clients and the API")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "bearer key required for /api/state; leave empty to disable auth")
	fs.Func("state-roles", "comma separated roles (X-User-Roles) allowed to read /api/state", func(v string) error {
		c.StateRoles = splitComma(v)
		return nil
	})
	fs.StringVar(&c.ClientKey, "client-key", c.ClientKey, "shared key clients must present when connecting")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight messages on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.Func("allowed-origins", "comma separated list of allowed CORS and WebSocket origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.StringVar(&c.StorageDriver, "storage", c.StorageDriver, "library storage driver (sqlite, memory)")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory holding sqlite library databases")
	fs.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "outbound frames buffered per connection before dropping")
	fs.Int64Var(&c.MaxMessageBytes, "max-message-bytes", c.MaxMessageBytes, "largest inbound WebSocket message accepted")
	fs.Func("plugins", "comma separated list of enabled plugins (* for all)", func(v string) error {
		c.Plugins = splitComma(v)
		return nil
	})
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// SetPluginOption sets an extension option value under plugin_options.<pluginID>.<key>.
func (c *ServerConfig) SetPluginOption(pluginID, key, value string) {
	if c.PluginOptions == nil {
		c.PluginOptions = map[string]map[string]string{}
	}
	po := c.PluginOptions[pluginID]
	if po == nil {
		po = map[string]string{}
	}
	po[key] = value
	c.PluginOptions[pluginID] = po
}

// ApplyEnvExtensions overlays plugin options from the environment variables
// named by descs.
func (c *ServerConfig) ApplyEnvExtensions(descs map[string]spi.PluginDescriptor) {
	for id, d := range descs {
		for _, a := range d.Args {
			if a.Env == "" {
				continue
			}
			if v := os.Getenv(a.Env); v != "" {
				c.SetPluginOption(id, a.ID, v)
			}
		}
	}
}

// BindExtensionFlags binds one flag per plugin option declared in descs.
func (c *ServerConfig) BindExtensionFlags(fs *flag.FlagSet, descs map[string]spi.PluginDescriptor) {
	for id, d := range descs {
		for _, a := range d.Args {
			if a.Flag == "" {
				continue
			}
			pid, aid := id, a.ID
			fs.Func(a.FlagName(), fmt.Sprintf("extension option (%s.%s): %s", id, a.ID, a.Description), func(v string) error {
				c.SetPluginOption(pid, aid, v)
				return nil
			})
		}
	}
}

// EnabledPlugins resolves the "*" wildcard against the registered ids.
func (c *ServerConfig) EnabledPlugins(registered []string) []string {
	if len(c.Plugins) == 1 && c.Plugins[0] == "*" {
		out := append([]string(nil), registered...)
		sort.Strings(out)
		return out
	}
	return c.Plugins
}

// PluginOptionsWithDefaults returns a copy of the plugin options with the
// descriptor defaults filled in for every enabled plugin.
func (c *ServerConfig) PluginOptionsWithDefaults(ids []string, descs map[string]spi.PluginDescriptor) map[string]map[string]string {
	out := map[string]map[string]string{}
	for k, v := range c.PluginOptions {
		mv := make(map[string]string, len(v))
		for kk, vv := range v {
			mv[kk] = vv
		}
		out[k] = mv
	}
	for _, id := range ids {
		d, ok := descs[id]
		if !ok {
			continue
		}
		po := out[id]
		if po == nil {
			po = map[string]string{}
		}
		for k, v := range d.Defaults() {
			if po[k] == "" {
				po[k] = v
			}
		}
		out[id] = po
	}
	return out
}
