// Package config holds the gateway's static configuration: transport paths,
// Redis connection settings, the producer/object allow-lists, and the
// per-base-key schema table.
//
// Configuration is resolved once at process start: compiled-in defaults,
// optionally overlaid by a YAML file. The resulting Config is treated as
// immutable for the process lifetime; there is no runtime reload.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/schema"
)

// Duration wraps time.Duration so YAML values can be written as Go duration
// strings ("5m", "1.5s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete application configuration.
type Config struct {
	Gateway     GatewayConfig                `yaml:"gateway"`
	Redis       RedisConfig                  `yaml:"redis"`
	Metrics     MetricsConfig                `yaml:"metrics"`
	Keyspace    KeyspaceConfig               `yaml:"keyspace"`
	Schemas     map[string]schema.Definition `yaml:"schemas"`
	DiskMonitor DiskMonitorConfig            `yaml:"disk_monitor"`
}

// GatewayConfig holds the listening socket settings.
type GatewayConfig struct {
	// SocketPath is the well-known Unix socket path. A stale file at this
	// path is removed before binding.
	SocketPath string `yaml:"socket_path"`
}

// RedisConfig holds backend store connection settings.
type RedisConfig struct {
	URL         string   `yaml:"url"`
	DialTimeout Duration `yaml:"dial_timeout"`
	PoolSize    int      `yaml:"pool_size"`
}

// MetricsConfig holds the Prometheus endpoint settings. Port 0 disables
// the metrics server.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// KeyspaceConfig holds the allow-lists the key grammar is derived from.
type KeyspaceConfig struct {
	Producers []string `yaml:"producers"`
	Objects   []string `yaml:"objects"`
}

// DiskMonitorConfig holds the disk-space poller settings.
type DiskMonitorConfig struct {
	Interval Duration `yaml:"interval"`
	HashKey  string   `yaml:"hash_key"`
	Channel  string   `yaml:"channel"`
}

// Default returns the compiled-in configuration mirroring the reference
// deployment.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			SocketPath: "/tmp/redis_proxy.sock",
		},
		Redis: RedisConfig{
			URL:         "redis://127.0.0.1:6379/0",
			DialTimeout: Duration(5 * time.Second),
			PoolSize:    0, // driver default
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Keyspace: KeyspaceConfig{
			Producers: []string{"DiskUsage", "ModemWatcher", "Psmon", "SerialPort"},
			Objects:   []string{"object1", "object2"},
		},
		Schemas: map[string]schema.Definition{
			"cs:DiskUsage:object1": {
				"type": "object",
				"properties": map[string]any{
					"version": map[string]any{"type": "number"},
					"disk":    map[string]any{"type": "string"},
					"usage":   map[string]any{"type": "number"},
				},
				"required": []any{"version", "disk", "usage"},
			},
			"cs:ModemWatcher:object2": {
				"type": "object",
				"properties": map[string]any{
					"version":         map[string]any{"type": "number"},
					"status":          map[string]any{"type": "string"},
					"signal_strength": map[string]any{"type": "integer"},
				},
				"required": []any{"version", "status", "signal_strength"},
			},
		},
		DiskMonitor: DiskMonitorConfig{
			Interval: Duration(5 * time.Minute),
			HashKey:  "system_disk_space",
			Channel:  "system_disk_space",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults unchanged. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "parse config file")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Gateway.SocketPath == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check gateway.socket_path")
	}
	if c.Redis.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check redis.url")
	}
	if len(c.Keyspace.Producers) == 0 || len(c.Keyspace.Objects) == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "check keyspace allow-lists")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("metrics port %d out of range", c.Metrics.Port))
	}
	if c.DiskMonitor.Interval < 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "Validate", "check disk_monitor.interval")
	}

	// Every schema base key must be expressible under the allow-lists,
	// otherwise the schema could never apply to an accepted request.
	for baseKey := range c.Schemas {
		if err := c.checkBaseKey(baseKey); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) checkBaseKey(baseKey string) error {
	segments := strings.Split(baseKey, ":")
	if len(segments) != 3 || segments[0] != "cs" {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "checkBaseKey",
			fmt.Sprintf("schema key %q is not of the form cs:<producer>:<object>", baseKey))
	}
	if !contains(c.Keyspace.Producers, segments[1]) {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "checkBaseKey",
			fmt.Sprintf("schema key %q names producer %q outside the allow-list", baseKey, segments[1]))
	}
	if !contains(c.Keyspace.Objects, segments[2]) {
		return errors.WrapFatal(errors.ErrInvalidConfig, "Config", "checkBaseKey",
			fmt.Sprintf("schema key %q names object %q outside the allow-list", baseKey, segments[2]))
	}
	return nil
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}
	return false
}
