package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threelight/redisgate/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/redis_proxy.sock", cfg.Gateway.SocketPath)
	assert.Contains(t, cfg.Keyspace.Producers, "DiskUsage")
	assert.Contains(t, cfg.Keyspace.Objects, "object1")
	assert.Contains(t, cfg.Schemas, "cs:DiskUsage:object1")
	assert.Contains(t, cfg.Schemas, "cs:ModemWatcher:object2")
	assert.Equal(t, 5*time.Minute, cfg.DiskMonitor.Interval.Std())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redisgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  socket_path: /run/redisgate/gateway.sock
redis:
  url: redis://redis.internal:6379/1
  dial_timeout: 2s
disk_monitor:
  interval: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/redisgate/gateway.sock", cfg.Gateway.SocketPath)
	assert.Equal(t, "redis://redis.internal:6379/1", cfg.Redis.URL)
	assert.Equal(t, 2*time.Second, cfg.Redis.DialTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.DiskMonitor.Interval.Std())

	// Untouched sections keep their defaults
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Contains(t, cfg.Schemas, "cs:DiskUsage:object1")
}

func TestLoad_CustomKeyspaceAndSchema(t *testing.T) {
	path := writeConfig(t, `
keyspace:
  producers: [DiskUsage, GpsReader]
  objects: [object1]
schemas:
  "cs:GpsReader:object1":
    type: object
    properties:
      lat: {type: number}
      lon: {type: number}
    required: [lat, lon]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"DiskUsage", "GpsReader"}, cfg.Keyspace.Producers)
	assert.Contains(t, cfg.Schemas, "cs:GpsReader:object1")
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Gateway.SocketPath, cfg.Gateway.SocketPath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/redisgate.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [not: a: mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
disk_monitor:
  interval: five minutes
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty socket path", func(c *Config) { c.Gateway.SocketPath = "" }},
		{"empty redis url", func(c *Config) { c.Redis.URL = "" }},
		{"empty producers", func(c *Config) { c.Keyspace.Producers = nil }},
		{"empty objects", func(c *Config) { c.Keyspace.Objects = nil }},
		{"metrics port out of range", func(c *Config) { c.Metrics.Port = 70000 }},
		{"schema key wrong shape", func(c *Config) {
			c.Schemas["DiskUsage:object1"] = c.Schemas["cs:DiskUsage:object1"]
		}},
		{"schema producer outside allow-list", func(c *Config) {
			c.Schemas["cs:Rogue:object1"] = c.Schemas["cs:DiskUsage:object1"]
		}},
		{"schema object outside allow-list", func(c *Config) {
			c.Schemas["cs:DiskUsage:object9"] = c.Schemas["cs:DiskUsage:object1"]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}
