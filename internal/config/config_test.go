// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 115200, cfg.Bus.Baud)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 3, cfg.Breaker.SuccessThreshold)
	assert.Equal(t, 200*time.Millisecond, cfg.Cache.TTLs["telemetry"])
	assert.Equal(t, time.Second, cfg.Cache.DefaultTTL)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "buslink.yaml", `
bus:
  port: /dev/ttyUSB1
  baud: 57600
  read_timeout: 250ms
breaker:
  failure_threshold: 3
retry:
  policies:
    telemetry:
      max_retries: 4
      base_delay: 10ms
      max_delay: 80ms
      backoff_factor: 2
      jitter: true
cache:
  ttls:
    telemetry: 300ms
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Bus.Port)
	assert.Equal(t, 57600, cfg.Bus.Baud)
	assert.Equal(t, 250*time.Millisecond, cfg.Bus.ReadTimeout)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.RecoveryTimeout, "unset field keeps default")
	assert.Equal(t, 300*time.Millisecond, cfg.Cache.TTLs["telemetry"])
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.TTLs["robot_status"], "unset class keeps default")
	assert.Equal(t, "debug", cfg.Logging.Level)

	reg, err := cfg.Retry.Registry()
	require.NoError(t, err)
	p := reg.Lookup("telemetry")
	assert.Equal(t, 4, p.MaxRetries)
	assert.Equal(t, 80*time.Millisecond, p.MaxDelay)
	assert.Equal(t, 3, reg.Lookup("default").MaxRetries)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "buslink.toml", `
[bus]
url = "wss://bridge.local/bus"
username = "admin"
read_timeout = "150ms"

[breaker]
recovery_timeout = "30s"

[cache.redis]
addr = "127.0.0.1:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://bridge.local/bus", cfg.Bus.URL)
	assert.Equal(t, "admin", cfg.Bus.Username)
	assert.Equal(t, 150*time.Millisecond, cfg.Bus.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, "127.0.0.1:6379", cfg.Cache.ToRedis().Addr)
	assert.Equal(t, "buslink:", cfg.Cache.ToRedis().Prefix)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "bus: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "breaker:\n  failure_threshold: 0\n"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero baud", func(c *Config) { c.Bus.Baud = 0 }},
		{"zero read timeout", func(c *Config) { c.Bus.ReadTimeout = 0 }},
		{"http url", func(c *Config) { c.Bus.URL = "http://bridge.local" }},
		{"jwt without ttl", func(c *Config) {
			c.Bus.URL = "ws://bridge.local"
			c.Bus.JWTSecret = "secret"
			c.Bus.JWTTTL = 0
		}},
		{"zero success threshold", func(c *Config) { c.Breaker.SuccessThreshold = 0 }},
		{"zero recovery", func(c *Config) { c.Breaker.RecoveryTimeout = 0 }},
		{"no default policy", func(c *Config) { delete(c.Retry.Policies, "default") }},
		{"bad policy", func(c *Config) {
			p := c.Retry.Policies["telemetry"]
			p.MaxDelay = p.BaseDelay / 2
			c.Retry.Policies["telemetry"] = p
		}},
		{"zero ttl", func(c *Config) { c.Cache.TTLs["battery"] = 0 }},
		{"shards not power of two", func(c *Config) { c.Cache.FastShards = 12 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Bus.Port = "/dev/ttyS0"

	br := cfg.Breaker.ToBreaker()
	assert.Equal(t, 5, br.FailureThreshold)

	cc := cfg.Cache.ToCache()
	assert.Equal(t, cfg.Cache.FastShards, cc.Fast.Shards)
	assert.Equal(t, 30*time.Second, cc.TTLs["configuration"])

	sc := cfg.Bus.ToSerial()
	assert.Equal(t, "/dev/ttyS0", sc.Device)
	assert.Equal(t, 115200, sc.BaudRate)
}

func TestMarshal_WritesDurationsAsStrings(t *testing.T) {
	out, err := Marshal(Default())
	require.NoError(t, err)
	assert.Contains(t, string(out), "recovery_timeout: 1m0s")
}
