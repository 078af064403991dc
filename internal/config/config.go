// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the buslink configuration file.
package config

import (
	"time"

	"github.com/Thermoquad/buslink/pkg/breaker"
	"github.com/Thermoquad/buslink/pkg/cache"
	"github.com/Thermoquad/buslink/pkg/retry"
	"github.com/Thermoquad/buslink/pkg/transport"
)

type Config struct {
	Bus     BusConfig     `yaml:"bus" toml:"bus"`
	Breaker BreakerConfig `yaml:"breaker" toml:"breaker"`
	Retry   RetryConfig   `yaml:"retry" toml:"retry"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ---- BUS ----

type BusConfig struct {
	Port        string        `yaml:"port" toml:"port"`
	Baud        int           `yaml:"baud" toml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout"`

	// WebSocket bridge (used instead of Port when set)
	URL           string        `yaml:"url" toml:"url"`
	Username      string        `yaml:"username" toml:"username"`
	SkipSSLVerify bool          `yaml:"skip_ssl_verify" toml:"skip_ssl_verify"`
	JWTSecret     string        `yaml:"jwt_secret" toml:"jwt_secret"`
	JWTTTL        time.Duration `yaml:"jwt_ttl" toml:"jwt_ttl"`
}

// ---- BREAKER ----

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" toml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" toml:"recovery_timeout"`
	SuccessThreshold int           `yaml:"success_threshold" toml:"success_threshold"`
}

// ---- RETRY ----

// RetryConfig maps operation class names to policies. Entries replace the
// built-in policy of the same class as a whole.
type RetryConfig struct {
	Policies map[string]PolicyConfig `yaml:"policies" toml:"policies"`
}

type PolicyConfig struct {
	MaxRetries    int           `yaml:"max_retries" toml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" toml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" toml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter" toml:"jitter"`
}

// ---- CACHE ----

type CacheConfig struct {
	TTLs          map[string]time.Duration `yaml:"ttls" toml:"ttls"`
	DefaultTTL    time.Duration            `yaml:"default_ttl" toml:"default_ttl"`
	FastShards    int                      `yaml:"fast_shards" toml:"fast_shards"`
	FastMaxSizeMB int                      `yaml:"fast_max_size_mb" toml:"fast_max_size_mb"`
	SweepInterval time.Duration            `yaml:"sweep_interval" toml:"sweep_interval"`
	Redis         RedisConfig              `yaml:"redis" toml:"redis"`
}

// RedisConfig selects Redis as the shared tier when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`   // debug|info|warn|error
	Format     string `yaml:"format" toml:"format"` // console|json
	File       string `yaml:"file" toml:"file"`     // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"`
	Path   string `yaml:"path" toml:"path"`
}

// Default returns the built-in configuration
func Default() *Config {
	policies := make(map[string]PolicyConfig)
	for class, p := range retry.DefaultPolicies() {
		policies[class] = PolicyConfig{
			MaxRetries:    p.MaxRetries,
			BaseDelay:     p.BaseDelay,
			MaxDelay:      p.MaxDelay,
			BackoffFactor: p.BackoffFactor,
			Jitter:        p.Jitter,
		}
	}

	bd := breaker.DefaultConfig()
	fast := cache.DefaultFastConfig()

	return &Config{
		Bus: BusConfig{
			Baud:        115200,
			ReadTimeout: 100 * time.Millisecond,
			JWTTTL:      5 * time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold: bd.FailureThreshold,
			RecoveryTimeout:  bd.RecoveryTimeout,
			SuccessThreshold: bd.SuccessThreshold,
		},
		Retry: RetryConfig{Policies: policies},
		Cache: CacheConfig{
			TTLs:          cache.DefaultTTLs(),
			DefaultTTL:    cache.DefaultTTL,
			FastShards:    fast.Shards,
			FastMaxSizeMB: fast.MaxSizeMB,
			SweepInterval: 30 * time.Second,
			Redis:         RedisConfig{Prefix: "buslink:"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
			Path:   "/metrics",
		},
	}
}

// ToBreaker converts to the breaker package config
func (c BreakerConfig) ToBreaker() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		SuccessThreshold: c.SuccessThreshold,
	}
}

// Registry builds the retry policy registry
func (c RetryConfig) Registry() (*retry.Registry, error) {
	policies := make(map[string]retry.Policy, len(c.Policies))
	for class, p := range c.Policies {
		policies[class] = retry.Policy{
			MaxRetries:    p.MaxRetries,
			BaseDelay:     p.BaseDelay,
			MaxDelay:      p.MaxDelay,
			BackoffFactor: p.BackoffFactor,
			Jitter:        p.Jitter,
		}
	}
	return retry.NewRegistry(policies)
}

// ToCache converts to the cache package config
func (c CacheConfig) ToCache() cache.Config {
	fast := cache.DefaultFastConfig()
	fast.Shards = c.FastShards
	fast.MaxSizeMB = c.FastMaxSizeMB

	ttls := make(map[string]time.Duration, len(c.TTLs))
	for class, ttl := range c.TTLs {
		ttls[class] = ttl
	}
	return cache.Config{TTLs: ttls, DefaultTTL: c.DefaultTTL, Fast: fast}
}

// ToRedis converts to the cache package Redis config
func (c CacheConfig) ToRedis() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Redis.Prefix,
	}
}

// ToSerial converts to the transport serial config
func (c BusConfig) ToSerial() transport.SerialConfig {
	return transport.SerialConfig{
		Device:      c.Port,
		BaudRate:    c.Baud,
		ReadTimeout: c.ReadTimeout,
	}
}
