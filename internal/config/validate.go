// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"net/url"

	"github.com/Thermoquad/buslink/pkg/retry"
)

// Validate checks configuration correctness.
// It does not mutate cfg.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	if cfg.Bus.URL != "" {
		u, err := url.Parse(cfg.Bus.URL)
		if err != nil {
			return fmt.Errorf("bus.url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("bus.url: scheme must be ws or wss, got %q", u.Scheme)
		}
		if cfg.Bus.JWTSecret != "" && cfg.Bus.JWTTTL <= 0 {
			return fmt.Errorf("bus.jwt_ttl must be positive when jwt_secret is set")
		}
	} else if cfg.Bus.Baud <= 0 {
		return fmt.Errorf("bus.baud must be positive, got %d", cfg.Bus.Baud)
	}
	if cfg.Bus.ReadTimeout <= 0 {
		return fmt.Errorf("bus.read_timeout must be positive")
	}

	// ------------------------------------------------------------
	// BREAKER
	// ------------------------------------------------------------

	if cfg.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be >= 1")
	}
	if cfg.Breaker.SuccessThreshold < 1 {
		return fmt.Errorf("breaker.success_threshold must be >= 1")
	}
	if cfg.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("breaker.recovery_timeout must be positive")
	}

	// ------------------------------------------------------------
	// RETRY
	// ------------------------------------------------------------

	if _, ok := cfg.Retry.Policies[retry.DefaultClass]; !ok {
		return fmt.Errorf("retry.policies must define %q", retry.DefaultClass)
	}
	if _, err := cfg.Retry.Registry(); err != nil {
		return fmt.Errorf("retry.policies: %w", err)
	}

	// ------------------------------------------------------------
	// CACHE
	// ------------------------------------------------------------

	for class, ttl := range cfg.Cache.TTLs {
		if ttl <= 0 {
			return fmt.Errorf("cache.ttls.%s must be positive", class)
		}
	}
	if cfg.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive")
	}
	if s := cfg.Cache.FastShards; s <= 0 || s&(s-1) != 0 {
		return fmt.Errorf("cache.fast_shards must be a power of two, got %d", s)
	}
	if cfg.Cache.FastMaxSizeMB < 0 {
		return fmt.Errorf("cache.fast_max_size_mb must not be negative")
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", cfg.Logging.Format)
	}

	return nil
}
