// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by stores after Close
var ErrClosed = errors.New("cache closed")

// FetchFunc produces a value on a double miss
type FetchFunc func(ctx context.Context) ([]byte, error)

// Config configures a ResponseCache
type Config struct {
	TTLs       map[string]time.Duration
	DefaultTTL time.Duration
	Fast       FastConfig
}

// DefaultConfig returns the built-in TTLs and fast tier settings
func DefaultConfig() Config {
	return Config{
		TTLs:       DefaultTTLs(),
		DefaultTTL: DefaultTTL,
		Fast:       DefaultFastConfig(),
	}
}

// Stats counts lookups by the tier that served them
type Stats struct {
	FastHits   uint64
	SharedHits uint64
	Misses     uint64
	Fetches    uint64
	Errors     uint64
}

// ResponseCache is a two-level TTL cache. Shared tier failures degrade to
// misses; the cache never turns a successful fetch into an error.
type ResponseCache struct {
	fast       *FastStore
	shared     SharedStore
	ttls       map[string]time.Duration
	defaultTTL time.Duration
	group      singleflight.Group
	logger     *zap.Logger
	now        func() time.Time

	fastHits   atomic.Uint64
	sharedHits atomic.Uint64
	misses     atomic.Uint64
	fetches    atomic.Uint64
	errs       atomic.Uint64
}

// Option configures a ResponseCache
type Option func(*ResponseCache)

// WithClock sets the time source for both tiers created by New
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *ResponseCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache over shared. A nil shared store gets a MemoryStore
// using the same clock.
func New(cfg Config, shared SharedStore, opts ...Option) (*ResponseCache, error) {
	c := &ResponseCache{
		ttls:       make(map[string]time.Duration, len(cfg.TTLs)),
		defaultTTL: cfg.DefaultTTL,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("cache")

	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	for class, ttl := range cfg.TTLs {
		if ttl <= 0 {
			return nil, fmt.Errorf("ttl for class %q must be positive", class)
		}
		c.ttls[class] = ttl
	}

	fast, err := NewFastStore(cfg.Fast, c.now)
	if err != nil {
		return nil, err
	}
	c.fast = fast

	if shared == nil {
		shared = NewMemoryStore(c.now)
	}
	c.shared = shared
	return c, nil
}

// TTL returns the TTL for class
func (c *ResponseCache) TTL(class string) time.Duration {
	if ttl, ok := c.ttls[class]; ok {
		return ttl
	}
	return c.defaultTTL
}

// Cacheable reports whether class has a configured TTL
func (c *ResponseCache) Cacheable(class string) bool {
	_, ok := c.ttls[class]
	return ok
}

// Get looks key up in the fast tier, then the shared tier
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := c.fast.Get(key); ok {
		c.fastHits.Add(1)
		return e.Value, true
	}

	e, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.errs.Add(1)
		c.logger.Warn("shared tier get failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.sharedHits.Add(1)
	if err := c.fast.Set(key, e); err != nil {
		c.logger.Debug("fast tier populate failed", zap.String("key", key), zap.Error(err))
	}
	return e.Value, true
}

// Put stores value in both tiers with the class TTL
func (c *ResponseCache) Put(ctx context.Context, key, class string, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)
	e := Entry{Value: stored, ExpiresAt: c.now().Add(c.TTL(class))}

	if err := c.fast.Set(key, e); err != nil {
		c.errs.Add(1)
		c.logger.Debug("fast tier set failed", zap.String("key", key), zap.Error(err))
	}
	if err := c.shared.Set(ctx, key, e); err != nil {
		c.errs.Add(1)
		c.logger.Warn("shared tier set failed", zap.String("key", key), zap.Error(err))
	}
}

// GetOrFetch returns the cached value for key or calls fetch on a double
// miss and stores its result with the class TTL. Concurrent misses on the
// same key share one fetch.
func (c *ResponseCache) GetOrFetch(ctx context.Context, key, class string, fetch FetchFunc) ([]byte, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.fetches.Add(1)
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(ctx, key, class, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	value := v.([]byte)
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Invalidate removes shared entries matching pattern and clears the whole
// fast tier
func (c *ResponseCache) Invalidate(ctx context.Context, pattern string) error {
	if err := c.fast.Reset(); err != nil {
		return fmt.Errorf("failed to reset fast tier: %w", err)
	}
	n, err := c.shared.DeletePattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to invalidate %q: %w", pattern, err)
	}
	c.logger.Debug("invalidated", zap.String("pattern", pattern), zap.Int("shared_removed", n))
	return nil
}

// Stats returns lookup counters
func (c *ResponseCache) Stats() Stats {
	return Stats{
		FastHits:   c.fastHits.Load(),
		SharedHits: c.sharedHits.Load(),
		Misses:     c.misses.Load(),
		Fetches:    c.fetches.Load(),
		Errors:     c.errs.Load(),
	}
}

// Close releases both tiers
func (c *ResponseCache) Close() error {
	return errors.Join(c.fast.Close(), c.shared.Close())
}
