// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// FastConfig configures the in-process tier
type FastConfig struct {
	// LifeWindow is the bigcache eviction window. It must exceed every
	// class TTL; per-entry expiry is enforced from the envelope.
	LifeWindow  time.Duration
	CleanWindow time.Duration
	Shards      int
	MaxEntries  int
	MaxSizeMB   int
}

// DefaultFastConfig returns the fast tier defaults
func DefaultFastConfig() FastConfig {
	return FastConfig{
		LifeWindow:  10 * time.Minute,
		CleanWindow: time.Minute,
		Shards:      64,
		MaxEntries:  10000,
		MaxSizeMB:   32,
	}
}

// FastStore is the bigcache-backed in-process tier
type FastStore struct {
	cache *bigcache.BigCache
	now   func() time.Time
}

// NewFastStore creates the in-process tier. now may be nil.
func NewFastStore(cfg FastConfig, now func() time.Time) (*FastStore, error) {
	def := DefaultFastConfig()
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = def.LifeWindow
	}
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.MaxSizeMB < 0 {
		cfg.MaxSizeMB = 0
	}
	if now == nil {
		now = time.Now
	}

	bc := bigcache.DefaultConfig(cfg.LifeWindow)
	bc.Shards = cfg.Shards
	bc.CleanWindow = cfg.CleanWindow
	bc.MaxEntriesInWindow = cfg.MaxEntries
	bc.HardMaxCacheSize = cfg.MaxSizeMB
	bc.MaxEntrySize = 512
	bc.Verbose = false

	c, err := bigcache.New(context.Background(), bc)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast cache: %w", err)
	}
	return &FastStore{cache: c, now: now}, nil
}

// Get returns the live entry for key
func (s *FastStore) Get(key string) (Entry, bool) {
	data, err := s.cache.Get(key)
	if err != nil {
		return Entry{}, false
	}
	e, err := decodeEntry(data)
	if err != nil {
		_ = s.cache.Delete(key)
		return Entry{}, false
	}
	if e.Expired(s.now()) {
		_ = s.cache.Delete(key)
		return Entry{}, false
	}
	return e, true
}

// Set stores e under key
func (s *FastStore) Set(key string, e Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.cache.Set(key, data); err != nil {
		return fmt.Errorf("failed to set fast cache key %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *FastStore) Delete(key string) {
	_ = s.cache.Delete(key)
}

// Reset drops every entry
func (s *FastStore) Reset() error {
	return s.cache.Reset()
}

// Len returns the number of stored entries, including expired ones not
// yet evicted
func (s *FastStore) Len() int {
	return s.cache.Len()
}

// Close releases the cache
func (s *FastStore) Close() error {
	return s.cache.Close()
}
