// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// SharedStore is the slower shared tier. Patterns use glob syntax
// (*, ?, [...]).
type SharedStore interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Close() error
}

// MemoryStore is an in-process SharedStore for single-node deployments
// and tests. Expired entries are dropped lazily on read and by the
// optional sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
	closed  bool
}

var _ SharedStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}

	if e.Expired(m.now()) {
		m.mu.Lock()
		// re-check under the write lock, the key may have been refreshed
		if cur, ok := m.entries[key]; ok && cur.Expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) DeletePattern(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired entries and returns how many were removed
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, key)
			n++
		}
	}
	return n
}

// StartSweeper runs Sweep every interval until ctx is done
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]Entry)
	return nil
}
