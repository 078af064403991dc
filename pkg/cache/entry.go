// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cache

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Entry is a cached value and its absolute expiry
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// envelope is the stored form of an Entry
type envelope struct {
	Value     []byte `cbor:"1,keyasint"`
	ExpiresAt int64  `cbor:"2,keyasint"`
}

func encodeEntry(e Entry) ([]byte, error) {
	data, err := cbor.Marshal(envelope{Value: e.Value, ExpiresAt: e.ExpiresAt.UnixNano()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return Entry{Value: env.Value, ExpiresAt: time.Unix(0, env.ExpiresAt)}, nil
}
