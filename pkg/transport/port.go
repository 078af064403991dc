// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport owns the physical bus connection.
//
// A Port moves raw bytes. A Channel serialises request/response exchanges
// over one Port, because the RS485 bus is half-duplex and two callers must
// never interleave their frames.
package transport

import (
	"io"
	"time"
)

// Port is a byte connection to the bus.
//
// Read must return (0, nil) when the read timeout elapses without data,
// matching go.bug.st/serial semantics.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadTimeout(t time.Duration) error
}

// inputResetter is implemented by ports that can discard stale input
type inputResetter interface {
	ResetInputBuffer() error
}

// drainer is implemented by ports that can block until output is sent
type drainer interface {
	Drain() error
}
