// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
)

// Sentinel kinds matched with errors.Is against a *TransportError
var (
	ErrTimeout   = errors.New("transport: timeout")
	ErrIoFailure = errors.New("transport: I/O failure")
	ErrClosed    = errors.New("transport: channel closed")
)

// TransportError is a failed exchange on the bus
type TransportError struct {
	Kind error  // ErrTimeout or ErrIoFailure
	Op   string // "write", "read header", "read body"
	Got  int    // bytes received before the failure
	Want int    // bytes expected
	Err  error  // underlying error, if any
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%v during %s", e.Kind, e.Op)
	if e.Want > 0 {
		msg += fmt.Sprintf(" (%d/%d bytes)", e.Got, e.Want)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind
func (e *TransportError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a transport timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
