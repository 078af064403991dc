// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against a *FrameError
var (
	ErrBadStart         = errors.New("frame: bad start byte")
	ErrIncomplete       = errors.New("frame: incomplete frame")
	ErrCrcMismatch      = errors.New("frame: CRC mismatch")
	ErrLengthMismatch   = errors.New("frame: length mismatch")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrInvalidAddress   = errors.New("frame: invalid address")
	ErrResponseMismatch = errors.New("frame: response does not match request")
)

// FrameError describes why a byte sequence is not a valid frame.
type FrameError struct {
	Kind   error
	Detail string
}

func (e *FrameError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

// Unwrap returns the sentinel kind
func (e *FrameError) Unwrap() error {
	return e.Kind
}

func newFrameError(kind error, format string, args ...interface{}) *FrameError {
	return &FrameError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
