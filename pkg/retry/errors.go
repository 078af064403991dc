// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package retry

import (
	"errors"
	"fmt"
	"time"
)

// ExhaustedError is returned when every attempt failed
type ExhaustedError struct {
	LastErr  error
	Attempts int
	Elapsed  time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts in %v: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastErr)
}

// Unwrap returns the last attempt error
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// permanentError stops the attempt loop
type permanentError struct {
	err     error
	refused bool
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so ExecuteWithRetry returns it at once without
// further attempts. The wrapper is removed before the error is returned.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Refuse wraps err like Permanent, for an attempt that stopped before doing
// any work. The refused attempt is not counted in Result.Attempts.
func Refuse(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err, refused: true}
}

func isPermanent(err error) (cause error, refused, ok bool) {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err, p.refused, true
	}
	return err, false, false
}
