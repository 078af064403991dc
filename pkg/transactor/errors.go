// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transactor

import (
	"fmt"
	"time"

	"github.com/Thermoquad/buslink/pkg/breaker"
)

// CircuitOpenError is returned without bus I/O while the breaker is open.
// Attempts is the number of attempts made before the breaker refused the
// next one; it is zero when the gate refused the call outright.
type CircuitOpenError struct {
	Attempts int
	Elapsed  time.Duration
	RetryIn  time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("circuit open after %d attempts (retry in %v)", e.Attempts, e.RetryIn.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit open (retry in %v)", e.RetryIn.Round(time.Millisecond))
}

// Is matches breaker.ErrOpen
func (e *CircuitOpenError) Is(target error) bool {
	return target == breaker.ErrOpen
}
