// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transactor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/buslink/pkg/breaker"
	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/transport"
)

// Statistics tracks transaction outcomes and per-attempt error kinds
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Transactions
	Transactions uint64
	Succeeded    uint64
	Failed       uint64
	CacheHits    uint64
	CircuitOpen  uint64

	// Attempts
	Attempts         uint64
	Timeouts         uint64
	IOErrors         uint64
	CRCErrors        uint64
	FrameErrors      uint64
	ResponseMismatch uint64

	TotalElapsed time.Duration

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // failed attempts/sec
}

// stats guards a Statistics value shared by concurrent transactions
type stats struct {
	mu  sync.Mutex
	s   Statistics
	now func() time.Time
}

func newStats(now func() time.Time) *stats {
	t := now()
	return &stats{s: Statistics{StartTime: t, LastUpdateTime: t}, now: now}
}

func (st *stats) recordOutcome(o Outcome) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.Transactions++
	st.s.TotalElapsed += o.Elapsed
	switch {
	case o.FromCache:
		st.s.CacheHits++
		st.s.Succeeded++
	case o.Success:
		st.s.Succeeded++
	default:
		st.s.Failed++
		if errors.Is(o.Err, breaker.ErrOpen) {
			st.s.CircuitOpen++
		}
	}
	st.s.LastUpdateTime = st.now()
}

// recordAttempt counts one bus attempt. err is nil on success.
func (st *stats) recordAttempt(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.Attempts++
	if err == nil {
		return
	}
	switch attemptErrorKind(err) {
	case "timeout":
		st.s.Timeouts++
	case "io":
		st.s.IOErrors++
	case "crc":
		st.s.CRCErrors++
	case "mismatch":
		st.s.ResponseMismatch++
	default:
		st.s.FrameErrors++
	}
}

func (st *stats) snapshot() Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.s
	out.calculateRates(st.now())
	return out
}

func (st *stats) reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	t := st.now()
	st.s = Statistics{StartTime: t, LastUpdateTime: t}
}

func (s *Statistics) calculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		errorCount := s.Timeouts + s.IOErrors + s.CRCErrors + s.FrameErrors + s.ResponseMismatch
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// SuccessRate returns the percentage of successful transactions
func (s Statistics) SuccessRate() float64 {
	if s.Transactions == 0 {
		return 0
	}
	return float64(s.Succeeded) * 100.0 / float64(s.Transactions)
}

// AverageLatency returns the mean transaction time
func (s Statistics) AverageLatency() time.Duration {
	if s.Transactions == 0 {
		return 0
	}
	return s.TotalElapsed / time.Duration(s.Transactions)
}

// String returns a formatted statistics summary
func (s Statistics) String() string {
	var b strings.Builder
	elapsed := s.LastUpdateTime.Sub(s.StartTime)

	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Transactions:    %8d\n", s.Transactions)
	fmt.Fprintf(&b, "Succeeded:       %8d (%.1f%%)\n", s.Succeeded, s.SuccessRate())
	if s.CacheHits > 0 {
		fmt.Fprintf(&b, "  Cache Hits:     %7d\n", s.CacheHits)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "Failed:          %8d\n", s.Failed)
		if s.CircuitOpen > 0 {
			fmt.Fprintf(&b, "  Circuit Open:   %7d\n", s.CircuitOpen)
		}
	}
	fmt.Fprintf(&b, "Attempts:        %8d\n", s.Attempts)
	if s.Timeouts > 0 {
		fmt.Fprintf(&b, "  Timeouts:       %7d\n", s.Timeouts)
	}
	if s.CRCErrors > 0 {
		fmt.Fprintf(&b, "  CRC Errors:     %7d\n", s.CRCErrors)
	}
	if s.FrameErrors > 0 {
		fmt.Fprintf(&b, "  Frame Errors:   %7d\n", s.FrameErrors)
	}
	if s.ResponseMismatch > 0 {
		fmt.Fprintf(&b, "  Mismatches:     %7d\n", s.ResponseMismatch)
	}
	if s.IOErrors > 0 {
		fmt.Fprintf(&b, "  I/O Errors:     %7d\n", s.IOErrors)
	}
	fmt.Fprintf(&b, "Avg Latency:     %8v\n", s.AverageLatency().Round(time.Microsecond))
	fmt.Fprintf(&b, "Transaction Rate:%8.1f tx/sec\n", s.TransactionRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// attemptErrorKind labels a failed attempt for statistics and metrics
func attemptErrorKind(err error) string {
	switch {
	case errors.Is(err, transport.ErrTimeout):
		return "timeout"
	case errors.Is(err, transport.ErrIoFailure), errors.Is(err, transport.ErrClosed):
		return "io"
	case errors.Is(err, frame.ErrCrcMismatch):
		return "crc"
	case errors.Is(err, frame.ErrResponseMismatch):
		return "mismatch"
	default:
		return "frame"
	}
}
