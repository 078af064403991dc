// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package breaker

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock) *Breaker {
	return New(DefaultConfig(), WithClock(clock.Now))
}

// ============================================================
// Closed State Tests
// ============================================================

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	s := b.Snapshot()
	if s.State != Closed {
		t.Errorf("initial state should be closed, got %v", s.State)
	}
	if s.FailureThreshold != 5 || s.SuccessThreshold != 3 || s.RecoveryTimeout != 60*time.Second {
		t.Errorf("unexpected defaults: %+v", s)
	}
}

func TestClosed_AllowsRequests(t *testing.T) {
	b := newTestBreaker(newFakeClock())
	for i := 0; i < 10; i++ {
		if !b.AllowRequest() {
			t.Fatal("closed breaker should allow requests")
		}
	}
}

func TestClosed_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != Closed {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("breaker should open after 5 failures, got %v", b.State())
	}
	if !b.Snapshot().LastFailure.Equal(clock.Now()) {
		t.Error("last failure time should be recorded on open")
	}

	clock.Advance(59 * time.Second)
	if b.AllowRequest() {
		t.Error("open breaker should reject requests before recovery timeout")
	}
}

func TestClosed_SuccessResetsFailures(t *testing.T) {
	b := newTestBreaker(newFakeClock())
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	if b.Snapshot().FailureCount != 0 {
		t.Errorf("success should reset failure count, got %d", b.Snapshot().FailureCount)
	}
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != Closed {
		t.Error("non-consecutive failures should not open the breaker")
	}
}

// ============================================================
// Recovery Tests
// ============================================================

func openBreaker(b *Breaker) {
	for i := 0; i < b.Snapshot().FailureThreshold; i++ {
		b.RecordFailure()
	}
}

func TestOpen_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	openBreaker(b)

	clock.Advance(60 * time.Second)
	if !b.AllowRequest() {
		t.Fatal("breaker should allow a probe after recovery timeout")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}
	if b.Snapshot().SuccessCount != 0 {
		t.Error("success count should reset on half-open")
	}
	if !b.AllowRequest() {
		t.Error("half-open breaker should allow requests")
	}
}

func TestHalfOpen_ClosesAfterSuccesses(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	openBreaker(b)
	clock.Advance(time.Minute)
	b.AllowRequest()

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after 2 successes, got %v", b.State())
	}
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected closed after 3 successes, got %v", b.State())
	}
	s := b.Snapshot()
	if s.FailureCount != 0 || s.SuccessCount != 0 {
		t.Errorf("counters should reset on close: %+v", s)
	}
}

func TestHalfOpen_FailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	openBreaker(b)
	clock.Advance(time.Minute)
	b.AllowRequest()
	b.RecordSuccess()

	clock.Advance(time.Second)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("single failure in half-open should reopen, got %v", b.State())
	}
	if !b.Snapshot().LastFailure.Equal(clock.Now()) {
		t.Error("reopen should record the failure time")
	}
	if b.AllowRequest() {
		t.Error("reopened breaker should reject until the next recovery timeout")
	}
}

// ============================================================
// Operator Control Tests
// ============================================================

func TestForceOpenAndReset(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	b.ForceOpen()
	if b.State() != Open || b.AllowRequest() {
		t.Fatal("ForceOpen should reject requests")
	}
	clock.Advance(10 * time.Second)
	if b.OpenFor() != 10*time.Second {
		t.Errorf("OpenFor = %v, want 10s", b.OpenFor())
	}

	b.ForceReset()
	if b.State() != Closed || !b.AllowRequest() {
		t.Fatal("ForceReset should close the breaker")
	}
	if b.OpenFor() != 0 {
		t.Error("OpenFor should be 0 when closed")
	}
}

func TestOpen_RetryInCountsDown(t *testing.T) {
	clock := newFakeClock()
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 1}, WithClock(clock.Now))

	if b.RetryIn() != 0 {
		t.Error("RetryIn should be 0 when closed")
	}

	b.RecordFailure()
	if b.RetryIn() != 60*time.Second {
		t.Errorf("RetryIn = %v, want 60s", b.RetryIn())
	}

	clock.Advance(50 * time.Second)
	if b.RetryIn() != 10*time.Second {
		t.Errorf("RetryIn = %v, want 10s", b.RetryIn())
	}

	clock.Advance(20 * time.Second)
	if b.RetryIn() != 0 {
		t.Errorf("RetryIn = %v past recovery, want 0", b.RetryIn())
	}
}

func TestTransitionHook(t *testing.T) {
	clock := newFakeClock()
	var got []State
	b := New(DefaultConfig(), WithClock(clock.Now), WithTransitionHook(func(from, to State) {
		got = append(got, to)
	}))

	openBreaker(b)
	clock.Advance(time.Minute)
	b.AllowRequest()
	for i := 0; i < 3; i++ {
		b.RecordSuccess()
	}

	want := []State{Open, HalfOpen, Closed}
	if len(got) != len(want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConcurrentFailures(t *testing.T) {
	b := New(Config{FailureThreshold: 100, RecoveryTimeout: time.Hour, SuccessThreshold: 1})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.AllowRequest()
			b.RecordFailure()
		}()
	}
	wg.Wait()

	if b.State() != Open {
		t.Errorf("100 concurrent failures should open the breaker, got %v", b.State())
	}
}

func TestStateString(t *testing.T) {
	if Closed.String() != "closed" || Open.String() != "open" || HalfOpen.String() != "half_open" {
		t.Error("unexpected state names")
	}
}
