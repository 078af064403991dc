// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

// ============================================================
// Helpers
// ============================================================

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestManager(t *testing.T, s *recordingSleeper, opts ...Option) *Manager {
	t.Helper()
	reg, err := NewRegistry(DefaultPolicies())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	opts = append([]Option{WithSleep(s.sleep), WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return NewManager(reg, opts...)
}

var errAttempt = errors.New("attempt failed")

// ============================================================
// Attempt loop
// ============================================================

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	s := &recordingSleeper{}
	m := newTestManager(t, s)

	calls := 0
	res, err := m.ExecuteWithRetry(context.Background(), "default", m.Policy("default", PriorityNormal), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || res.Attempts != 1 || !res.Success {
		t.Errorf("calls=%d result=%+v", calls, res)
	}
	if len(s.delays) != 0 {
		t.Errorf("slept %v on success", s.delays)
	}
}

func TestExecute_AttemptsBoundedByMaxRetries(t *testing.T) {
	for _, maxRetries := range []int{1, 2, 3, 7} {
		s := &recordingSleeper{}
		m := newTestManager(t, s)
		p := Policy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}

		calls := 0
		res, err := m.ExecuteWithRetry(context.Background(), "test", p, func(ctx context.Context, attempt int) error {
			if attempt != calls {
				t.Errorf("attempt index %d, want %d", attempt, calls)
			}
			calls++
			return errAttempt
		})

		if calls != maxRetries {
			t.Errorf("max=%d: fn called %d times", maxRetries, calls)
		}
		if len(s.delays) != maxRetries-1 {
			t.Errorf("max=%d: slept %d times, want %d", maxRetries, len(s.delays), maxRetries-1)
		}

		var ex *ExhaustedError
		if !errors.As(err, &ex) {
			t.Fatalf("max=%d: want ExhaustedError, got %v", maxRetries, err)
		}
		if ex.Attempts != maxRetries || res.Attempts != maxRetries {
			t.Errorf("attempts=%d/%d, want %d", ex.Attempts, res.Attempts, maxRetries)
		}
		if !errors.Is(err, errAttempt) {
			t.Errorf("last error not preserved: %v", err)
		}
	}
}

func TestExecute_RecoversAfterFailures(t *testing.T) {
	s := &recordingSleeper{}
	m := newTestManager(t, s)
	p := Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	res, err := m.ExecuteWithRetry(context.Background(), "test", p, func(ctx context.Context, attempt int) error {
		if attempt < 2 {
			return errAttempt
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(s.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", s.delays, want)
	}
	for i := range want {
		if s.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, s.delays[i], want[i])
		}
	}
}

func TestExecute_PermanentStopsLoop(t *testing.T) {
	s := &recordingSleeper{}
	m := newTestManager(t, s)
	stop := errors.New("stop")

	calls := 0
	res, err := m.ExecuteWithRetry(context.Background(), "test", m.Policy("default", PriorityNormal), func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			return Permanent(stop)
		}
		return errAttempt
	})
	if err != stop {
		t.Fatalf("want unwrapped permanent error, got %v", err)
	}
	if calls != 2 || res.Attempts != 2 {
		t.Errorf("calls=%d attempts=%d, want 2", calls, res.Attempts)
	}
}

func TestExecute_RefusedAttemptNotCounted(t *testing.T) {
	s := &recordingSleeper{}
	m := newTestManager(t, s)
	gate := errors.New("gate closed")

	calls := 0
	res, err := m.ExecuteWithRetry(context.Background(), "test", m.Policy("default", PriorityNormal), func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 2 {
			return Refuse(gate)
		}
		return errAttempt
	})
	if err != gate {
		t.Fatalf("want unwrapped refusal, got %v", err)
	}
	if calls != 3 || res.Attempts != 2 {
		t.Errorf("calls=%d attempts=%d, want 3 calls and 2 attempts", calls, res.Attempts)
	}

	h := m.History()
	if len(h) != 1 || h[0].Attempts != 2 || h[0].Success {
		t.Errorf("history = %+v", h)
	}
}

func TestExecute_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &recordingSleeper{}
	m := newTestManager(t, s)

	calls := 0
	_, err := m.ExecuteWithRetry(ctx, "test", m.Policy("default", PriorityNormal), func(ctx context.Context, attempt int) error {
		calls++
		return errAttempt
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	s := &recordingSleeper{}
	m := newTestManager(t, s)

	v, err := Do(context.Background(), m, "telemetry", PriorityNormal, func(ctx context.Context, attempt int) ([]byte, error) {
		if attempt == 0 {
			return nil, errAttempt
		}
		return []byte{0x01, 0x02}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 2 {
		t.Errorf("value = %v", v)
	}
}

// ============================================================
// Delay
// ============================================================

func TestDelay_CappedAtMaxDelay(t *testing.T) {
	m := newTestManager(t, &recordingSleeper{})
	p := Policy{MaxRetries: 20, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2, Jitter: true}

	for attempt := 0; attempt < 64; attempt++ {
		d := m.Delay(p, attempt)
		if d < 0 || d > p.MaxDelay {
			t.Fatalf("attempt %d: delay %v outside [0, %v]", attempt, d, p.MaxDelay)
		}
	}
}

func TestDelay_JitterWithinTenPercent(t *testing.T) {
	m := newTestManager(t, &recordingSleeper{})
	p := Policy{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2, Jitter: true}

	for attempt := 0; attempt < 5; attempt++ {
		base := BaseDelay(p, attempt)
		lo := time.Duration(float64(base) * 0.9)
		hi := time.Duration(float64(base) * 1.1)
		for i := 0; i < 500; i++ {
			d := m.Delay(p, attempt)
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestDelay_NoJitterIsExact(t *testing.T) {
	m := newTestManager(t, &recordingSleeper{})
	p := Policy{MaxRetries: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, BackoffFactor: 1.5}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 15 * time.Millisecond},
		{2, 22500 * time.Microsecond},
		{10, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := m.Delay(p, tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// ============================================================
// Policies
// ============================================================

func TestPriority_Emergency(t *testing.T) {
	base := Policy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2, Jitter: true}
	p := PriorityEmergency.Apply(base)

	if p.MaxRetries < 5 {
		t.Errorf("MaxRetries = %d, want >= 5", p.MaxRetries)
	}
	if p.Jitter {
		t.Error("emergency policy should not jitter")
	}
	if p.BaseDelay != 10*time.Millisecond || p.MaxDelay != 100*time.Millisecond {
		t.Errorf("delays = %v/%v", p.BaseDelay, p.MaxDelay)
	}
}

func TestPriority_High(t *testing.T) {
	base := Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2, Jitter: true}
	p := PriorityHigh.Apply(base)

	if p.MaxRetries != 5 || p.BaseDelay != 50*time.Millisecond || p.MaxDelay != time.Second {
		t.Errorf("high policy = %+v", p)
	}
	if PriorityNormal.Apply(base) != base {
		t.Error("normal priority changed the policy")
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityNormal, false},
		{"normal", PriorityNormal, false},
		{"HIGH", PriorityHigh, false},
		{"emergency", PriorityEmergency, false},
		{"urgent", PriorityNormal, true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestRegistry_UnknownClassFallsBack(t *testing.T) {
	reg, err := NewRegistry(DefaultPolicies())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Lookup("no_such_class") != DefaultPolicies()[DefaultClass] {
		t.Error("unknown class did not use the default policy")
	}
	if reg.Lookup("emergency_stop").Jitter {
		t.Error("emergency_stop policy should not jitter")
	}
}

func TestRegistry_Rejects(t *testing.T) {
	if _, err := NewRegistry(map[string]Policy{"telemetry": DefaultPolicies()["telemetry"]}); err == nil {
		t.Error("registry without default accepted")
	}

	bad := DefaultPolicies()
	bad["telemetry"] = Policy{MaxRetries: 0, BackoffFactor: 2}
	if _, err := NewRegistry(bad); err == nil {
		t.Error("zero max_retries accepted")
	}
}

// ============================================================
// History
// ============================================================

func TestHistory_Bounded(t *testing.T) {
	s := &recordingSleeper{}
	m := newTestManager(t, s, WithHistorySize(3))
	p := Policy{MaxRetries: 1, BaseDelay: 0, MaxDelay: 0, BackoffFactor: 1}

	for i := 0; i < 5; i++ {
		_, _ = m.ExecuteWithRetry(context.Background(), "test", p, func(ctx context.Context, attempt int) error {
			if i%2 == 0 {
				return nil
			}
			return errAttempt
		})
	}

	h := m.History()
	if len(h) != 3 {
		t.Fatalf("history len = %d, want 3", len(h))
	}
	if !h[0].Success || h[1].Success || !h[2].Success {
		t.Errorf("history order wrong: %+v", h)
	}
}
