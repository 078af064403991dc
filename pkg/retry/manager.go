// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package retry runs attempt loops with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	jitterFraction     = 0.10
	defaultHistorySize = 1000
)

// Result summarises one ExecuteWithRetry call
type Result struct {
	Class    string
	Success  bool
	Attempts int
	Elapsed  time.Duration
	LastErr  error
	At       time.Time
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Manager executes attempt functions under a Policy
type Manager struct {
	registry *Registry
	logger   *zap.Logger
	sleep    SleepFunc
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	histMu      sync.Mutex
	history     []Result
	historySize int
}

// Option configures a Manager
type Option func(*Manager)

// WithSleep replaces the sleeper, for tests
func WithSleep(fn SleepFunc) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithRand sets the jitter source
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHistorySize bounds the retained Result history
func WithHistorySize(n int) Option {
	return func(m *Manager) { m.historySize = n }
}

// NewManager creates a manager over registry
func NewManager(registry *Registry, opts ...Option) *Manager {
	m := &Manager{
		registry:    registry,
		logger:      zap.NewNop(),
		sleep:       sleepContext,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		historySize: defaultHistorySize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("retry")
	return m
}

// Registry returns the policy registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Policy returns the policy for class at priority
func (m *Manager) Policy(class string, priority Priority) Policy {
	return m.registry.For(class, priority)
}

// BaseDelay returns min(MaxDelay, BaseDelay * BackoffFactor^attempt) where
// attempt is the zero-based index of the attempt that just failed
func BaseDelay(p Policy, attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if d > float64(p.MaxDelay) || math.IsInf(d, 1) || math.IsNaN(d) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Delay returns the sleep after the zero-based attempt, with jitter of up
// to ±10% when the policy asks for it. The result stays within
// [0, MaxDelay].
func (m *Manager) Delay(p Policy, attempt int) time.Duration {
	d := BaseDelay(p, attempt)
	if !p.Jitter || d <= 0 {
		return d
	}

	m.rngMu.Lock()
	u := m.rng.Float64()*2 - 1
	m.rngMu.Unlock()

	jittered := time.Duration(float64(d) * (1 + u*jitterFraction))
	if jittered < 0 {
		jittered = 0
	}
	if jittered > p.MaxDelay {
		jittered = p.MaxDelay
	}
	return jittered
}

// AttemptFunc is one attempt. attempt is zero-based.
type AttemptFunc func(ctx context.Context, attempt int) error

// ExecuteWithRetry calls fn up to p.MaxRetries times, sleeping between
// failed attempts but never after the last one.
//
// On success the returned error is nil. If fn returns an error wrapped with
// Permanent or Refuse, the loop stops and that error is returned unwrapped.
// A refused attempt is not counted. When
// every attempt fails the error is an *ExhaustedError carrying the last
// attempt error. A context cancelled during a sleep stops the loop.
func (m *Manager) ExecuteWithRetry(ctx context.Context, class string, p Policy, fn AttemptFunc) (Result, error) {
	start := m.now()
	maxAttempts := p.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	res := Result{Class: class, At: start}
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		res.Attempts = attempt + 1

		err := fn(ctx, attempt)
		if err == nil {
			res.Success = true
			res.Elapsed = m.now().Sub(start)
			m.record(res)
			return res, nil
		}

		if cause, refused, ok := isPermanent(err); ok {
			if refused {
				res.Attempts = attempt
			}
			res.LastErr = cause
			res.Elapsed = m.now().Sub(start)
			m.record(res)
			return res, cause
		}

		lastErr = err
		m.logger.Debug("attempt failed",
			zap.String("class", class),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if attempt == maxAttempts-1 {
			break
		}

		delay := m.Delay(p, attempt)
		if err := m.sleep(ctx, delay); err != nil {
			res.LastErr = lastErr
			res.Elapsed = m.now().Sub(start)
			m.record(res)
			return res, fmt.Errorf("retry aborted after %d attempts: %w", res.Attempts, err)
		}
	}

	res.LastErr = lastErr
	res.Elapsed = m.now().Sub(start)
	m.record(res)

	m.logger.Warn("retries exhausted",
		zap.String("class", class),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", res.Elapsed),
		zap.Error(lastErr))

	return res, &ExhaustedError{LastErr: lastErr, Attempts: res.Attempts, Elapsed: res.Elapsed}
}

// Do runs fn under the class policy at priority and returns its value
func Do[T any](ctx context.Context, m *Manager, class string, priority Priority, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	_, err := m.ExecuteWithRetry(ctx, class, m.Policy(class, priority), func(ctx context.Context, attempt int) error {
		v, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// History returns the retained results, oldest first
func (m *Manager) History() []Result {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	out := make([]Result, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) record(r Result) {
	if m.historySize <= 0 {
		return
	}
	m.histMu.Lock()
	defer m.histMu.Unlock()
	m.history = append(m.history, r)
	if len(m.history) > m.historySize {
		m.history = append(m.history[:0], m.history[len(m.history)-m.historySize:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
