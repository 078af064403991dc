// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package breaker implements a circuit breaker for one logical bus.
//
// The breaker counts consecutive failures independently of which command
// failed. After FailureThreshold failures it opens and rejects requests
// until RecoveryTimeout has passed, then lets traffic through in half-open
// state until SuccessThreshold consecutive successes close it again.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is matched by errors returned when the breaker rejects a request
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state
type State int

// Breaker states
const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds breaker thresholds
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// DefaultConfig returns threshold 5, recovery 60s, success threshold 3
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
	}
}

// Snapshot is a point-in-time view of the breaker
type Snapshot struct {
	State            State
	FailureCount     int
	SuccessCount     int
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	LastFailure      time.Time
}

// TransitionFunc is called after every state change, outside the lock
type TransitionFunc func(from, to State)

// Breaker is safe for concurrent use
type Breaker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	lastFailure  time.Time

	onTransition TransitionFunc
}

// Option configures a Breaker
type Option func(*Breaker)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTransitionHook registers fn to observe state changes
func WithTransitionHook(fn TransitionFunc) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New creates a closed breaker. Zero config fields take the defaults.
func New(cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}

	b := &Breaker{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.Named("breaker")
	return b
}

// AllowRequest reports whether a request may touch the bus.
// In Open state, the first call after RecoveryTimeout moves the breaker to
// HalfOpen and returns true.
func (b *Breaker) AllowRequest() bool {
	b.mu.Lock()
	var from State
	allowed := true
	changed := false

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
			from = b.state
			b.state = HalfOpen
			b.successCount = 0
			changed = true
		} else {
			allowed = false
		}
	}
	b.mu.Unlock()

	if changed {
		b.transitioned(from, HalfOpen)
	}
	return allowed
}

// RecordSuccess records a successful exchange
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var from State
	changed := false

	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			from = b.state
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
			changed = true
		}
	}
	b.mu.Unlock()

	if changed {
		b.transitioned(from, Closed)
	}
}

// RecordFailure records a failed exchange
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var from State
	changed := false
	now := b.now()

	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			from = b.state
			b.state = Open
			b.lastFailure = now
			changed = true
		}
	case HalfOpen:
		b.failureCount++
		from = b.state
		b.state = Open
		b.lastFailure = now
		b.successCount = 0
		changed = true
	case Open:
		// A request admitted just before the breaker opened
		b.failureCount++
		b.lastFailure = now
	}
	b.mu.Unlock()

	if changed {
		b.transitioned(from, Open)
	}
}

// ForceReset closes the breaker and clears all counters
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	if from != Closed {
		b.transitioned(from, Closed)
	}
}

// ForceOpen opens the breaker as if a failure had just been recorded
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	from := b.state
	b.state = Open
	b.successCount = 0
	b.lastFailure = b.now()
	b.mu.Unlock()

	if from != Open {
		b.transitioned(from, Open)
	}
}

// State returns the current state without advancing it
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OpenFor returns how long the breaker has been open, or 0 if it is not open
func (b *Breaker) OpenFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	return b.now().Sub(b.lastFailure)
}

// RetryIn returns how long until an open breaker admits a half-open probe,
// or 0 if it is not open or the recovery timeout has passed
func (b *Breaker) RetryIn() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	remaining := b.cfg.RecoveryTimeout - b.now().Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns the breaker state and counters
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		FailureThreshold: b.cfg.FailureThreshold,
		SuccessThreshold: b.cfg.SuccessThreshold,
		RecoveryTimeout:  b.cfg.RecoveryTimeout,
		LastFailure:      b.lastFailure,
	}
}

func (b *Breaker) transitioned(from, to State) {
	switch to {
	case Open:
		b.logger.Warn("circuit opened", zap.Stringer("from", from), zap.Int("failure_threshold", b.cfg.FailureThreshold))
	default:
		b.logger.Info("circuit state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
