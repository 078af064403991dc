// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transactor runs request/response transactions on one RS485 bus.
//
// A transaction moves through CacheCheck, BreakerGate and Attempting(n)
// and ends in Success or Failure. Every attempt outcome is reported to the
// circuit breaker as it happens. Read classes are served from and stored
// into the response cache.
package transactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/buslink/pkg/breaker"
	"github.com/Thermoquad/buslink/pkg/cache"
	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/retry"
	"github.com/Thermoquad/buslink/pkg/transport"
)

// DefaultReadTimeout bounds one attempt's response read
const DefaultReadTimeout = 100 * time.Millisecond

// Outcome is the result of one transaction
type Outcome struct {
	Success   bool
	Payload   []byte
	Err       error
	Attempts  int
	Elapsed   time.Duration
	FromCache bool
}

// Transactor owns the breaker, retry manager and cache of one bus
type Transactor struct {
	channel     *transport.Channel
	breaker     *breaker.Breaker
	retries     *retry.Manager
	cache       *cache.ResponseCache
	metrics     *Metrics
	stats       *stats
	logger      *zap.Logger
	readTimeout time.Duration
	now         func() time.Time

	// fillMu orders cache fills against invalidations. A fill holds it
	// shared and only stores when no invalidation touched its address
	// since the exchange started.
	fillMu  sync.RWMutex
	epoch   uint64
	addrGen map[uint8]uint64
}

// fillToken identifies the invalidation state seen before an exchange
type fillToken struct {
	epoch, addr uint64
}

// Option configures a Transactor
type Option func(*Transactor)

// WithCache enables the response cache for read classes
func WithCache(c *cache.ResponseCache) Option {
	return func(t *Transactor) { t.cache = c }
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(t *Transactor) { t.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transactor) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithReadTimeout sets the per-attempt read deadline
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transactor) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(t *Transactor) { t.now = now }
}

// New creates a Transactor for the bus behind channel
func New(channel *transport.Channel, br *breaker.Breaker, retries *retry.Manager, opts ...Option) *Transactor {
	t := &Transactor{
		channel:     channel,
		breaker:     br,
		retries:     retries,
		logger:      zap.NewNop(),
		readTimeout: DefaultReadTimeout,
		now:         time.Now,
		addrGen:     make(map[uint8]uint64),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("transactor")
	t.stats = newStats(t.now)
	return t
}

// callOptions are per-call settings
type callOptions struct {
	priority    retry.Priority
	hasPriority bool
	bypass      bool
}

// CallOption adjusts one transaction
type CallOption func(*callOptions)

// WithPriority overrides the class retry priority for one call
func WithPriority(p retry.Priority) CallOption {
	return func(o *callOptions) {
		o.priority = p
		o.hasPriority = true
	}
}

// Bypass skips the cache lookup for one call. A successful response is
// still stored.
func Bypass() CallOption {
	return func(o *callOptions) { o.bypass = true }
}

// Transact sends one request and returns the response payload
func (t *Transactor) Transact(ctx context.Context, address, command uint8, payload []byte, class OperationClass, opts ...CallOption) ([]byte, error) {
	o := t.TransactOutcome(ctx, address, command, payload, class, opts...)
	if !o.Success {
		return nil, o.Err
	}
	return o.Payload, nil
}

// Send runs a typed request
func (t *Transactor) Send(ctx context.Context, req frame.Request, class OperationClass, opts ...CallOption) ([]byte, error) {
	return t.Transact(ctx, req.Address, req.Command, req.Payload, class, opts...)
}

// TransactOutcome sends one request and reports the full outcome
func (t *Transactor) TransactOutcome(ctx context.Context, address, command uint8, payload []byte, class OperationClass, opts ...CallOption) Outcome {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}
	if !co.hasPriority {
		co.priority = class.DefaultPriority()
	}

	start := t.now()
	out := t.run(ctx, address, command, payload, class, co, start)
	out.Elapsed = t.now().Sub(start)

	t.stats.recordOutcome(out)
	t.metrics.observeOutcome(class, outcomeLabel(out), out)
	return out
}

func (t *Transactor) run(ctx context.Context, address, command uint8, payload []byte, class OperationClass, co callOptions, start time.Time) Outcome {
	// Init
	req, _, err := frame.Encode(address, command, payload)
	if err != nil {
		return Outcome{Err: err}
	}

	// CacheCheck
	useCache := t.cache != nil && class.Cacheable()
	key := cacheKey(class, address, command, payload)
	if useCache && !co.bypass {
		if v, ok := t.cache.Get(ctx, key); ok {
			return Outcome{Success: true, Payload: v, FromCache: true}
		}
	}

	// BreakerGate
	if !t.breaker.AllowRequest() {
		t.logger.Debug("circuit open, request refused",
			zap.Uint8("address", address),
			zap.String("command", frame.FormatCommand(command)))
		return Outcome{Err: &CircuitOpenError{Elapsed: t.now().Sub(start), RetryIn: t.breaker.RetryIn()}}
	}

	var token fillToken
	if useCache {
		token = t.fillToken(address)
	}

	// Attempting(n)
	var resp []byte
	policy := t.retries.Policy(class.String(), co.priority)
	res, err := t.retries.ExecuteWithRetry(ctx, class.String(), policy, func(ctx context.Context, attempt int) error {
		if attempt > 0 && !t.breaker.AllowRequest() {
			return retry.Refuse(&CircuitOpenError{
				Attempts: attempt,
				Elapsed:  t.now().Sub(start),
				RetryIn:  t.breaker.RetryIn(),
			})
		}

		p, err := t.attempt(req)
		t.stats.recordAttempt(err)
		if err != nil {
			t.breaker.RecordFailure()
			t.metrics.observeAttempt(class, attemptErrorKind(err))
			return err
		}
		t.breaker.RecordSuccess()
		t.metrics.observeAttempt(class, "success")
		resp = p
		return nil
	})
	if err != nil {
		return Outcome{Err: err, Attempts: res.Attempts}
	}

	// Success
	if useCache {
		t.fill(ctx, token, address, key, class, resp)
	}
	if command == frame.CmdWriteSingleRegister && t.cache != nil {
		if err := t.invalidateDevice(ctx, address); err != nil {
			t.logger.Warn("cache invalidation after write failed", zap.Uint8("address", address), zap.Error(err))
		}
	}
	return Outcome{Success: true, Payload: resp, Attempts: res.Attempts}
}

func (t *Transactor) fillToken(address uint8) fillToken {
	t.fillMu.RLock()
	defer t.fillMu.RUnlock()
	return fillToken{epoch: t.epoch, addr: t.addrGen[address]}
}

// fill stores resp unless an invalidation covering address ran after token
// was taken. The response may predate a write and must not outlive it.
func (t *Transactor) fill(ctx context.Context, token fillToken, address uint8, key string, class OperationClass, resp []byte) {
	t.fillMu.RLock()
	defer t.fillMu.RUnlock()
	if t.epoch != token.epoch || t.addrGen[address] != token.addr {
		t.logger.Debug("dropping cache fill superseded by invalidation", zap.String("key", key))
		return
	}
	t.cache.Put(ctx, key, class.String(), resp)
}

// invalidateDevice drops every cached response of address
func (t *Transactor) invalidateDevice(ctx context.Context, address uint8) error {
	t.fillMu.Lock()
	defer t.fillMu.Unlock()
	t.addrGen[address]++
	return t.cache.Invalidate(ctx, fmt.Sprintf("*:%d:*", address))
}

// attempt performs one write/read/decode/validate cycle
func (t *Transactor) attempt(req *frame.Frame) ([]byte, error) {
	raw, err := t.channel.WriteThenRead(req, t.readTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := frame.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := frame.CheckResponse(req, resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// Invalidate drops cached responses whose keys match pattern
func (t *Transactor) Invalidate(ctx context.Context, pattern string) error {
	if t.cache == nil {
		return nil
	}
	t.fillMu.Lock()
	defer t.fillMu.Unlock()
	t.epoch++
	return t.cache.Invalidate(ctx, pattern)
}

// Breaker returns the bus circuit breaker
func (t *Transactor) Breaker() *breaker.Breaker {
	return t.breaker
}

// Statistics returns a snapshot of the transaction counters
func (t *Transactor) Statistics() Statistics {
	return t.stats.snapshot()
}

// ResetStatistics zeroes the transaction counters
func (t *Transactor) ResetStatistics() {
	t.stats.reset()
}

// Close closes the channel and the cache
func (t *Transactor) Close() error {
	var errs []error
	if err := t.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	if t.cache != nil {
		if err := t.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cacheKey(class OperationClass, address, command uint8, payload []byte) string {
	return fmt.Sprintf("%s:%d:%02x:%x", class, address, command, payload)
}

func outcomeLabel(o Outcome) string {
	var ex *retry.ExhaustedError
	switch {
	case o.FromCache:
		return "cache_hit"
	case o.Success:
		return "success"
	case errors.Is(o.Err, breaker.ErrOpen):
		return "circuit_open"
	case errors.As(o.Err, &ex):
		return "exhausted"
	default:
		return "error"
	}
}
