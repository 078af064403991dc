// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transactor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/buslink/pkg/breaker"
)

// Metrics exports transaction counters to Prometheus
type Metrics struct {
	transactions *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	breakerState prometheus.Gauge
	transitions  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "transactor",
			Name:      "transactions_total",
			Help:      "Total number of transactions",
		}, []string{"class", "result"}), // result: success/cache_hit/exhausted/circuit_open/error

		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "transactor",
			Name:      "attempts_total",
			Help:      "Total number of bus attempts",
		}, []string{"class", "result"}), // result: success/timeout/io/crc/mismatch/frame

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "buslink",
			Subsystem: "transactor",
			Name:      "transaction_duration_seconds",
			Help:      "Duration of transactions including retries",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms ~ 8.2s
		}, []string{"class"}),

		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "buslink",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		}),

		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "buslink",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker transitions",
		}, []string{"to"}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.transactions, m.attempts, m.duration, m.breakerState, m.transitions}
}

func (m *Metrics) observeOutcome(class OperationClass, result string, o Outcome) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(class.String(), result).Inc()
	m.duration.WithLabelValues(class.String()).Observe(o.Elapsed.Seconds())
}

func (m *Metrics) observeAttempt(class OperationClass, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(class.String(), result).Inc()
}

// BreakerTransition records a breaker state change. It matches
// breaker.TransitionFunc so it can be passed to breaker.WithTransitionHook.
func (m *Metrics) BreakerTransition(_, to breaker.State) {
	if m == nil {
		return
	}
	m.breakerState.Set(float64(to))
	m.transitions.WithLabelValues(to.String()).Inc()
}
