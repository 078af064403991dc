// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package retry

import (
	"fmt"
	"strings"
	"time"
)

// Policy is an immutable backoff policy for one operation class.
// MaxRetries is the total number of attempts, not the number of retries
// after the first attempt.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// Validate checks that the policy can drive an attempt loop
func (p Policy) Validate() error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1, got %d", p.MaxRetries)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max_delay %v is below base_delay %v", p.MaxDelay, p.BaseDelay)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1, got %v", p.BackoffFactor)
	}
	return nil
}

// Priority selects a per-call override of the class policy
type Priority int

// Priorities
const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityEmergency
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses "normal", "high" or "emergency"
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "emergency":
		return PriorityEmergency, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}

// Emergency override values
const (
	emergencyMinRetries = 5
	emergencyBaseDelay  = 10 * time.Millisecond
	emergencyMaxDelay   = 100 * time.Millisecond
	emergencyFactor     = 1.5
)

// Apply returns the policy to use for one call at priority p
func (p Priority) Apply(base Policy) Policy {
	switch p {
	case PriorityEmergency:
		retries := base.MaxRetries + 2
		if retries < emergencyMinRetries {
			retries = emergencyMinRetries
		}
		return Policy{
			MaxRetries:    retries,
			BaseDelay:     emergencyBaseDelay,
			MaxDelay:      emergencyMaxDelay,
			BackoffFactor: emergencyFactor,
			Jitter:        false,
		}
	case PriorityHigh:
		out := base
		out.MaxRetries += 2
		out.BaseDelay /= 2
		out.MaxDelay /= 2
		return out
	default:
		return base
	}
}

// DefaultClass names the fallback policy
const DefaultClass = "default"

// DefaultPolicies returns the built-in per-class policies
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		DefaultClass:     {MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2.0, Jitter: true},
		"robot_status":   {MaxRetries: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffFactor: 2.0, Jitter: true},
		"telemetry":      {MaxRetries: 2, BaseDelay: 50 * time.Millisecond, MaxDelay: 200 * time.Millisecond, BackoffFactor: 2.0, Jitter: true},
		"safety_status":  {MaxRetries: 3, BaseDelay: 20 * time.Millisecond, MaxDelay: 200 * time.Millisecond, BackoffFactor: 2.0, Jitter: true},
		"modules":        {MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2.0, Jitter: true},
		"battery":        {MaxRetries: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2.0, Jitter: true},
		"configuration":  {MaxRetries: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, BackoffFactor: 2.0, Jitter: true},
		"motion":         {MaxRetries: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffFactor: 2.0, Jitter: true},
		"emergency_stop": {MaxRetries: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, BackoffFactor: 1.5, Jitter: false},
	}
}

// Registry maps operation classes to policies. It is read-only after
// construction.
type Registry struct {
	policies map[string]Policy
	fallback Policy
}

// NewRegistry builds a registry. policies must contain DefaultClass.
func NewRegistry(policies map[string]Policy) (*Registry, error) {
	fallback, ok := policies[DefaultClass]
	if !ok {
		return nil, fmt.Errorf("retry registry needs a %q policy", DefaultClass)
	}

	copied := make(map[string]Policy, len(policies))
	for class, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", class, err)
		}
		copied[class] = p
	}
	return &Registry{policies: copied, fallback: fallback}, nil
}

// Lookup returns the class policy, or the default policy for unknown classes
func (r *Registry) Lookup(class string) Policy {
	if p, ok := r.policies[class]; ok {
		return p
	}
	return r.fallback
}

// For returns the class policy with the priority override applied
func (r *Registry) For(class string, priority Priority) Policy {
	return priority.Apply(r.Lookup(class))
}
