// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cache provides a two-level TTL cache for bus responses.
//
// The fast tier is an in-process bigcache. The shared tier is Redis or an
// in-memory map. Both tiers hold CBOR envelopes carrying the value and its
// absolute expiry, so an entry copied from the shared tier into the fast
// tier keeps its original deadline.
package cache

import "time"

// Data classes
const (
	ClassRobotStatus   = "robot_status"
	ClassTelemetry     = "telemetry"
	ClassSafetyStatus  = "safety_status"
	ClassModules       = "modules"
	ClassBattery       = "battery"
	ClassConfiguration = "configuration"
)

// DefaultTTL applies to unclassified keys
const DefaultTTL = time.Second

// DefaultTTLs returns the built-in per-class TTLs
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		ClassRobotStatus:   500 * time.Millisecond,
		ClassTelemetry:     200 * time.Millisecond,
		ClassSafetyStatus:  time.Second,
		ClassModules:       5 * time.Second,
		ClassBattery:       2 * time.Second,
		ClassConfiguration: 30 * time.Second,
	}
}
