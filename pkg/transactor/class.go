// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transactor

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/buslink/pkg/cache"
	"github.com/Thermoquad/buslink/pkg/retry"
)

// OperationClass selects the retry policy and cache TTL of a transaction.
// The set is closed; unknown names are rejected by ParseOperationClass.
type OperationClass int

// Operation classes
const (
	ClassDefault OperationClass = iota
	ClassRobotStatus
	ClassTelemetry
	ClassSafetyStatus
	ClassModules
	ClassBattery
	ClassConfiguration
	ClassMotion
	ClassEmergencyStop
)

var classNames = map[OperationClass]string{
	ClassDefault:       retry.DefaultClass,
	ClassRobotStatus:   cache.ClassRobotStatus,
	ClassTelemetry:     cache.ClassTelemetry,
	ClassSafetyStatus:  cache.ClassSafetyStatus,
	ClassModules:       cache.ClassModules,
	ClassBattery:       cache.ClassBattery,
	ClassConfiguration: cache.ClassConfiguration,
	ClassMotion:        "motion",
	ClassEmergencyStop: "emergency_stop",
}

func (c OperationClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Cacheable reports whether responses of this class are read-mostly data
// that may be served from the cache
func (c OperationClass) Cacheable() bool {
	switch c {
	case ClassRobotStatus, ClassTelemetry, ClassSafetyStatus, ClassModules, ClassBattery, ClassConfiguration:
		return true
	default:
		return false
	}
}

// DefaultPriority is the retry priority used when the caller sets none
func (c OperationClass) DefaultPriority() retry.Priority {
	if c == ClassEmergencyStop {
		return retry.PriorityEmergency
	}
	return retry.PriorityNormal
}

// ParseOperationClass parses a class name such as "telemetry"
func ParseOperationClass(s string) (OperationClass, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return ClassDefault, nil
	}
	for c, n := range classNames {
		if n == name {
			return c, nil
		}
	}
	return ClassDefault, fmt.Errorf("unknown operation class %q", s)
}

// Classes returns every operation class in declaration order
func Classes() []OperationClass {
	out := make([]OperationClass, 0, len(classNames))
	for c := ClassDefault; c <= ClassEmergencyStop; c++ {
		out = append(out, c)
	}
	return out
}
