// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Buslink - RS485 Transaction Client
//
// A CLI tool for request/response transactions with bus controllers,
// guarded by a circuit breaker, per-class retry policies and a response
// cache.

package main

import (
	"errors"
	"os"

	"github.com/Thermoquad/buslink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
