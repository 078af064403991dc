// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/transactor"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test connection by pinging one device",
	Long: `Send a PING to one device and wait for its acknowledgement.

The ping uses the retry policy of the default class and goes through the
circuit breaker, so a dead bus is reported after the configured attempts.

Exit codes:
  0 - Acknowledgement received
  1 - No valid acknowledgement
  2 - Connection error`,
	RunE: runPing,
}

var pingAddress uint8

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().Uint8VarP(&pingAddress, "address", "a", 1, "Device address (1-247)")
}

func runPing(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, nil)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	fmt.Printf("Buslink - Ping\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Address: %d\n\n", pingAddress)

	req := frame.NewPing(pingAddress)
	o := s.tx.TransactOutcome(context.Background(), req.Address, req.Command, req.Payload, transactor.ClassDefault)
	if !o.Success {
		fmt.Printf("%s\n", describeFailure(o.Err))
		return exitError(1, errors.New("no acknowledgement"))
	}

	fmt.Printf("SUCCESS: Acknowledged\n")
	fmt.Printf("  Attempts: %d\n", o.Attempts)
	fmt.Printf("  Round trip: %v\n", o.Elapsed)
	if len(o.Payload) > 0 {
		fmt.Printf("  Payload: %s\n", frame.FormatHex(o.Payload))
	}
	return nil
}
