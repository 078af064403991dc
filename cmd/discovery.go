// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/retry"
	"github.com/Thermoquad/buslink/pkg/transactor"
)

var (
	discoveryFrom uint8
	discoveryTo   uint8
	discoveryInfo bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Scan an address range for responding devices",
	Long: `Ping every address in --from..--to and list the devices that answer.

Each address gets the attempts of the default class. The circuit breaker is
reset between addresses, so silent addresses do not stop the scan.

With --info, devices that answer are asked for GET_INFO and the payload is
printed as hex.

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().Uint8Var(&discoveryFrom, "from", frame.AddressMin, "First address")
	discoveryCmd.Flags().Uint8Var(&discoveryTo, "to", 32, "Last address")
	discoveryCmd.Flags().BoolVar(&discoveryInfo, "info", false, "Request GET_INFO from found devices")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if discoveryFrom < frame.AddressMin || discoveryTo > frame.AddressMax || discoveryFrom > discoveryTo {
		return fmt.Errorf("address range must be within %d-%d", frame.AddressMin, frame.AddressMax)
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	fmt.Printf("Buslink - Device Discovery\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Range: %d-%d\n\n", discoveryFrom, discoveryTo)

	ctx := context.Background()
	found := 0
	for addr := int(discoveryFrom); addr <= int(discoveryTo); addr++ {
		s.tx.Breaker().ForceReset()

		req := frame.NewPing(uint8(addr))
		o := s.tx.TransactOutcome(ctx, req.Address, req.Command, req.Payload, transactor.ClassDefault)
		if !o.Success {
			continue
		}
		found++
		fmt.Printf("  %3d  responded in %v (%d attempt(s))\n", addr, o.Elapsed, o.Attempts)

		if discoveryInfo {
			info, err := s.tx.Send(ctx, frame.NewGetInfo(uint8(addr)), transactor.ClassModules, transactor.WithPriority(retry.PriorityHigh))
			if err != nil {
				fmt.Printf("       info: %s\n", describeFailure(err))
				continue
			}
			fmt.Printf("       info: %s\n", frame.FormatHex(info))
		}
	}

	fmt.Printf("\nFound %d device(s)\n", found)
	if found == 0 {
		return exitError(1, errors.New("no devices found"))
	}
	return nil
}
