// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/buslink/pkg/breaker"
	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/retry"
	"github.com/Thermoquad/buslink/pkg/transactor"
)

var (
	// transact
	transactCommand string
	transactPayload string
	transactCount   int
	transactEvery   time.Duration

	// read
	readStart    uint16
	readQuantity uint16
	readInput    bool

	// write
	writeRegister uint16
	writeValue    uint16
)

var transactCmd = &cobra.Command{
	Use:   "transact",
	Short: "Send one raw request and print the response payload",
	Long: `Send a request frame and print the response payload as hex.

The request goes through the cache (for read classes), the circuit breaker
and the retry policy of --class.

Examples:
  buslink transact --port /dev/ttyUSB0 --address 2 --command 0x01
  buslink transact -p /dev/ttyUSB0 -a 2 --command 0x03 --payload 0000000A --class telemetry

Exit codes:
  0 - Response received
  1 - Transaction failed (retries exhausted or circuit open)
  2 - Connection error`,
	RunE: runTransact,
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read holding or input registers",
	RunE:  runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a single register",
	Long: `Write one register. A successful write drops cached responses from
the same device.`,
	RunE: runWrite,
}

// addRequestFlags adds the flags every request command shares. They are
// read back per command since their defaults differ.
func addRequestFlags(cmd *cobra.Command, defaultClass string) {
	cmd.Flags().Uint8P("address", "a", 1, "Device address (1-247)")
	cmd.Flags().String("class", defaultClass, "Operation class")
	cmd.Flags().String("priority", "normal", "Retry priority (normal, high, emergency)")
	cmd.Flags().Bool("no-cache", false, "Skip the response cache")
}

func init() {
	rootCmd.AddCommand(transactCmd, readCmd, writeCmd)

	addRequestFlags(transactCmd, "default")
	transactCmd.Flags().StringVar(&transactCommand, "command", "0x01", "Command byte")
	transactCmd.Flags().StringVar(&transactPayload, "payload", "", "Payload as hex")
	transactCmd.Flags().IntVar(&transactCount, "count", 1, "Number of transactions")
	transactCmd.Flags().DurationVar(&transactEvery, "interval", time.Second, "Delay between transactions")

	addRequestFlags(readCmd, "telemetry")
	readCmd.Flags().Uint16Var(&readStart, "start", 0, "First register")
	readCmd.Flags().Uint16Var(&readQuantity, "quantity", 1, "Number of registers")
	readCmd.Flags().BoolVar(&readInput, "input", false, "Read input registers instead of holding registers")

	addRequestFlags(writeCmd, "default")
	writeCmd.Flags().Uint16Var(&writeRegister, "register", 0, "Register number")
	writeCmd.Flags().Uint16Var(&writeValue, "value", 0, "Register value")
}

// requestTarget is what the request flags of one command resolve to
type requestTarget struct {
	address uint8
	class   transactor.OperationClass
	opts    []transactor.CallOption
}

// parseRequestFlags resolves --address, --class, --priority and --no-cache
func parseRequestFlags(cmd *cobra.Command) (requestTarget, error) {
	flags := cmd.Flags()
	address, err := flags.GetUint8("address")
	if err != nil {
		return requestTarget{}, err
	}
	className, err := flags.GetString("class")
	if err != nil {
		return requestTarget{}, err
	}
	priority, err := flags.GetString("priority")
	if err != nil {
		return requestTarget{}, err
	}
	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return requestTarget{}, err
	}

	class, err := transactor.ParseOperationClass(className)
	if err != nil {
		return requestTarget{}, err
	}
	target := requestTarget{address: address, class: class}

	// Without --priority the class default applies
	if flags.Changed("priority") {
		p, err := retry.ParsePriority(priority)
		if err != nil {
			return requestTarget{}, err
		}
		target.opts = append(target.opts, transactor.WithPriority(p))
	}
	if noCache {
		target.opts = append(target.opts, transactor.Bypass())
	}
	return target, nil
}

func parseCommand(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid command %q: %w", s, err)
	}
	return uint8(v), nil
}

func parsePayload(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "0x"), " ", "")
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid payload %q: %w", s, err)
	}
	return b, nil
}

// describeFailure renders a failed outcome for the terminal
func describeFailure(err error) string {
	var ex *retry.ExhaustedError
	var open *transactor.CircuitOpenError
	switch {
	case errors.As(err, &open):
		return fmt.Sprintf("CIRCUIT OPEN: bus marked bad, retry in %v", open.RetryIn.Round(time.Second))
	case errors.As(err, &ex):
		return fmt.Sprintf("FAILED after %d attempts (%v): %v", ex.Attempts, ex.Elapsed.Round(time.Millisecond), ex.LastErr)
	case errors.Is(err, breaker.ErrOpen):
		return "CIRCUIT OPEN"
	default:
		return fmt.Sprintf("ERROR: %v", err)
	}
}

func runTransact(cmd *cobra.Command, args []string) error {
	command, err := parseCommand(transactCommand)
	if err != nil {
		return err
	}
	payload, err := parsePayload(transactPayload)
	if err != nil {
		return err
	}
	target, err := parseRequestFlags(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	fmt.Printf("Buslink - Transact\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Request: address %d, %s, class %s\n\n", target.address, frame.FormatCommand(command), target.class)

	failed := false
	for i := 0; i < transactCount; i++ {
		if i > 0 {
			time.Sleep(transactEvery)
		}

		o := s.tx.TransactOutcome(context.Background(), target.address, command, payload, target.class, target.opts...)
		stamp := time.Now().Format("15:04:05.000")
		if !o.Success {
			failed = true
			fmt.Printf("[%s] %s\n", stamp, describeFailure(o.Err))
			continue
		}

		source := fmt.Sprintf("%d attempt(s)", o.Attempts)
		if o.FromCache {
			source = "cache"
		}
		fmt.Printf("[%s] OK %v via %s: %s\n", stamp, o.Elapsed.Round(time.Microsecond), source, frame.FormatHex(o.Payload))
	}

	if transactCount > 1 {
		fmt.Printf("\n%s", s.tx.Statistics())
	}
	if failed {
		return exitError(1, errors.New("one or more transactions failed"))
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	target, err := parseRequestFlags(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	req := frame.NewReadHoldingRegisters(target.address, readStart, readQuantity)
	if readInput {
		req = frame.NewReadInputRegisters(target.address, readStart, readQuantity)
	}

	payload, err := s.tx.Send(context.Background(), req, target.class, target.opts...)
	if err != nil {
		return exitError(1, errors.New(describeFailure(err)))
	}

	regs, err := frame.ParseRegisters(payload)
	if err != nil {
		return exitError(1, fmt.Errorf("malformed register response: %w", err))
	}
	for i, v := range regs {
		fmt.Printf("%5d: %5d (0x%04X)\n", int(readStart)+i, v, v)
	}
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	target, err := parseRequestFlags(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, nil)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	req := frame.NewWriteSingleRegister(target.address, writeRegister, writeValue)
	if _, err := s.tx.Send(context.Background(), req, target.class, target.opts...); err != nil {
		return exitError(1, errors.New(describeFailure(err)))
	}
	fmt.Printf("Register %d = %d written to device %d\n", writeRegister, writeValue, target.address)
	return nil
}
