// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/buslink/pkg/frame"
)

var (
	watchCommand       string
	watchPayload       string
	watchInterval      time.Duration
	watchStatsInterval time.Duration
	watchTUI           bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll one device and track bus health",
	Long: `Repeat one request at a fixed interval and show how the bus behaves.

Every poll goes through the cache, the circuit breaker and the retry policy
of --class. The display tracks:
  - Circuit breaker state and counters
  - Transaction, attempt and cache hit counts
  - Attempt errors by kind (timeout, CRC, response mismatch)
  - The latest valid response

Keys in terminal UI mode:
  q  quit
  r  close the circuit breaker
  o  force the circuit breaker open
  c  clear statistics
  i  invalidate the response cache

Use --tui=false for a line per poll and periodic statistics.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addRequestFlags(watchCmd, "robot_status")
	watchCmd.Flags().StringVar(&watchCommand, "command", "0x03", "Command byte")
	watchCmd.Flags().StringVar(&watchPayload, "payload", "00000004", "Payload as hex")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 500*time.Millisecond, "Poll interval")
	watchCmd.Flags().DurationVar(&watchStatsInterval, "stats-interval", 10*time.Second, "Statistics interval in text mode")
	watchCmd.Flags().BoolVar(&watchTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	target, err := parseRequestFlags(cmd)
	if err != nil {
		return err
	}
	command, err := parseCommand(watchCommand)
	if err != nil {
		return err
	}
	payload, err := parsePayload(watchPayload)
	if err != nil {
		return err
	}
	if watchInterval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	req := frame.Request{Address: target.address, Command: command, Payload: payload}
	if _, _, err := req.Encode(); err != nil {
		return err
	}

	fullScreen = watchTUI
	s, err := openSession(cmd, nil)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	if watchTUI {
		m := newWatchModel(s.tx, s.connInfo, req, target.class, watchInterval, target.opts)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	}
	return runWatchText(s, req, target)
}

func runWatchText(s *session, req frame.Request, target requestTarget) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Buslink - Watch\n")
	fmt.Printf("Connection: %s\n", s.connInfo)
	fmt.Printf("Polling %s to address %d every %v\n", frame.FormatCommand(req.Command), req.Address, watchInterval)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	poll := time.NewTicker(watchInterval)
	defer poll.Stop()
	statsTicker := time.NewTicker(watchStatsInterval)
	defer statsTicker.Stop()

	for {
		o := s.tx.TransactOutcome(ctx, req.Address, req.Command, req.Payload, target.class, target.opts...)
		stamp := time.Now().Format("15:04:05.000")
		switch {
		case o.Success && o.FromCache:
			fmt.Printf("[%s] %s (cached)\n", stamp, formatWatchPayload(req.Command, &o))
		case o.Success:
			fmt.Printf("[%s] %s (%d attempt(s), %v)\n", stamp, formatWatchPayload(req.Command, &o), o.Attempts, o.Elapsed.Round(time.Microsecond))
		case ctx.Err() == nil:
			fmt.Printf("[%s] \033[1;31m%s\033[0m\n", stamp, describeFailure(o.Err))
		}

		select {
		case <-ctx.Done():
			fmt.Printf("\n%s", s.tx.Statistics())
			return nil
		case <-statsTicker.C:
			fmt.Printf("\n%s\n", s.tx.Statistics())
		case <-poll.C:
		}
	}
}
