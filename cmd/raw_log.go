// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/buslink/internal/logging"
	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/transport"
)

var rawLogHex bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display bus traffic in human-readable format",
	Long: `Passively decode and display frames as they appear on the bus.

Nothing is transmitted. The decoder resynchronises on the start byte, so the
log can be started in the middle of a transfer. Frames failing their CRC
are reported inline.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print raw frame bytes")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	port, connInfo, err := OpenPort(cfg.Bus)
	if err != nil {
		return exitError(2, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		logger.Warn("failed to set read timeout", zap.Error(err))
	}

	fmt.Printf("Buslink - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	decoder := frame.NewDecoder()
	buf := make([]byte, 128)
	var frames, crcErrors int

	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, transport.ErrConnectionClosed) {
				logger.Info("connection closed")
				break
			}
			logger.Warn("read error", zap.Error(err))
			continue
		}

		for i := 0; i < n; i++ {
			f, err := decoder.DecodeByte(buf[i])
			if err != nil {
				crcErrors++
				fmt.Printf("[%s] [ERROR] %v\n", time.Now().Format("15:04:05.000"), err)
				continue
			}
			if f == nil {
				continue
			}
			frames++
			fmt.Printf("[%s] %s", decoder.LastFrameTime().Format("15:04:05.000"), frame.FormatFrame(f))
			if rawLogHex {
				fmt.Printf("  Raw: %s\n", frame.FormatHex(f.Bytes()))
			}
		}
	}

	fmt.Printf("\n%d frames, %d CRC errors\n", frames, crcErrors)
	return nil
}
