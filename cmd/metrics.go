// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/buslink/pkg/frame"
)

var (
	metricsListen   string
	metricsCommand  string
	metricsPayload  string
	metricsInterval time.Duration
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Poll one device and export bus metrics for Prometheus",
	Long: `Repeat one request at a fixed interval without a terminal UI and
serve transaction, attempt and circuit breaker metrics over HTTP.

The listen address and path come from the metrics section of the config
file; --listen overrides the address.

Examples:
  buslink metrics --port /dev/ttyUSB0 --address 2
  buslink metrics -c buslink.yaml --listen 127.0.0.1:9464`,
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
	addRequestFlags(metricsCmd, "robot_status")
	metricsCmd.Flags().StringVar(&metricsListen, "listen", "", "HTTP listen address")
	metricsCmd.Flags().StringVar(&metricsCommand, "command", "0x03", "Command byte")
	metricsCmd.Flags().StringVar(&metricsPayload, "payload", "00000004", "Payload as hex")
	metricsCmd.Flags().DurationVar(&metricsInterval, "interval", time.Second, "Poll interval")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	target, err := parseRequestFlags(cmd)
	if err != nil {
		return err
	}
	command, err := parseCommand(metricsCommand)
	if err != nil {
		return err
	}
	payload, err := parsePayload(metricsPayload)
	if err != nil {
		return err
	}
	if metricsInterval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	req := frame.Request{Address: target.address, Command: command, Payload: payload}
	if _, _, err := req.Encode(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := openSession(cmd, reg)
	if err != nil {
		return exitError(2, fmt.Errorf("connection error: %w", err))
	}
	defer s.Close()

	listen := s.cfg.Metrics.Listen
	if metricsListen != "" {
		listen = metricsListen
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	s.logger.Info("serving metrics",
		zap.String("listen", listen),
		zap.String("path", s.cfg.Metrics.Path),
		zap.String("connection", s.connInfo),
		zap.Uint8("address", req.Address),
		zap.String("command", frame.FormatCommand(req.Command)),
		zap.Stringer("class", target.class))

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		o := s.tx.TransactOutcome(ctx, req.Address, req.Command, req.Payload, target.class, target.opts...)
		if !o.Success && ctx.Err() == nil {
			s.logger.Debug("poll failed", zap.Error(o.Err))
		}

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err, ok := <-serveErr:
			if ok {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		case <-ticker.C:
		}
	}
}
