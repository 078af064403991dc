// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/buslink/internal/config"
	"github.com/Thermoquad/buslink/internal/logging"
	"github.com/Thermoquad/buslink/pkg/breaker"
	"github.com/Thermoquad/buslink/pkg/cache"
	"github.com/Thermoquad/buslink/pkg/retry"
	"github.com/Thermoquad/buslink/pkg/transactor"
	"github.com/Thermoquad/buslink/pkg/transport"
)

// loadConfig reads --config (or the defaults) and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Bus.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Bus.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Bus.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Bus.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Bus.SkipSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("BUSLINK_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// bearerToken signs a short-lived HS256 token for the bridge
func bearerToken(bus config.BusConfig, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   bus.Username,
		Issuer:    "buslink",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(bus.JWTTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(bus.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign bridge token: %w", err)
	}
	return token, nil
}

// OpenPort opens either a WebSocket bridge or a serial port
func OpenPort(bus config.BusConfig) (transport.Port, string, error) {
	if bus.URL != "" {
		wsCfg := transport.WebSocketConfig{
			URL:           bus.URL,
			Username:      bus.Username,
			SkipSSLVerify: bus.SkipSSLVerify,
		}

		switch {
		case bus.JWTSecret != "":
			token, err := bearerToken(bus, time.Now())
			if err != nil {
				return nil, "", err
			}
			wsCfg.BearerToken = token
		case bus.Username != "":
			password, err := GetPassword()
			if err != nil {
				return nil, "", err
			}
			wsCfg.Password = password
		}

		port, err := transport.DialWebSocket(wsCfg)
		if err != nil {
			return nil, "", err
		}
		return port, fmt.Sprintf("WebSocket: %s", bus.URL), nil
	}

	if bus.Port != "" {
		port, err := transport.OpenSerial(bus.ToSerial())
		if err != nil {
			return nil, "", err
		}
		return port, fmt.Sprintf("Serial: %s @ %d baud", bus.Port, bus.Baud), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// fullScreen keeps log output off the terminal while a TUI owns it
var fullScreen bool

// session owns everything a command needs to talk to one bus
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	port     transport.Port
	connInfo string
	tx       *transactor.Transactor
	metrics  *transactor.Metrics
	cancel   context.CancelFunc
}

// openSession connects to the bus and builds the transactor. Metrics are
// registered with reg when it is not nil.
func openSession(cmd *cobra.Command, reg prometheus.Registerer) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	newLogger := logging.New
	if fullScreen {
		newLogger = logging.NewFileOnly
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	port, connInfo, err := OpenPort(cfg.Bus)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cfg: cfg, logger: logger, port: port, connInfo: connInfo, cancel: cancel}

	tx, err := s.buildTransactor(ctx, reg)
	if err != nil {
		cancel()
		port.Close()
		return nil, err
	}
	s.tx = tx
	return s, nil
}

func (s *session) buildTransactor(ctx context.Context, reg prometheus.Registerer) (*transactor.Transactor, error) {
	cfg := s.cfg

	registry, err := cfg.Retry.Registry()
	if err != nil {
		return nil, err
	}

	brOpts := []breaker.Option{breaker.WithLogger(s.logger)}
	if reg != nil {
		m, err := transactor.NewMetrics(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		s.metrics = m
		brOpts = append(brOpts, breaker.WithTransitionHook(m.BreakerTransition))
	}

	var shared cache.SharedStore
	if cfg.Cache.Redis.Addr != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.Cache.ToRedis())
		if err != nil {
			return nil, err
		}
		shared = rs
	} else {
		ms := cache.NewMemoryStore(nil)
		ms.StartSweeper(ctx, cfg.Cache.SweepInterval)
		shared = ms
	}

	rc, err := cache.New(cfg.Cache.ToCache(), shared, cache.WithLogger(s.logger))
	if err != nil {
		shared.Close()
		return nil, err
	}

	opts := []transactor.Option{
		transactor.WithCache(rc),
		transactor.WithLogger(s.logger),
		transactor.WithReadTimeout(cfg.Bus.ReadTimeout),
	}
	if s.metrics != nil {
		opts = append(opts, transactor.WithMetrics(s.metrics))
	}

	return transactor.New(
		transport.NewChannel(s.port, s.logger),
		breaker.New(cfg.Breaker.ToBreaker(), brOpts...),
		retry.NewManager(registry, retry.WithLogger(s.logger)),
		opts...,
	), nil
}

// Close stops background work and closes the bus
func (s *session) Close() {
	s.cancel()
	if err := s.tx.Close(); err != nil {
		s.logger.Debug("close", zap.Error(err))
	}
	_ = s.logger.Sync()
}
