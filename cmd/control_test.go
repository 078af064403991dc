// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/buslink/internal/config"
	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/retry"
	"github.com/Thermoquad/buslink/pkg/transactor"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    uint8
		wantErr bool
	}{
		{"0x01", 0x01, false},
		{"3", 3, false},
		{" 0x06 ", 0x06, false},
		{"0x100", 0, true},
		{"ping", 0, true},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCommand(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCommand(%q) = 0x%02X, want 0x%02X", tt.in, got, tt.want)
		}
	}
}

func TestParsePayload(t *testing.T) {
	got, err := parsePayload("0x00 00 00 0A")
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0x00, 0x00, 0x0A}) {
		t.Errorf("parsePayload = % X", got)
	}

	got, err = parsePayload("")
	if err != nil || got != nil {
		t.Errorf("empty payload = %v, %v", got, err)
	}

	if _, err := parsePayload("abc"); err == nil {
		t.Error("expected error for odd-length hex")
	}
}

func newRequestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "probe"}
	addRequestFlags(c, "robot_status")
	if err := c.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return c
}

func TestParseRequestFlags(t *testing.T) {
	target, err := parseRequestFlags(newRequestCmd(t))
	if err != nil {
		t.Fatalf("parseRequestFlags: %v", err)
	}
	if target.address != 1 || target.class != transactor.ClassRobotStatus || len(target.opts) != 0 {
		t.Errorf("defaults = %+v", target)
	}

	target, err = parseRequestFlags(newRequestCmd(t, "-a", "7", "--class", "telemetry", "--priority", "emergency", "--no-cache"))
	if err != nil {
		t.Fatalf("parseRequestFlags: %v", err)
	}
	if target.address != 7 || target.class != transactor.ClassTelemetry {
		t.Errorf("target = %+v", target)
	}
	if len(target.opts) != 2 {
		t.Errorf("got %d call options, want 2", len(target.opts))
	}

	if _, err := parseRequestFlags(newRequestCmd(t, "--class", "warp_drive")); err == nil {
		t.Error("expected error for unknown class")
	}
	if _, err := parseRequestFlags(newRequestCmd(t, "--priority", "urgent")); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestDescribeFailure(t *testing.T) {
	open := &transactor.CircuitOpenError{RetryIn: 30 * time.Second}
	if got := describeFailure(open); !strings.HasPrefix(got, "CIRCUIT OPEN") {
		t.Errorf("circuit open: %q", got)
	}

	ex := &retry.ExhaustedError{LastErr: errors.New("timeout"), Attempts: 3, Elapsed: 300 * time.Millisecond}
	if got := describeFailure(ex); !strings.Contains(got, "after 3 attempts") || !strings.Contains(got, "timeout") {
		t.Errorf("exhausted: %q", got)
	}

	if got := describeFailure(errors.New("boom")); got != "ERROR: boom" {
		t.Errorf("other: %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	now := time.Now()
	bus := config.BusConfig{Username: "operator", JWTSecret: "s3cret", JWTTTL: 5 * time.Minute}

	signed, err := bearerToken(bus, now)
	if err != nil {
		t.Fatalf("bearerToken: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(bus.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "operator" || claims.Issuer != "buslink" {
		t.Errorf("claims = %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 5*time.Minute {
		t.Errorf("token lifetime = %v, want 5m", got)
	}
}

func TestFormatWatchPayload(t *testing.T) {
	regs, err := frame.EncodeRegisters([]uint16{10, 2000})
	if err != nil {
		t.Fatal(err)
	}
	got := formatWatchPayload(frame.CmdReadHoldingRegisters, &transactor.Outcome{Payload: regs})
	if got != "R0=10  R1=2000" {
		t.Errorf("registers = %q", got)
	}

	if got := formatWatchPayload(frame.CmdPing, &transactor.Outcome{}); got != "ACK" {
		t.Errorf("empty payload = %q", got)
	}
}

func TestWriteDefaultsToUncachedClass(t *testing.T) {
	class, err := transactor.ParseOperationClass(writeCmd.Flags().Lookup("class").DefValue)
	if err != nil {
		t.Fatalf("ParseOperationClass: %v", err)
	}
	if class.Cacheable() {
		t.Errorf("write defaults to cacheable class %v", class)
	}
}
