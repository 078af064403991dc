// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/buslink/internal/config"
)

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(out, `"msg":"kept"`) {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buslink.log")
	var console bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, &console)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Debug("breaker opened")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "breaker opened") {
		t.Errorf("file missing entry: %s", data)
	}
	if !strings.Contains(console.String(), "breaker opened") {
		t.Error("console missing entry")
	}
}

func TestNew_RejectsBadLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "verbose"}); err == nil {
		t.Error("bad level accepted")
	}
}

func TestNewFileOnly(t *testing.T) {
	logger, err := NewFileOnly(config.LoggingConfig{Level: "info"})
	if err != nil {
		t.Fatalf("NewFileOnly: %v", err)
	}
	if logger.Core().Enabled(0) {
		t.Error("logger without a file should be a no-op")
	}

	if _, err := NewFileOnly(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected invalid level error")
	}

	path := filepath.Join(t.TempDir(), "tui.log")
	logger, err = NewFileOnly(config.LoggingConfig{Level: "info", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewFileOnly: %v", err)
	}
	logger.Info("to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("file missing entry: %s", data)
	}
}
