// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes the RS485 adapter. Frames are always 8N1.
type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// SerialPort wraps a go.bug.st/serial port
type SerialPort struct {
	port serial.Port
}

// OpenSerial opens the serial device described by cfg
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
		}
	}

	return &SerialPort{port: port}, nil
}

func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialPort) Close() error {
	return s.port.Close()
}

// SetReadTimeout bounds the next Read
func (s *SerialPort) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

// ResetInputBuffer drops bytes left over from an earlier exchange
func (s *SerialPort) ResetInputBuffer() error {
	return s.port.ResetInputBuffer()
}

// Drain blocks until the written frame has left the UART
func (s *SerialPort) Drain() error {
	return s.port.Drain()
}

// ListSerialPorts returns the serial devices present on the host
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
