// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"strings"
)

// FormatCommand returns a human-readable name for a command code
func FormatCommand(command uint8) string {
	switch command {
	case CmdPing:
		return "PING"
	case CmdGetInfo:
		return "GET_INFO"
	case CmdReadHoldingRegisters:
		return "READ_HOLDING_REGISTERS"
	case CmdReadInputRegisters:
		return "READ_INPUT_REGISTERS"
	case CmdWriteSingleRegister:
		return "WRITE_SINGLE_REGISTER"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats a frame as a one line summary plus a payload dump
func FormatFrame(f *Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (0x%02X) addr=%d len=%d crc=0x%04X\n",
		FormatCommand(f.Command), f.Command, f.Address, len(f.Payload), f.CRC)

	if len(f.Payload) == 0 {
		return b.String()
	}

	if f.Command == CmdReadHoldingRegisters || f.Command == CmdReadInputRegisters {
		if regs, err := ParseRegisters(f.Payload); err == nil {
			for i, r := range regs {
				fmt.Fprintf(&b, "  R%d: %d (0x%04X)\n", i, r, r)
			}
			return b.String()
		}
	}

	b.WriteString("  Payload: ")
	b.WriteString(FormatHex(f.Payload))
	b.WriteString("\n")
	return b.String()
}

// FormatHex dumps bytes as space separated hex, 16 per line
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n           ")
		}
		fmt.Fprintf(&b, "%02X ", v)
	}
	return strings.TrimRight(b.String(), " ")
}
