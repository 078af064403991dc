// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"encoding/binary"
	"fmt"
)

// Request is a command ready to be encoded for one bus address.
// Command builder functions below produce the only request shapes the
// controllers understand; payloads are big-endian register fields.
type Request struct {
	Address uint8
	Command uint8
	Payload []byte
}

// Encode encodes the request to wire format
func (r Request) Encode() (*Frame, []byte, error) {
	return Encode(r.Address, r.Command, r.Payload)
}

// NewPing creates a PING request (0x01). Controllers answer with an empty ack.
func NewPing(address uint8) Request {
	return Request{Address: address, Command: CmdPing}
}

// NewGetInfo creates a GET_INFO request (0x02)
func NewGetInfo(address uint8) Request {
	return Request{Address: address, Command: CmdGetInfo}
}

// NewReadHoldingRegisters creates a READ_HOLDING_REGISTERS request (0x03)
func NewReadHoldingRegisters(address uint8, start, quantity uint16) Request {
	return Request{Address: address, Command: CmdReadHoldingRegisters, Payload: registerRange(start, quantity)}
}

// NewReadInputRegisters creates a READ_INPUT_REGISTERS request (0x04)
func NewReadInputRegisters(address uint8, start, quantity uint16) Request {
	return Request{Address: address, Command: CmdReadInputRegisters, Payload: registerRange(start, quantity)}
}

// NewWriteSingleRegister creates a WRITE_SINGLE_REGISTER request (0x06)
func NewWriteSingleRegister(address uint8, register, value uint16) Request {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], register)
	binary.BigEndian.PutUint16(payload[2:4], value)
	return Request{Address: address, Command: CmdWriteSingleRegister, Payload: payload}
}

func registerRange(start, quantity uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], start)
	binary.BigEndian.PutUint16(payload[2:4], quantity)
	return payload
}

// ParseRegisters decodes a register read response payload.
// The payload is a byte count followed by big-endian 16-bit registers.
func ParseRegisters(payload []byte) ([]uint16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty register payload")
	}
	count := int(payload[0])
	if count%2 != 0 {
		return nil, fmt.Errorf("odd register byte count: %d", count)
	}
	if len(payload)-1 != count {
		return nil, fmt.Errorf("register byte count %d, have %d bytes", count, len(payload)-1)
	}

	regs := make([]uint16, count/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(payload[1+2*i:])
	}
	return regs, nil
}

// EncodeRegisters builds a register read response payload
func EncodeRegisters(regs []uint16) ([]byte, error) {
	if len(regs)*2 > MaxPayloadSize-1 {
		return nil, fmt.Errorf("too many registers: %d", len(regs))
	}
	payload := make([]byte, 1, 1+2*len(regs))
	payload[0] = uint8(2 * len(regs))
	for _, r := range regs {
		payload = binary.BigEndian.AppendUint16(payload, r)
	}
	return payload, nil
}
