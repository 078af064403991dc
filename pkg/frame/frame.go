// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"encoding/binary"
)

// Frame is one validated bus frame
type Frame struct {
	Address uint8
	Command uint8
	Payload []byte
	CRC     uint16
}

// Length returns the payload length as carried in the header
func (f *Frame) Length() uint8 {
	return uint8(len(f.Payload))
}

// Bytes returns the wire encoding of the frame.
// The CRC is recomputed, so a Frame built by hand is always well formed.
func (f *Frame) Bytes() []byte {
	return appendFrame(make([]byte, 0, HeaderSize+len(f.Payload)+CRCSize), f.Address, f.Command, f.Payload)
}

// Equal reports whether two frames carry the same address, command and payload
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Address == other.Address && f.Command == other.Command && bytes.Equal(f.Payload, other.Payload)
}

// Encode builds a frame for address and command carrying payload.
// It returns the frame together with its wire bytes.
func Encode(address, command uint8, payload []byte) (*Frame, []byte, error) {
	if address < AddressMin || address > AddressMax {
		return nil, nil, newFrameError(ErrInvalidAddress, "address %d outside %d-%d", address, AddressMin, AddressMax)
	}
	if len(payload) > MaxPayloadSize {
		return nil, nil, newFrameError(ErrPayloadTooLarge, "%d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	wire := appendFrame(make([]byte, 0, HeaderSize+len(payload)+CRCSize), address, command, payload)

	f := &Frame{
		Address: address,
		Command: command,
		Payload: append([]byte(nil), payload...),
		CRC:     binary.LittleEndian.Uint16(wire[len(wire)-CRCSize:]),
	}
	return f, wire, nil
}

// Decode parses exactly one frame from data.
// Trailing bytes after a complete frame are reported as ErrLengthMismatch.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, newFrameError(ErrIncomplete, "no data")
	}
	if data[0] != StartByte {
		return nil, newFrameError(ErrBadStart, "got 0x%02X", data[0])
	}
	if len(data) < HeaderSize {
		return nil, newFrameError(ErrIncomplete, "header needs %d bytes, have %d", HeaderSize, len(data))
	}

	length := int(data[3])
	total := HeaderSize + length + CRCSize
	if len(data) < total {
		return nil, newFrameError(ErrIncomplete, "frame needs %d bytes, have %d", total, len(data))
	}

	received := binary.LittleEndian.Uint16(data[total-CRCSize : total])
	calculated := CalculateCRC(data[:total-CRCSize])
	if received != calculated {
		return nil, newFrameError(ErrCrcMismatch, "expected 0x%04X, got 0x%04X", calculated, received)
	}

	if len(data) > total {
		return nil, newFrameError(ErrLengthMismatch, "%d trailing bytes after %d byte frame", len(data)-total, total)
	}

	return &Frame{
		Address: data[1],
		Command: data[2],
		Payload: append([]byte(nil), data[HeaderSize:HeaderSize+length]...),
		CRC:     received,
	}, nil
}

// WireSize returns the total frame size announced by a header.
// The header must already be validated to start with StartByte.
func WireSize(header []byte) int {
	return HeaderSize + int(header[3]) + CRCSize
}

func appendFrame(dst []byte, address, command uint8, payload []byte) []byte {
	dst = append(dst, StartByte, address, command, uint8(len(payload)))
	dst = append(dst, payload...)
	crc := CalculateCRC(dst)
	return binary.LittleEndian.AppendUint16(dst, crc)
}
