// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame implements the RS485 bus frame format.
//
// A frame is a fixed 4 byte header, a payload of up to 255 bytes and a
// little-endian CRC16-MODBUS trailer:
//
//	0xAA | ADDR | CMD | LEN | PAYLOAD[LEN] | CRC_LO | CRC_HI
//
// The CRC covers every byte before the trailer, start byte included.
// This package does no I/O and holds no state outside of Decoder.
package frame

// Protocol framing
const (
	StartByte = 0xAA

	HeaderSize     = 4
	CRCSize        = 2
	MaxPayloadSize = 255
	MaxFrameSize   = HeaderSize + MaxPayloadSize + CRCSize
)

// Address range accepted by Encode
const (
	AddressBroadcast = 0x00
	AddressMin       = 1
	AddressMax       = 247
)

// CRC-16-MODBUS configuration (reflected polynomial)
const (
	crcPolynomial = 0xA001
	crcInitial    = 0xFFFF
)

// Command codes understood by the bus controllers
const (
	CmdPing                 = 0x01
	CmdGetInfo              = 0x02
	CmdReadHoldingRegisters = 0x03
	CmdReadInputRegisters   = 0x04
	CmdWriteSingleRegister  = 0x06
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateAddress
	stateCommand
	stateLength
	statePayload
	stateCRC1
	stateCRC2
)
