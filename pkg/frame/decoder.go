// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import "time"

// Decoder is a byte-at-a-time frame decoder for passive bus monitoring.
// Frames are not byte-stuffed, so the decoder only synchronises on a
// StartByte seen while idle.
type Decoder struct {
	state     int
	buffer    []byte
	length    int
	crc       uint16
	rawBuffer []byte // Accumulate raw bytes since the last frame
	lastFrame time.Time
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, 0, MaxFrameSize),
		rawBuffer: make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.length = 0
	d.crc = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes since the last frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// LastFrameTime returns when the most recent valid frame completed
func (d *Decoder) LastFrameTime() time.Time {
	return d.lastFrame
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if the completed frame fails its CRC check.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	switch d.state {
	case stateIdle:
		if b != StartByte {
			return nil, nil
		}
		d.buffer = append(d.buffer[:0], b)
		d.rawBuffer = append(d.rawBuffer[:0], b)
		d.state = stateAddress
		return nil, nil

	case stateAddress:
		d.buffer = append(d.buffer, b)
		d.state = stateCommand
		return nil, nil

	case stateCommand:
		d.buffer = append(d.buffer, b)
		d.state = stateLength
		return nil, nil

	case stateLength:
		d.buffer = append(d.buffer, b)
		d.length = int(b)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) >= HeaderSize+d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b)
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b) << 8
		calculated := CalculateCRC(d.buffer)
		if d.crc != calculated {
			err := newFrameError(ErrCrcMismatch, "expected 0x%04X, got 0x%04X", calculated, d.crc)
			d.Reset()
			return nil, err
		}

		f := &Frame{
			Address: d.buffer[1],
			Command: d.buffer[2],
			Payload: append([]byte(nil), d.buffer[HeaderSize:]...),
			CRC:     d.crc,
		}
		d.lastFrame = time.Now()
		d.Reset()
		return f, nil

	default:
		d.Reset()
		return nil, newFrameError(ErrIncomplete, "invalid decoder state %d", d.state)
	}
}

// Feed runs every byte of data through the decoder and returns the
// completed frames and any CRC errors in arrival order.
func (d *Decoder) Feed(data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}
