// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"sync"
	"time"

	"github.com/Thermoquad/buslink/pkg/frame"
	"go.uber.org/zap"
)

// Channel gives one caller at a time exclusive use of a Port for a full
// write-then-read exchange. It never retries.
type Channel struct {
	mu     sync.Mutex
	port   Port
	logger *zap.Logger
	closed bool
	now    func() time.Time
}

// NewChannel wraps port. A nil logger disables logging.
func NewChannel(port Port, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		port:   port,
		logger: logger.Named("channel"),
		now:    time.Now,
	}
}

// WriteThenRead writes f and reads one response frame within timeout.
//
// The header (4 bytes) and the body (payload + CRC) share a single deadline.
// A response whose first byte is not frame.StartByte is returned after the
// header so the caller's decode reports it; no body is read for it.
func (c *Channel) WriteThenRead(f *frame.Frame, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, &TransportError{Kind: ErrIoFailure, Op: "write", Err: ErrClosed}
	}

	deadline := c.now().Add(timeout)

	if r, ok := c.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			c.logger.Debug("reset input buffer failed", zap.Error(err))
		}
	}

	wire := f.Bytes()
	if err := c.write(wire); err != nil {
		return nil, err
	}

	header := make([]byte, frame.HeaderSize)
	if n, err := c.readFull(header, deadline); err != nil {
		return nil, withOp(err, "read header", n, frame.HeaderSize)
	}

	if header[0] != frame.StartByte {
		c.logger.Debug("response does not start with start byte", zap.Uint8("got", header[0]))
		return header, nil
	}

	resp := make([]byte, frame.WireSize(header))
	copy(resp, header)
	body := resp[frame.HeaderSize:]
	if n, err := c.readFull(body, deadline); err != nil {
		return nil, withOp(err, "read body", n, len(body))
	}

	return resp, nil
}

// Close closes the underlying port. Later exchanges fail with ErrIoFailure.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}

func (c *Channel) write(wire []byte) error {
	for written := 0; written < len(wire); {
		n, err := c.port.Write(wire[written:])
		if err != nil {
			return &TransportError{Kind: ErrIoFailure, Op: "write", Got: written, Want: len(wire), Err: err}
		}
		if n == 0 {
			return &TransportError{Kind: ErrIoFailure, Op: "write", Got: written, Want: len(wire)}
		}
		written += n
	}

	if d, ok := c.port.(drainer); ok {
		if err := d.Drain(); err != nil {
			return &TransportError{Kind: ErrIoFailure, Op: "drain", Err: err}
		}
	}
	return nil
}

// readFull fills buf before deadline. Returns the number of bytes read.
func (c *Channel) readFull(buf []byte, deadline time.Time) (int, error) {
	n := 0
	for n < len(buf) {
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return n, &TransportError{Kind: ErrTimeout}
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return n, &TransportError{Kind: ErrIoFailure, Err: err}
		}

		k, err := c.port.Read(buf[n:])
		n += k
		if err != nil {
			return n, &TransportError{Kind: ErrIoFailure, Err: err}
		}
	}
	return n, nil
}

func withOp(err error, op string, got, want int) error {
	if te, ok := err.(*TransportError); ok {
		te.Op = op
		te.Got = got
		te.Want = want
	}
	return err
}
