// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"sync"
	"time"
)

// Responder computes the bytes a stub bus sends back for one written
// request. Returning nil leaves the bus silent so the read times out.
type Responder func(request []byte) []byte

// Stub is an in-memory Port for tests and dry runs
type Stub struct {
	mu          sync.Mutex
	responder   Responder
	pending     []byte
	readTimeout time.Duration
	writeErr    error
	closed      bool

	writes   [][]byte
	maxSleep time.Duration
}

// NewStub creates a stub bus answering with responder
func NewStub(responder Responder) *Stub {
	return &Stub{
		responder:   responder,
		readTimeout: 10 * time.Millisecond,
		maxSleep:    50 * time.Millisecond,
	}
}

// SilentStub never answers
func SilentStub() *Stub {
	return NewStub(func([]byte) []byte { return nil })
}

// FixedStub answers every request with the same bytes
func FixedStub(response []byte) *Stub {
	return NewStub(func([]byte) []byte { return response })
}

// SequenceStub answers the n-th request with responses[n] and stays silent
// after the list is exhausted
func SequenceStub(responses ...[]byte) *Stub {
	var mu sync.Mutex
	i := 0
	return NewStub(func([]byte) []byte {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(responses) {
			return nil
		}
		r := responses[i]
		i++
		return r
	})
}

// FailWrites makes every following Write fail with err
func (s *Stub) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// Writes returns a copy of every request written so far
func (s *Stub) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// WriteCount returns how many requests were written
func (s *Stub) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *Stub) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("stub closed")
	}
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	req := append([]byte(nil), p...)
	s.writes = append(s.writes, req)
	if resp := s.responder(req); resp != nil {
		s.pending = append(s.pending, resp...)
	}
	return len(p), nil
}

// Read returns pending response bytes, or sleeps out the read timeout
// (capped) and returns (0, nil) like a silent serial line.
func (s *Stub) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("stub closed")
	}
	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		s.mu.Unlock()
		return n, nil
	}
	wait := s.readTimeout
	if wait > s.maxSleep {
		wait = s.maxSleep
	}
	s.mu.Unlock()

	time.Sleep(wait)
	return 0, nil
}

// SetReadTimeout bounds the next Read
func (s *Stub) SetReadTimeout(t time.Duration) error {
	s.mu.Lock()
	s.readTimeout = t
	s.mu.Unlock()
	return nil
}

// ResetInputBuffer drops unread response bytes
func (s *Stub) ResetInputBuffer() error {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
	return nil
}

func (s *Stub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
