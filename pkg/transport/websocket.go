// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConfig describes a remote serial bridge reached over WebSocket.
// Each binary message carries raw bus bytes in either direction.
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	BearerToken   string
	SkipSSLVerify bool
}

// WebSocketPort adapts a WebSocket bridge to the Port interface.
// A background reader pumps binary messages into a channel so read
// timeouts never poison the underlying connection.
type WebSocketPort struct {
	conn *websocket.Conn

	mu          sync.Mutex
	buf         []byte
	readTimeout time.Duration

	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// DialWebSocket connects to a WebSocket bridge. A bearer token takes
// precedence over HTTP Basic credentials.
func DialWebSocket(cfg WebSocketConfig) (*WebSocketPort, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.BearerToken != "" {
		headers.Set("Authorization", "Bearer "+cfg.BearerToken)
	} else if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketPort(conn), nil
}

func newWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	w := &WebSocketPort{
		conn:        conn,
		readTimeout: time.Second,
		messages:    make(chan []byte, 16),
		done:        make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketPort) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}

		// Only binary messages carry bus bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

// Read returns buffered bytes, or waits up to the read timeout for the next
// message. Returns (0, nil) on timeout.
func (w *WebSocketPort) Read(p []byte) (int, error) {
	w.mu.Lock()
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		w.mu.Unlock()
		return n, nil
	}
	timeout := w.readTimeout
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.messages:
		if !ok {
			return 0, ErrConnectionClosed
		}
		w.mu.Lock()
		n := copy(p, data)
		w.buf = append(w.buf[:0], data[n:]...)
		w.mu.Unlock()
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout bounds the next Read
func (w *WebSocketPort) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	w.readTimeout = t
	w.mu.Unlock()
	return nil
}

// ResetInputBuffer drops buffered and queued bytes
func (w *WebSocketPort) ResetInputBuffer() error {
	w.mu.Lock()
	w.buf = w.buf[:0]
	w.mu.Unlock()
	for {
		select {
		case _, ok := <-w.messages:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (w *WebSocketPort) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}
