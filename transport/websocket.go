// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/bureau-foundation/hawire/lib/version"
)

// DefaultReadLimit bounds a single incoming frame. get_states on a
// large installation returns several megabytes.
const DefaultReadLimit = 16 << 20

var _ Conn = (*WebSocketConn)(nil)

// WebSocketOptions configures DialWebSocket.
type WebSocketOptions struct {
	// Header is sent with the upgrade request. A User-Agent naming the
	// hawire version is added unless one is present.
	Header http.Header

	// HTTPClient performs the upgrade. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64

	// Compress negotiates permessage-deflate.
	Compress bool
}

// WebSocketConn is a Conn over a websocket. Frames are sent as text
// messages.
type WebSocketConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects to url, which must already be a ws:// or
// wss:// endpoint (see WebSocketURL).
func DialWebSocket(ctx context.Context, url string, options WebSocketOptions) (*WebSocketConn, error) {
	header := options.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", version.UserAgent())
	}

	dialOptions := &websocket.DialOptions{
		HTTPClient: options.HTTPClient,
		HTTPHeader: header,
	}
	if options.Compress {
		dialOptions.CompressionMode = websocket.CompressionContextTakeover
	}

	conn, _, err := websocket.Dial(ctx, url, dialOptions)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", url, err)
	}
	return newWebSocketConn(conn, options.ReadLimit), nil
}

// Accept upgrades an HTTP request to a websocket and returns the
// server side of the connection.
func Accept(w http.ResponseWriter, r *http.Request) (*WebSocketConn, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: accepting websocket: %w", err)
	}
	return newWebSocketConn(conn, 0), nil
}

func newWebSocketConn(conn *websocket.Conn, readLimit int64) *WebSocketConn {
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)
	return &WebSocketConn{conn: conn}
}

// ReadFrame returns the next message. Cancelling ctx closes the
// connection, as coder/websocket does for any interrupted read.
func (c *WebSocketConn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: reading frame: %w", err)
	}
	return data, nil
}

// WriteFrame sends frame as one text message.
func (c *WebSocketConn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("transport: writing frame: %w", err)
	}
	return nil
}

// Close performs the websocket closing handshake with a normal
// closure status. Later calls return the first call's result.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil && !IsExpectedClose(err) {
			c.closeErr = fmt.Errorf("transport: closing websocket: %w", err)
		}
	})
	return c.closeErr
}
