// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Conn is a message-oriented duplex connection. Each call moves exactly
// one frame.
//
// ReadFrame is called from a single goroutine. WriteFrame may be called
// concurrently with ReadFrame, but callers serialize their writes.
// Close unblocks pending reads and writes on both ends.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}
