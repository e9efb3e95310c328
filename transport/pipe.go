// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"io"
	"net"
	"sync"
)

// pipeBuffer is how many frames a Pipe end accepts before WriteFrame
// blocks on the reader.
const pipeBuffer = 64

// Pipe returns two connected in-memory Conns. A frame written to one
// is read from the other, in order.
//
// Closing either end shuts down both. The end that was closed reports
// net.ErrClosed; the other end drains frames already written to it and
// then reports io.EOF on reads and io.ErrClosedPipe on writes.
func Pipe() (Conn, Conn) {
	state := &pipeState{done: make(chan struct{})}
	aToB := make(chan []byte, pipeBuffer)
	bToA := make(chan []byte, pipeBuffer)
	a := &pipeEnd{in: bToA, out: aToB, state: state, closed: make(chan struct{})}
	b := &pipeEnd{in: aToB, out: bToA, state: state, closed: make(chan struct{})}
	return a, b
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeEnd struct {
	in    <-chan []byte
	out   chan<- []byte
	state *pipeState

	closeOnce sync.Once
	closed    chan struct{}
}

func (e *pipeEnd) locallyClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

func (e *pipeEnd) ReadFrame(ctx context.Context) ([]byte, error) {
	if e.locallyClosed() {
		return nil, net.ErrClosed
	}
	select {
	case frame := <-e.in:
		return frame, nil
	case <-e.state.done:
		if e.locallyClosed() {
			return nil, net.ErrClosed
		}
		select {
		case frame := <-e.in:
			return frame, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *pipeEnd) WriteFrame(ctx context.Context, frame []byte) error {
	if e.locallyClosed() {
		return net.ErrClosed
	}
	select {
	case <-e.state.done:
		return io.ErrClosedPipe
	default:
	}
	copied := append([]byte(nil), frame...)
	select {
	case e.out <- copied:
		return nil
	case <-e.state.done:
		if e.locallyClosed() {
			return net.ErrClosed
		}
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *pipeEnd) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	e.state.once.Do(func() { close(e.state.done) })
	return nil
}
