// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Direction tells a Tap which way a frame travelled.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// Tap observes every frame a session reads or writes, including the
// handshake. ObserveFrame runs synchronously on the reading or writing
// goroutine, so it must be quick, and must not retain frame after
// returning. Outbound auth frames carry the access token; a Tap that
// persists frames is responsible for redacting it.
type Tap interface {
	ObserveFrame(direction Direction, frame []byte)
}
