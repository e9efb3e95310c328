// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed matches every error caused by the end of the
	// connection, including *ClosedError.
	ErrConnectionClosed = errors.New("session: connection closed")

	// ErrAuthenticationFailed matches *AuthenticationError.
	ErrAuthenticationFailed = errors.New("session: authentication failed")

	// ErrProtocolViolation matches *ProtocolViolationError.
	ErrProtocolViolation = errors.New("session: protocol violation")

	// ErrSubscriptionReplaced ends a subscription of an exclusive kind
	// when a newer subscription of the same kind is made.
	ErrSubscriptionReplaced = errors.New("session: subscription replaced")

	// ErrHeartbeatTimeout is the cause of a connection torn down
	// because a ping went unanswered.
	ErrHeartbeatTimeout = errors.New("session: heartbeat timed out")

	// ErrRequestCancelled is returned by Await after Cancel.
	ErrRequestCancelled = errors.New("session: request cancelled")
)

// ClosedError is the ConnectionClosed outcome with the reason the
// connection ended.
type ClosedError struct {
	Cause error
}

func (e *ClosedError) Error() string {
	return "session: connection closed: " + e.Cause.Error()
}

func (e *ClosedError) Unwrap() error { return e.Cause }

func (e *ClosedError) Is(target error) bool { return target == ErrConnectionClosed }

// closedError builds the outcome for pending work. A nil cause is an
// orderly Close.
func closedError(cause error) error {
	if cause == nil {
		return ErrConnectionClosed
	}
	return &ClosedError{Cause: cause}
}

// AuthenticationError is returned by Connect when the server rejects
// the access token.
type AuthenticationError struct {
	// Message is the server's explanation from auth_invalid.
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "session: authentication failed"
	}
	return "session: authentication failed: " + e.Message
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthenticationFailed }

// ProtocolViolationError is returned by Connect when the server sends
// a frame the handshake does not allow in its current state.
type ProtocolViolationError struct {
	State HandshakeState
	Type  string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("session: protocol violation: unexpected %q frame while %s", e.Type, e.State)
}

func (e *ProtocolViolationError) Is(target error) bool { return target == ErrProtocolViolation }
