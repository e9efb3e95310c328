// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
)

// AuthRequired is the first frame the server sends on a new
// connection.
type AuthRequired struct {
	HAVersion string `json:"ha_version,omitempty"`
}

func (AuthRequired) Type() string { return TypeAuthRequired }

// AuthOK confirms the access token. Commands are accepted from here on.
type AuthOK struct {
	HAVersion string `json:"ha_version,omitempty"`
}

func (AuthOK) Type() string { return TypeAuthOK }

// AuthInvalid rejects the access token. The server closes the
// connection right after sending it.
type AuthInvalid struct {
	Message string `json:"message,omitempty"`
}

func (AuthInvalid) Type() string { return TypeAuthInvalid }

// ErrorInfo is the error object of a failed result.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result answers the command with the same request id.
type Result struct {
	Envelope
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

func (Result) Type() string { return TypeResult }

// Err returns nil for a successful result and a *RequestError
// otherwise. A failed result without an error object is reported with
// ErrCodeUnknownError.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return &RequestError{RequestID: r.ID, Code: ErrCodeUnknownError, Message: "request failed without an error object"}
	}
	return &RequestError{RequestID: r.ID, Code: r.Error.Code, Message: r.Error.Message}
}

// Event carries one event of the subscription whose id it echoes. The
// payload stays raw until the consumer decodes it into the shape it
// expects.
type Event struct {
	Envelope
	Event json.RawMessage `json:"event"`
}

func (Event) Type() string { return TypeEvent }

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	if len(e.Event) == 0 {
		return fmt.Errorf("wire: event for subscription %d has no payload", e.ID)
	}
	if err := json.Unmarshal(e.Event, v); err != nil {
		return fmt.Errorf("wire: decoding event for subscription %d: %w", e.ID, err)
	}
	return nil
}

// Pong answers a Ping with the same id.
type Pong struct {
	Envelope
}

func (Pong) Type() string { return TypePong }

// RawMessage is what Decode returns for a discriminator that is not
// registered. Payload is the complete original frame.
type RawMessage struct {
	MessageType string
	ID          uint64
	HasID       bool
	Payload     json.RawMessage
}

func (m *RawMessage) Type() string { return m.MessageType }
