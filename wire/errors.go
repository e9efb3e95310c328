// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame matches every *MalformedFrameError via errors.Is.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// MalformedFrameError describes a frame that could not be decoded: no
// discriminator, an id that is not a non-negative integer, or a body
// that does not fit the registered shape. The connection survives it;
// the frame is dropped.
type MalformedFrameError struct {
	Reason string
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wire: malformed frame: %s: %v", e.Reason, e.Err)
	}
	return "wire: malformed frame: " + e.Reason
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

func (e *MalformedFrameError) Is(target error) bool { return target == ErrMalformedFrame }

// RequestError is a failure reported by the server for one command.
// Callers can use errors.As to branch on the code:
//
//	var requestErr *wire.RequestError
//	if errors.As(err, &requestErr) && requestErr.Code == wire.ErrCodeNotFound { ... }
type RequestError struct {
	// RequestID is the id of the failed command.
	RequestID uint64
	// Code is the server's error code (e.g., "not_found").
	Code string
	// Message is the human-readable description from the server.
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("wire: request %d failed: %s: %s", e.RequestID, e.Code, e.Message)
}

// Error codes used by Home Assistant in result frames.
const (
	ErrCodeIDReuse                = "id_reuse"
	ErrCodeInvalidFormat          = "invalid_format"
	ErrCodeNotFound               = "not_found"
	ErrCodeNotSupported           = "not_supported"
	ErrCodeHomeAssistantError     = "home_assistant_error"
	ErrCodeServiceValidationError = "service_validation_error"
	ErrCodeUnknownCommand         = "unknown_command"
	ErrCodeUnknownError           = "unknown_error"
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeTimeout                = "timeout"
	ErrCodeTemplateError          = "template_error"
)

// IsRequestError checks whether err is a *RequestError with the given
// code.
func IsRequestError(err error, code string) bool {
	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		return requestErr.Code == code
	}
	return false
}
