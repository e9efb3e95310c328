// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides hawire's CBOR configuration.
//
// The websocket protocol itself is JSON and never touches this
// package. CBOR is used for what hawire writes to disk: the capture
// journal records each frame, its direction and timestamp as one CBOR
// item in a sequence. Encoding is Core Deterministic (RFC 8949 §4.2),
// so the same record always produces the same bytes, and timestamps
// are RFC 3339 text with nanoseconds.
//
//	encoder := codec.NewEncoder(file)
//	err := encoder.Encode(record)
//
//	decoder := codec.NewDecoder(file)
//	err = decoder.Decode(&record)
//
// Record types use `cbor` struct tags; they are never marshaled to
// JSON.
package codec
