// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the message model and JSON codec for the Home
// Assistant websocket protocol.
//
// Every frame is a JSON object tagged by a "type" discriminator. Each
// concrete Go type returns its discriminator from a constant Type
// method, so the tag can never drift from the shape it names.
//
// Outgoing commands embed [CommandHeader], which carries the request
// id assigned by the session's correlation table. Subscribe commands
// additionally implement [Subscription] and describe their lifecycle
// through [SubscriptionTraits]: long-running or temporary, exclusive
// or not, and (for temporary kinds) the predicate that recognizes the
// terminal event.
//
// [Codec] turns messages into frames and back. The discriminator table
// is an explicit registration list, built once at package
// initialization into the default codec ([DefaultCodec]) and never
// modified afterwards. Packages that define their own commands build
// an extended codec with [NewCodec]. Decoding an unregistered
// discriminator is not an error: the frame comes back as a
// [*RawMessage] holding the original type string, the echoed id and
// the untouched payload, so callers can still act on server messages
// this package does not know about. Encoding an unregistered type is
// an error, which keeps the outgoing taxonomy closed.
//
// Decode failures are reported as [*MalformedFrameError] (matching
// [ErrMalformedFrame]); server-side command failures surface as
// [*RequestError] through [Result.Err].
package wire
