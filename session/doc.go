// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs the Home Assistant websocket protocol over a
// transport.Conn.
//
// [Connect] performs the authentication handshake and returns a
// [Session]. From then on a single reader goroutine owns the inbound
// side of the connection: result and pong frames resolve pending
// requests, event frames are routed to subscriptions, and frames with
// an unregistered type go to Config.UnknownHandler. The reader never
// blocks on a consumer. Each subscription has its own bounded queue;
// when a consumer falls behind, further events for that subscription
// are dropped and counted.
//
// Outbound, every command gets the next request id from the
// correlation table. Ids start at 1, are never reused on a connection,
// and reach the wire in increasing order: assigning the id and writing
// the frame happen under one lock. [Session.Dispatch] returns a
// [Request] handle at once; [Request.Await] waits for the server's
// answer. [Session.Call] combines both and decodes the result.
//
// [Session.Subscribe] sends a subscription command and waits for its
// acknowledgement. Long-running kinds stream until
// [Subscription.Unsubscribe]; temporary kinds end by themselves on a
// terminal event. Exclusive kinds allow one subscription per
// connection: subscribing again replaces the previous one, which ends
// with [ErrSubscriptionReplaced].
//
// When the connection ends, for whatever reason, every pending request
// fails and every open subscription ends with an error matching
// [ErrConnectionClosed]. The session does not reconnect; callers build
// a new one.
package session
