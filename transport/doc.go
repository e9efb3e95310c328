// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries whole protocol frames between hawire and a
// Home Assistant server.
//
// The session never sees sockets. It reads and writes complete frames
// through [Conn], which has two implementations:
//
//   - [WebSocketConn], built on github.com/coder/websocket. [DialWebSocket]
//     connects to a server; [Accept] upgrades an incoming HTTP request,
//     which is how tests and embedders stand up a server side.
//   - [Pipe], an in-memory connected pair used by fake servers in tests.
//
// [WebSocketURL] turns the base URL users configure
// (http://homeassistant.local:8123) into the websocket endpoint.
// [IsExpectedClose] separates orderly shutdown from real failures so
// callers can decide what to log.
package transport
