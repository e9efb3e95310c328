// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"net/url"
)

// DefaultWebSocketPath is where Home Assistant serves its websocket
// API.
const DefaultWebSocketPath = "/api/websocket"

// WebSocketURL converts a server base URL to its websocket endpoint.
// http becomes ws and https becomes wss. A URL without a path gets
// DefaultWebSocketPath; an explicit path is kept.
func WebSocketURL(server string) (string, error) {
	parsed, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("transport: parsing server URL: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported scheme %q in server URL %q", parsed.Scheme, server)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("transport: server URL %q has no host", server)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = DefaultWebSocketPath
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}
