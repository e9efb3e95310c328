// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bureau-foundation/hawire/lib/config"
	"github.com/bureau-foundation/hawire/transport"
)

const (
	testToken   = "llat-command-test-token"
	testVersion = "2025.4.1"
)

// command is the part of an incoming command frame the fake server
// looks at.
type command struct {
	ID          uint64 `json:"id"`
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
	// Subscription is set on unsubscribe_events.
	Subscription uint64 `json:"subscription"`
}

// fakeHA is a Home Assistant websocket endpoint. respond returns the
// frames answering one command; pings and unsubscribes are answered
// without it.
type fakeHA struct {
	t       *testing.T
	server  *httptest.Server
	respond func(frame []byte, cmd command) []any

	mu       sync.Mutex
	received []command
}

func newFakeHA(t *testing.T, respond func(frame []byte, cmd command) []any) *fakeHA {
	t.Helper()
	fake := &fakeHA{t: t, respond: respond}
	fake.server = httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeHA) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Accept(w, r)
	if err != nil {
		f.t.Errorf("accept: %v", err)
		return
	}
	defer conn.Close()
	ctx := r.Context()

	if !f.send(ctx, conn, map[string]any{"type": "auth_required", "ha_version": testVersion}) {
		return
	}
	frame, err := conn.ReadFrame(ctx)
	if err != nil {
		return
	}
	var auth command
	if err := json.Unmarshal(frame, &auth); err != nil || auth.Type != "auth" {
		f.t.Errorf("expected auth frame, got %s", frame)
		return
	}
	if auth.AccessToken != testToken {
		f.send(ctx, conn, map[string]any{"type": "auth_invalid", "message": "Invalid access token or password"})
		return
	}
	if !f.send(ctx, conn, map[string]any{"type": "auth_ok", "ha_version": testVersion}) {
		return
	}

	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(frame, &cmd); err != nil {
			f.t.Errorf("undecodable command %s: %v", frame, err)
			return
		}
		f.mu.Lock()
		f.received = append(f.received, cmd)
		f.mu.Unlock()

		var replies []any
		switch cmd.Type {
		case "ping":
			replies = []any{map[string]any{"id": cmd.ID, "type": "pong"}}
		case "unsubscribe_events":
			replies = []any{success(cmd.ID, nil)}
		default:
			if f.respond != nil {
				replies = f.respond(frame, cmd)
			}
			if replies == nil {
				replies = []any{failure(cmd.ID, "unknown_command", "Unknown command.")}
			}
		}
		for _, reply := range replies {
			if !f.send(ctx, conn, reply) {
				return
			}
		}
	}
}

func (f *fakeHA) send(ctx context.Context, conn transport.Conn, message any) bool {
	frame, err := json.Marshal(message)
	if err != nil {
		f.t.Errorf("encoding %v: %v", message, err)
		return false
	}
	return conn.WriteFrame(ctx, frame) == nil
}

// commands returns the types of the commands received so far.
func (f *fakeHA) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.received))
	for i, cmd := range f.received {
		types[i] = cmd.Type
	}
	return types
}

func success(id uint64, result any) map[string]any {
	return map[string]any{"id": id, "type": "result", "success": true, "result": result}
}

func failure(id uint64, code, message string) map[string]any {
	return map[string]any{
		"id": id, "type": "result", "success": false,
		"error": map[string]any{"code": code, "message": message},
	}
}

func event(id uint64, payload any) map[string]any {
	return map[string]any{"id": id, "type": "event", "event": payload}
}

// connectionArgs are the flags pointing a command at fake with a
// token file holding token.
func connectionArgs(t *testing.T, fake *fakeHA, token string) []string {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	tokenPath := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenPath, []byte(token+"\n"), 0o600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}
	return []string{
		"--server", fake.server.URL,
		"--token-file", tokenPath,
		"--log-level", "error",
		"--no-color",
	}
}

// runCommand executes the root command with args and returns what it
// wrote to stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buffer bytes.Buffer
	previous := stdout
	stdout = &buffer
	defer func() { stdout = previous }()

	err := Root().Execute(context.Background(), args)
	return buffer.String(), err
}
