// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/hawire/lib/secret"
	"github.com/bureau-foundation/hawire/transport"
	"github.com/bureau-foundation/hawire/wire"
)

const (
	testToken   = "llat-test-token"
	testVersion = "2025.4.1"
	waitTimeout = 5 * time.Second
)

// fakeServer is the server end of a transport.Pipe. Its helpers fail
// the test on error, so they must only be called from the test
// goroutine.
type fakeServer struct {
	t     *testing.T
	conn  transport.Conn
	codec *wire.Codec
}

func newFakeServer(t *testing.T, codec *wire.Codec) (*fakeServer, transport.Conn) {
	t.Helper()
	client, server := transport.Pipe()
	t.Cleanup(func() { server.Close() })
	if codec == nil {
		codec = wire.DefaultCodec()
	}
	return &fakeServer{t: t, conn: server, codec: codec}, client
}

func (f *fakeServer) sendRaw(frame string) {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := f.conn.WriteFrame(ctx, []byte(frame)); err != nil {
		f.t.Fatalf("server write: %v", err)
	}
}

func (f *fakeServer) send(message wire.Message) {
	f.t.Helper()
	frame, err := f.codec.Encode(message)
	if err != nil {
		f.t.Fatalf("server encode: %v", err)
	}
	f.sendRaw(string(frame))
}

func (f *fakeServer) receiveRaw() []byte {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	frame, err := f.conn.ReadFrame(ctx)
	if err != nil {
		f.t.Fatalf("server read: %v", err)
	}
	return frame
}

func (f *fakeServer) receive() wire.Message {
	f.t.Helper()
	message, err := f.codec.Decode(f.receiveRaw())
	if err != nil {
		f.t.Fatalf("server decode: %v", err)
	}
	return message
}

// receiveCommand reads the next frame and checks its type.
func (f *fakeServer) receiveCommand(messageType string) wire.Identifiable {
	f.t.Helper()
	message := f.receive()
	if message.Type() != messageType {
		f.t.Fatalf("server received %q, want %q", message.Type(), messageType)
	}
	identifiable, ok := message.(wire.Identifiable)
	if !ok {
		f.t.Fatalf("server received %T without an id", message)
	}
	return identifiable
}

// expectNothing fails if the client sends a frame within a short wait.
func (f *fakeServer) expectNothing() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if frame, err := f.conn.ReadFrame(ctx); err == nil {
		f.t.Fatalf("server received unexpected frame %s", frame)
	}
}

func (f *fakeServer) result(id uint64, payload string) {
	f.t.Helper()
	f.sendRaw(fmt.Sprintf(`{"id":%d,"type":"result","success":true,"result":%s}`, id, payload))
}

func (f *fakeServer) failure(id uint64, code, message string) {
	f.t.Helper()
	f.send(&wire.Result{Envelope: wire.Envelope{ID: id}, Error: &wire.ErrorInfo{Code: code, Message: message}})
}

func (f *fakeServer) event(id uint64, payload string) {
	f.t.Helper()
	if id == 0 {
		f.sendRaw(fmt.Sprintf(`{"type":"event","event":%s}`, payload))
		return
	}
	f.sendRaw(fmt.Sprintf(`{"id":%d,"type":"event","event":%s}`, id, payload))
}

// queueHandshake writes the server side of a successful handshake
// ahead of time; the pipe buffers it until Connect reads.
func (f *fakeServer) queueHandshake() {
	f.t.Helper()
	f.send(&wire.AuthRequired{HAVersion: testVersion})
	f.send(&wire.AuthOK{HAVersion: testVersion})
}

// expectAuth consumes the auth frame and checks the token.
func (f *fakeServer) expectAuth() {
	f.t.Helper()
	message := f.receive()
	auth, ok := message.(*wire.Auth)
	if !ok {
		f.t.Fatalf("server received %T, want *wire.Auth", message)
	}
	if auth.AccessToken != testToken {
		f.t.Fatalf("access token = %q, want %q", auth.AccessToken, testToken)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccessToken(t *testing.T) *secret.Buffer {
	t.Helper()
	token, err := secret.NewFromBytes([]byte(testToken))
	if err != nil {
		t.Fatalf("creating token buffer: %v", err)
	}
	t.Cleanup(func() { token.Close() })
	return token
}

// connectSession runs a successful handshake and returns the session
// and its fake server. configure may adjust the Config first.
func connectSession(t *testing.T, configure func(*Config)) (*Session, *fakeServer) {
	t.Helper()
	config := Config{
		AccessToken: testAccessToken(t),
		Logger:      testLogger(),
	}
	if configure != nil {
		configure(&config)
	}
	server, client := newFakeServer(t, config.Codec)
	config.Conn = client
	server.queueHandshake()

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	session, err := Connect(ctx, config)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	server.expectAuth()
	return session, server
}

type subscribeOutcome struct {
	subscription *Subscription
	err          error
}

// subscribeAsync runs Subscribe on its own goroutine.
func subscribeAsync(session *Session, command wire.Subscription) <-chan subscribeOutcome {
	outcome := make(chan subscribeOutcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		subscription, err := session.Subscribe(ctx, command)
		outcome <- subscribeOutcome{subscription, err}
	}()
	return outcome
}

