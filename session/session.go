// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/hawire/lib/clock"
	"github.com/bureau-foundation/hawire/lib/secret"
	"github.com/bureau-foundation/hawire/transport"
	"github.com/bureau-foundation/hawire/wire"
)

// Defaults applied by Connect to zero Config fields.
const (
	DefaultEventBuffer = 256
	DefaultPongTimeout = 10 * time.Second
)

// Config configures Connect.
type Config struct {
	// Conn is the connection to run the protocol over. The session
	// owns it from Connect on and closes it on failure or Close.
	Conn transport.Conn

	// AccessToken is sent in the auth frame. The session does not
	// close it.
	AccessToken *secret.Buffer

	// Codec decodes inbound and encodes outbound frames. Nil uses
	// wire.DefaultCodec(). Supply a codec built with wire.NewCodec to
	// use message types defined outside the wire package.
	Codec *wire.Codec

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	// Clock drives the heartbeat and Ping timing. Nil uses
	// clock.Real().
	Clock clock.Clock

	// EventBuffer is the queue length of each subscription. Zero uses
	// DefaultEventBuffer.
	EventBuffer int

	// PingInterval enables the heartbeat when positive.
	PingInterval time.Duration

	// PongTimeout is how long the heartbeat waits for each pong. Zero
	// uses DefaultPongTimeout.
	PongTimeout time.Duration

	// CoalesceMessages announces the coalesce_messages feature right
	// after authentication.
	CoalesceMessages bool

	// Tap, if set, observes every frame.
	Tap Tap

	// UnknownHandler receives frames whose type the codec does not
	// know. It runs on the reader goroutine and must not block or
	// call Close. Nil logs them at debug level.
	UnknownHandler func(*wire.RawMessage)
}

// Session is an authenticated connection. All methods are safe for
// concurrent use.
type Session struct {
	conn        transport.Conn
	codec       *wire.Codec
	logger      *slog.Logger
	clock       clock.Clock
	tap         Tap
	unknown     func(*wire.RawMessage)
	eventBuffer int
	haVersion   string

	// ctx scopes writes and background work; it is cancelled on
	// shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	pending  *pendingTable
	registry *registry

	closeOnce  sync.Once
	done       chan struct{}
	readerDone chan struct{}

	mu  sync.Mutex
	err error
}

// Connect authenticates over config.Conn and starts the session. It
// returns an *AuthenticationError if the server rejects the token and
// a *ProtocolViolationError if the server breaks the handshake. The
// wait is bounded only by ctx. On any error the connection is closed.
func Connect(ctx context.Context, config Config) (*Session, error) {
	if config.Conn == nil {
		return nil, fmt.Errorf("session: Config.Conn is required")
	}
	if config.AccessToken == nil {
		return nil, fmt.Errorf("session: Config.AccessToken is required")
	}

	s := &Session{
		conn:        config.Conn,
		codec:       config.Codec,
		logger:      config.Logger,
		clock:       config.Clock,
		tap:         config.Tap,
		unknown:     config.UnknownHandler,
		eventBuffer: config.EventBuffer,
		done:        make(chan struct{}),
		readerDone:  make(chan struct{}),
	}
	if s.codec == nil {
		s.codec = wire.DefaultCodec()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.eventBuffer <= 0 {
		s.eventBuffer = DefaultEventBuffer
	}
	if s.unknown == nil {
		s.unknown = func(message *wire.RawMessage) {
			s.logger.Debug("ignoring frame of unknown type", "type", message.Type(), "request_id", message.ID)
		}
	}

	if err := s.authenticate(ctx, config.AccessToken); err != nil {
		s.conn.Close()
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.pending = newPendingTable(s.logger)
	s.registry = newRegistry(s.logger, s.finishCompleted)
	go s.readLoop()

	if config.CoalesceMessages {
		features := &wire.SupportedFeatures{Features: map[string]int{wire.FeatureCoalesceMessages: 1}}
		if err := s.Call(ctx, features, nil); err != nil {
			s.Close()
			return nil, fmt.Errorf("session: announcing supported features: %w", err)
		}
	}

	if config.PingInterval > 0 {
		pongTimeout := config.PongTimeout
		if pongTimeout <= 0 {
			pongTimeout = DefaultPongTimeout
		}
		go s.heartbeat(config.PingInterval, pongTimeout)
	}

	s.logger.Info("connected to home assistant", "ha_version", s.haVersion)
	return s, nil
}

// authenticate runs the handshake to completion. Malformed frames are
// dropped; any well-formed frame goes to the state machine.
func (s *Session) authenticate(ctx context.Context, token *secret.Buffer) error {
	machine := newHandshake(token)
	for machine.state != Authenticated {
		frame, err := s.conn.ReadFrame(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("session: authenticating: %w", ctxErr)
			}
			return fmt.Errorf("session: authenticating: %w", closedError(err))
		}
		s.observe(Inbound, frame)

		message, err := s.codec.Decode(frame)
		if err != nil {
			s.logger.Warn("dropping malformed frame during handshake", "error", err)
			continue
		}
		reply, err := machine.step(message)
		if err != nil {
			return err
		}
		if reply == nil {
			continue
		}
		encoded, err := s.codec.Encode(reply)
		if err != nil {
			return fmt.Errorf("session: encoding %s: %w", reply.Type(), err)
		}
		s.observe(Outbound, encoded)
		err = s.conn.WriteFrame(ctx, encoded)
		// The auth frame holds the token in the clear.
		secret.Zero(encoded)
		if err != nil {
			return fmt.Errorf("session: sending %s: %w", reply.Type(), closedError(err))
		}
	}
	s.haVersion = machine.haVersion
	return nil
}

// HAVersion returns the server version announced during the
// handshake.
func (s *Session) HAVersion() string { return s.haVersion }

// Done is closed when the connection has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns nil while the session is open. Afterwards it returns
// ErrConnectionClosed for an orderly Close, or a *ClosedError holding
// the cause.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the session: pending requests fail and subscriptions end
// with ErrConnectionClosed. It waits for the reader goroutine to stop,
// so it must not be called from UnknownHandler.
func (s *Session) Close() error {
	s.shutdown(nil)
	<-s.readerDone
	return nil
}

// Dispatch sends command and returns its handle without waiting for
// the answer. Subscription commands must go through Subscribe.
func (s *Session) Dispatch(command wire.Command) (*Request, error) {
	if _, ok := command.(wire.Subscription); ok {
		return nil, fmt.Errorf("session: %s is a subscription; use Subscribe", command.Type())
	}
	return s.pending.dispatch(command, nil, s.write)
}

// Call sends command, waits for its result and, if result is not nil,
// decodes the result payload into it.
func (s *Session) Call(ctx context.Context, command wire.Command, result any) error {
	request, err := s.Dispatch(command)
	if err != nil {
		return err
	}
	payload, err := request.Await(ctx)
	if err != nil {
		return err
	}
	if result == nil || len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, result); err != nil {
		return fmt.Errorf("session: decoding %s result: %w", command.Type(), err)
	}
	return nil
}

// Ping sends a ping and returns the time until the pong.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	start := s.clock.Now()
	request, err := s.Dispatch(&wire.Ping{})
	if err != nil {
		return 0, err
	}
	if _, err := request.Await(ctx); err != nil {
		return 0, err
	}
	return s.clock.Now().Sub(start), nil
}

// Subscribe sends a subscription command and waits for the server to
// acknowledge it. For an exclusive kind, any active subscription of
// the same kind is first ended with ErrSubscriptionReplaced and
// unsubscribed on the server. A rejected subscribe returns the
// server's *wire.RequestError.
func (s *Session) Subscribe(ctx context.Context, command wire.Subscription) (*Subscription, error) {
	kind := command.Type()
	traits := command.Traits()

	if traits.Exclusive {
		gate := s.registry.gate(kind)
		gate.Lock()
		defer gate.Unlock()
		if err := s.replaceExclusive(ctx, kind); err != nil {
			return nil, err
		}
	}

	subscription := newSubscription(kind, traits, s.eventBuffer, s)
	request, err := s.pending.dispatch(command, func(id uint64) {
		s.registry.insert(id, subscription)
	}, s.write)
	if err != nil {
		if subscription.id != 0 {
			s.registry.discard(subscription, err, false)
		}
		return nil, err
	}

	if _, err := request.Await(ctx); err != nil {
		if errors.Is(err, ctx.Err()) {
			// The server may acknowledge after all; make sure it
			// forgets the subscription.
			s.registry.discard(subscription, err, true)
			s.unsubscribeInBackground(subscription.id, func() {})
		}
		return nil, err
	}
	return subscription, nil
}

// replaceExclusive ends the active subscriptions of kind. The caller
// holds the kind's gate.
func (s *Session) replaceExclusive(ctx context.Context, kind string) error {
	for _, previous := range s.registry.activeOfKind(kind) {
		s.registry.discard(previous, ErrSubscriptionReplaced, true)
		request, err := s.pending.dispatch(&wire.UnsubscribeEvents{Subscription: previous.id}, nil, s.write)
		if err != nil {
			return err
		}
		_, err = request.Await(ctx)
		s.registry.forget(previous.id)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, ctx.Err()) {
				return err
			}
			s.logger.Warn("unsubscribing replaced subscription failed",
				"subscription_id", previous.id, "type", kind, "error", err)
		}
	}
	return nil
}

// unsubscribe backs Subscription.Unsubscribe. A not_found answer means
// the server has already dropped the subscription and counts as
// success.
func (s *Session) unsubscribe(ctx context.Context, subscription *Subscription) error {
	request, err := s.pending.dispatch(&wire.UnsubscribeEvents{Subscription: subscription.id}, nil, s.write)
	if err != nil {
		return err
	}
	if _, err := request.Await(ctx); err != nil && !wire.IsRequestError(err, wire.ErrCodeNotFound) {
		return fmt.Errorf("session: unsubscribing %d: %w", subscription.id, err)
	}
	s.registry.discard(subscription, nil, false)
	return nil
}

// finishCompleted is the registry's completion hook. It runs on the
// reader goroutine, so the unsubscribe happens in the background.
func (s *Session) finishCompleted(subscription *Subscription) {
	s.unsubscribeInBackground(subscription.id, func() { subscription.remove(nil) })
}

// unsubscribeInBackground tells the server to drop id, then retires it
// and runs after.
func (s *Session) unsubscribeInBackground(id uint64, after func()) {
	go func() {
		defer after()
		defer s.registry.forget(id)
		request, err := s.pending.dispatch(&wire.UnsubscribeEvents{Subscription: id}, nil, s.write)
		if err != nil {
			return
		}
		if _, err := request.Await(s.ctx); err != nil && !errors.Is(err, ErrConnectionClosed) &&
			!errors.Is(err, context.Canceled) {
			s.logger.Debug("background unsubscribe failed", "subscription_id", id, "error", err)
		}
	}()
}

// write encodes message and sends it. Called with the dispatch lock
// held. A transport failure ends the session.
func (s *Session) write(message wire.Message) error {
	frame, err := s.codec.Encode(message)
	if err != nil {
		return err
	}
	s.observe(Outbound, frame)
	if err := s.conn.WriteFrame(s.ctx, frame); err != nil {
		s.shutdown(err)
		return closedError(err)
	}
	return nil
}

func (s *Session) observe(direction Direction, frame []byte) {
	if s.tap != nil {
		s.tap.ObserveFrame(direction, frame)
	}
}

// readLoop is the only reader of the connection.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	for {
		frame, err := s.conn.ReadFrame(s.ctx)
		if err != nil {
			s.shutdown(err)
			return
		}
		s.observe(Inbound, frame)

		messages, err := s.codec.DecodeFrame(frame)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err, "frame_bytes", len(frame))
		}
		for _, message := range messages {
			s.handle(message)
		}
	}
}

func (s *Session) handle(message wire.Message) {
	switch m := message.(type) {
	case *wire.Result:
		// Activate a subscription before waking its Subscribe caller.
		s.registry.acknowledge(m)
		s.pending.resolve(m.ID, m.Result, m.Err())
	case *wire.Pong:
		s.pending.resolve(m.ID, nil, nil)
	case *wire.Event:
		s.registry.route(m)
	case *wire.RawMessage:
		s.unknown(m)
	case *wire.AuthRequired, *wire.AuthOK, *wire.AuthInvalid:
		s.logger.Warn("ignoring authentication frame after handshake", "type", m.Type())
	default:
		s.logger.Warn("ignoring unexpected frame", "type", m.Type())
	}
}

// shutdown tears the session down once. cause is nil for Close.
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		err := closedError(cause)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		switch {
		case cause == nil:
			s.logger.Info("closing connection")
		case transport.IsExpectedClose(cause):
			s.logger.Info("connection closed by server", "error", cause)
		default:
			s.logger.Warn("connection failed", "error", cause)
		}

		if closeErr := s.conn.Close(); closeErr != nil {
			s.logger.Debug("closing transport", "error", closeErr)
		}
		s.cancel()
		s.pending.closeAll(err)
		s.registry.teardown(err)
		close(s.done)
	})
}
