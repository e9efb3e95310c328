// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/bureau-foundation/hawire/lib/secret"
	"github.com/bureau-foundation/hawire/wire"
)

// HandshakeState is the position of a connection in the
// authentication exchange.
type HandshakeState int

const (
	AwaitingHello HandshakeState = iota
	AwaitingAuthOutcome
	Authenticated
	Failed
)

func (s HandshakeState) String() string {
	switch s {
	case AwaitingHello:
		return "awaiting hello"
	case AwaitingAuthOutcome:
		return "awaiting auth outcome"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("HandshakeState(%d)", int(s))
	}
}

// handshake is the authentication state machine. It performs no I/O:
// Connect feeds it decoded frames and writes whatever reply it
// returns.
type handshake struct {
	state     HandshakeState
	token     *secret.Buffer
	haVersion string
	err       error
}

func newHandshake(token *secret.Buffer) *handshake {
	return &handshake{state: AwaitingHello, token: token}
}

// step consumes one inbound message. It returns the message to send in
// reply (nil if none) or the terminal error once the exchange has
// failed.
func (h *handshake) step(message wire.Message) (wire.Message, error) {
	switch h.state {
	case Authenticated:
		return nil, nil
	case Failed:
		return nil, h.err
	}

	switch m := message.(type) {
	case *wire.AuthRequired:
		if h.state == AwaitingHello {
			h.state = AwaitingAuthOutcome
			h.haVersion = m.HAVersion
			return &wire.Auth{AccessToken: h.token.String()}, nil
		}
	case *wire.AuthOK:
		if h.state == AwaitingAuthOutcome {
			h.state = Authenticated
			if m.HAVersion != "" {
				h.haVersion = m.HAVersion
			}
			return nil, nil
		}
	case *wire.AuthInvalid:
		if h.state == AwaitingAuthOutcome {
			return nil, h.fail(&AuthenticationError{Message: m.Message})
		}
	}
	return nil, h.fail(&ProtocolViolationError{State: h.state, Type: message.Type()})
}

func (h *handshake) fail(err error) error {
	h.state = Failed
	h.err = err
	return err
}
