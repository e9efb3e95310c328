// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/hawire/wire"
)

// SubscriptionState is where a subscription is in its lifecycle.
type SubscriptionState int

const (
	// Pending: the subscribe command is sent, not yet acknowledged.
	Pending SubscriptionState = iota
	// Active: acknowledged; events are delivered.
	Active
	// Completed: a temporary subscription saw its terminal event and
	// is waiting for the server to forget it.
	Completed
	// Removed: gone from the connection. Err tells why.
	Removed
)

func (s SubscriptionState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("SubscriptionState(%d)", int(s))
	}
}

// Subscription is the consumer's handle on one server-side event
// stream.
//
// Events delivers the stream in server order and is closed when the
// subscription ends; Done is closed at the same time. Err then reports
// why it ended: nil for an unsubscribe or a temporary subscription's
// terminal event, ErrSubscriptionReplaced, a *wire.RequestError for a
// rejected subscribe, or an error matching ErrConnectionClosed.
type Subscription struct {
	id     uint64
	kind   string
	traits wire.SubscriptionTraits
	owner  *Session

	events chan wire.Event
	done   chan struct{}

	dropped atomic.Uint64

	mu            sync.Mutex
	state         SubscriptionState
	err           error
	completed     bool
	finished      bool
	unsubscribing bool
}

func newSubscription(kind string, traits wire.SubscriptionTraits, buffer int, owner *Session) *Subscription {
	return &Subscription{
		kind:   kind,
		traits: traits,
		owner:  owner,
		events: make(chan wire.Event, buffer),
		done:   make(chan struct{}),
		state:  Pending,
	}
}

// ID is the request id of the subscribe command. Events carry it.
func (s *Subscription) ID() uint64 { return s.id }

// Kind is the type of the subscribe command.
func (s *Subscription) Kind() string { return s.kind }

// Events returns the event stream.
func (s *Subscription) Events() <-chan wire.Event { return s.events }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns nil while the subscription is open, then the reason it
// ended.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Completed reports whether a temporary subscription ended with its
// terminal event.
func (s *Subscription) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Dropped returns how many events were discarded because the Events
// queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Unsubscribe asks the server to end an active subscription and waits
// for the acknowledgement, after which the subscription is Removed
// with a nil Err. On any other state, or while another Unsubscribe is
// in flight, it does nothing.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Active || s.unsubscribing {
		s.mu.Unlock()
		return nil
	}
	s.unsubscribing = true
	s.mu.Unlock()

	err := s.owner.unsubscribe(ctx, s)

	s.mu.Lock()
	s.unsubscribing = false
	s.mu.Unlock()
	return err
}

// deliver queues event without blocking. active is false once the
// subscription no longer takes events; accepted is false when the
// queue was full and the event was dropped.
func (s *Subscription) deliver(event wire.Event) (accepted, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return false, false
	}
	select {
	case s.events <- event:
		return true, true
	default:
		s.dropped.Add(1)
		return false, true
	}
}

// activate moves a pending subscription to Active.
func (s *Subscription) activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Pending {
		return false
	}
	s.state = Active
	return true
}

// complete moves an active temporary subscription to Completed and
// ends its stream.
func (s *Subscription) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return false
	}
	s.state = Completed
	s.completed = true
	s.finishLocked(nil)
	return true
}

// remove moves the subscription to Removed. The stream ends with err
// unless it already ended.
func (s *Subscription) remove(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Removed {
		return
	}
	s.state = Removed
	s.finishLocked(err)
}

// finishLocked closes the stream exactly once. Caller holds s.mu.
func (s *Subscription) finishLocked(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = err
	close(s.events)
	close(s.done)
}
