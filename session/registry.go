// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log/slog"
	"sync"

	"github.com/bureau-foundation/hawire/wire"
)

// registry owns the subscriptions of one connection and routes events
// to them. Only the reader goroutine calls acknowledge and route, so
// events reach each subscription in server order.
type registry struct {
	logger *slog.Logger

	// onComplete runs on the reader goroutine after a temporary
	// subscription completes. It must not block.
	onComplete func(*Subscription)

	mu      sync.Mutex
	entries map[uint64]*Subscription
	// retired holds ids removed locally whose unsubscribe is still in
	// flight; stray events for them are expected.
	retired   map[uint64]struct{}
	gates     map[string]*sync.Mutex
	closedErr error
}

func newRegistry(logger *slog.Logger, onComplete func(*Subscription)) *registry {
	return &registry{
		logger:     logger,
		onComplete: onComplete,
		entries:    make(map[uint64]*Subscription),
		retired:    make(map[uint64]struct{}),
		gates:      make(map[string]*sync.Mutex),
	}
}

// gate returns the mutex serializing subscribes of an exclusive kind.
func (r *registry) gate(kind string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate, ok := r.gates[kind]
	if !ok {
		gate = &sync.Mutex{}
		r.gates[kind] = gate
	}
	return gate
}

// insert registers a pending subscription under id. After teardown the
// subscription is removed at once with the teardown error.
func (r *registry) insert(id uint64, subscription *Subscription) {
	subscription.id = id
	r.mu.Lock()
	if err := r.closedErr; err != nil {
		r.mu.Unlock()
		subscription.remove(err)
		return
	}
	r.entries[id] = subscription
	r.mu.Unlock()
}

// activeOfKind returns the active subscriptions of kind.
func (r *registry) activeOfKind(kind string) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*Subscription
	for _, subscription := range r.entries {
		if subscription.kind == kind && subscription.State() == Active {
			found = append(found, subscription)
		}
	}
	return found
}

// acknowledge applies the result of a subscribe command. Results for
// ids that are not pending subscriptions are ignored.
func (r *registry) acknowledge(result *wire.Result) {
	r.mu.Lock()
	subscription, ok := r.entries[result.ID]
	if ok && subscription.State() != Pending {
		ok = false
	}
	if ok && !result.Success {
		delete(r.entries, result.ID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if result.Success {
		subscription.activate()
		return
	}
	subscription.remove(result.Err())
}

// discard removes subscription with err. When retire is set the id is
// remembered until forget, so late events for it are not reported as
// unroutable.
func (r *registry) discard(subscription *Subscription, err error, retire bool) {
	r.mu.Lock()
	if r.entries[subscription.id] == subscription {
		delete(r.entries, subscription.id)
	}
	if retire && r.closedErr == nil {
		r.retired[subscription.id] = struct{}{}
	}
	r.mu.Unlock()
	subscription.remove(err)
}

// forget drops a retired id.
func (r *registry) forget(id uint64) {
	r.mu.Lock()
	delete(r.retired, id)
	r.mu.Unlock()
}

// route delivers an event. Events with an id go to that subscription;
// events without one go to every active subscription whose kind
// matches the payload. Events nobody takes are dropped and logged.
func (r *registry) route(event *wire.Event) {
	targets, retired := r.targets(event)
	if len(targets) == 0 {
		if retired {
			r.logger.Debug("dropping event for retired subscription", "subscription_id", event.ID)
			return
		}
		r.logger.Warn("unroutable event", "subscription_id", event.ID, "payload_bytes", len(event.Event))
		return
	}

	for _, subscription := range targets {
		accepted, active := subscription.deliver(*event)
		if !active {
			continue
		}
		if !accepted {
			r.logger.Warn("subscription queue full, dropping event",
				"subscription_id", subscription.id,
				"type", subscription.kind,
				"dropped", subscription.Dropped(),
			)
		}
		if !subscription.traits.LongRunning && subscription.traits.Terminal != nil &&
			subscription.traits.Terminal(event.Event) {
			r.complete(subscription)
		}
	}
}

func (r *registry) targets(event *wire.Event) ([]*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID != 0 {
		if subscription, ok := r.entries[event.ID]; ok {
			return []*Subscription{subscription}, false
		}
		_, retired := r.retired[event.ID]
		return nil, retired
	}

	var targets []*Subscription
	for _, subscription := range r.entries {
		if subscription.traits.Match != nil && subscription.traits.Match(event.Event) {
			targets = append(targets, subscription)
		}
	}
	return targets, false
}

// complete ends a temporary subscription after its terminal event.
// Kinds the server cleans up are removed locally; for the others the
// id is retired and onComplete sends the unsubscribe.
func (r *registry) complete(subscription *Subscription) {
	if !subscription.complete() {
		return
	}
	r.mu.Lock()
	delete(r.entries, subscription.id)
	if !subscription.traits.ServerCleanup && r.closedErr == nil {
		r.retired[subscription.id] = struct{}{}
	}
	r.mu.Unlock()

	if subscription.traits.ServerCleanup {
		subscription.remove(nil)
		return
	}
	if r.onComplete != nil {
		r.onComplete(subscription)
	}
}

// teardown removes every pending and active subscription with err and
// refuses later inserts.
func (r *registry) teardown(err error) {
	r.mu.Lock()
	if r.closedErr != nil {
		r.mu.Unlock()
		return
	}
	r.closedErr = err
	entries := r.entries
	r.entries = make(map[uint64]*Subscription)
	r.retired = make(map[uint64]struct{})
	r.mu.Unlock()

	for _, subscription := range entries {
		subscription.remove(err)
	}
}

// count is for tests.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
