// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/hawire/wire"
)

// pendingTable correlates outgoing commands with their answers.
//
// mu guards the id counter and both maps and is never held while
// waiting or writing. sendMu serializes dispatch so that ids reach the
// wire in the order they were assigned.
type pendingTable struct {
	logger *slog.Logger

	sendMu sync.Mutex

	mu        sync.Mutex
	lastID    uint64
	entries   map[uint64]*pendingRequest
	abandoned map[uint64]struct{}
	closedErr error
}

// pendingRequest is a single-assignment completion slot. result and
// err are written once, before done is closed.
type pendingRequest struct {
	done   chan struct{}
	result json.RawMessage
	err    error
}

func (r *pendingRequest) fulfil(result json.RawMessage, err error) {
	r.result = result
	r.err = err
	close(r.done)
}

func newPendingTable(logger *slog.Logger) *pendingTable {
	return &pendingTable{
		logger:    logger,
		entries:   make(map[uint64]*pendingRequest),
		abandoned: make(map[uint64]struct{}),
	}
}

// dispatch stamps command with the next id, registers it, runs
// prepare (which may register state keyed by the id), and writes the
// command. If write fails the registration is undone and the error
// returned.
func (p *pendingTable) dispatch(command wire.Command, prepare func(id uint64), write func(wire.Message) error) (*Request, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	if p.closedErr != nil {
		err := p.closedErr
		p.mu.Unlock()
		return nil, err
	}
	p.lastID++
	id := p.lastID
	command.SetRequestID(id)
	entry := &pendingRequest{done: make(chan struct{})}
	p.entries[id] = entry
	p.mu.Unlock()

	if prepare != nil {
		prepare(id)
	}
	if err := write(command); err != nil {
		p.mu.Lock()
		delete(p.entries, id)
		p.mu.Unlock()
		return nil, err
	}
	return &Request{id: id, entry: entry, table: p}, nil
}

// resolve fulfils the request with the given id. Anything that finds
// no pending request is logged and otherwise ignored: a late answer to
// a cancelled request at debug level, a duplicate or unknown id as a
// warning.
func (p *pendingTable) resolve(id uint64, result json.RawMessage, err error) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
		p.mu.Unlock()
		entry.fulfil(result, err)
		return
	}
	_, abandoned := p.abandoned[id]
	delete(p.abandoned, id)
	lastID := p.lastID
	p.mu.Unlock()

	switch {
	case abandoned:
		p.logger.Debug("discarding result for cancelled request", "request_id", id)
	case id != 0 && id <= lastID:
		p.logger.Warn("duplicate resolution", "request_id", id)
	default:
		p.logger.Warn("result for unknown request id", "request_id", id, "last_id", lastID)
	}
}

// cancel removes a pending request without wire traffic. It reports
// whether the request was still pending.
func (p *pendingTable) cancel(id uint64) bool {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
		p.abandoned[id] = struct{}{}
	}
	p.mu.Unlock()

	if ok {
		entry.fulfil(nil, ErrRequestCancelled)
	}
	return ok
}

// closeAll fails every pending request with err and refuses further
// dispatches.
func (p *pendingTable) closeAll(err error) {
	p.mu.Lock()
	if p.closedErr != nil {
		p.mu.Unlock()
		return
	}
	p.closedErr = err
	entries := p.entries
	p.entries = make(map[uint64]*pendingRequest)
	p.abandoned = make(map[uint64]struct{})
	p.mu.Unlock()

	for _, entry := range entries {
		entry.fulfil(nil, err)
	}
}

// pendingCount is for tests.
func (p *pendingTable) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Request is the handle for one dispatched command.
type Request struct {
	id    uint64
	entry *pendingRequest
	table *pendingTable
}

// ID returns the request id assigned to the command.
func (r *Request) ID() uint64 { return r.id }

// Done is closed once the request has an outcome.
func (r *Request) Done() <-chan struct{} { return r.entry.done }

// Await waits for the answer. A successful result returns its raw
// result payload; a failed one returns a *wire.RequestError. If ctx
// ends first the request is cancelled and ctx.Err() returned.
func (r *Request) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-r.entry.done:
		return r.entry.result, r.entry.err
	case <-ctx.Done():
		if r.table.cancel(r.id) {
			return nil, ctx.Err()
		}
		<-r.entry.done
		return r.entry.result, r.entry.err
	}
}

// Cancel abandons the request. A blocked Await returns
// ErrRequestCancelled and a late answer from the server is discarded.
// Cancel after the request has completed does nothing.
func (r *Request) Cancel() {
	r.table.cancel(r.id)
}
