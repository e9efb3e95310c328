// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/bureau-foundation/hawire/wire"
)

// heartbeat pings every interval and ends the session with
// ErrHeartbeatTimeout when a pong takes longer than timeout.
func (s *Session) heartbeat(interval, timeout time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		request, err := s.Dispatch(&wire.Ping{})
		if err != nil {
			return
		}
		select {
		case <-request.Done():
		case <-s.clock.After(timeout):
			request.Cancel()
			s.logger.Warn("no pong from server", "request_id", request.ID(), "timeout", timeout)
			s.shutdown(ErrHeartbeatTimeout)
			return
		case <-s.done:
			return
		}
	}
}
