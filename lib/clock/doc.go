// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations used by the session
// heartbeat and the capture journal, so tests can drive them without
// sleeping.
//
// Production code takes a Clock and defaults it to Real(). Tests pass
// Fake(), which stands still until Advance is called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session, _ := session.Connect(ctx, session.Config{Clock: fake, PingInterval: time.Minute, ...})
//	fake.WaitForTimers(1)      // the heartbeat ticker is registered
//	fake.Advance(time.Minute)  // the heartbeat sends a ping
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
