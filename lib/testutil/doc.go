// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides the channel helpers shared by hawire's
// tests.
//
// [RequireReceive], [RequireSend], [RequireClosed] and
// [RequireNoReceive] wrap the select-with-timeout pattern so tests
// never call time.After themselves. They are the only wall-clock
// timeouts in the test suite; everything else runs on a fake clock.
//
// All helpers call t.Fatalf on failure.
package testutil
