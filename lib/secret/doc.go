// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the Home Assistant access token outside the Go
// heap.
//
// A [Buffer] is an anonymous mmap region, locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks and
// unmaps it; any later read panics.
//
// The token is turned into a Go string exactly once per connection,
// when the session builds the auth frame. Everything before that
// (reading the token file, prompting on a terminal) goes through
// [ReadFromPath], [ReadFrom] or [NewFromBytes], which zero their
// intermediate copies.
package secret
