// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records the frames of a session to a journal file
// and reads them back.
//
// A journal starts with an eight byte header: the magic "HAWCAP", a
// format version, and a mode byte holding the compression tag and an
// encryption flag. The body is a CBOR sequence of [Record] values,
// compressed with zstd or lz4 when configured, and encrypted to age
// X25519 recipients when any are given. The header is never encrypted
// so that a reader can report what it is looking at before asking for
// an identity.
//
// Every record carries a keyed BLAKE3 digest over its sequence number,
// direction and frame, which [Reader.Next] verifies.
//
// [Writer] implements session.Tap. Outbound auth frames are rewritten
// before they are recorded so the access token never reaches the
// journal.
package capture
