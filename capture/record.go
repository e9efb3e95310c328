// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/hawire/session"
)

// Digest is a keyed BLAKE3 digest of one record.
type Digest [32]byte

// Record is one frame in a journal.
type Record struct {
	// Sequence numbers records from 1 with no gaps.
	Sequence  uint64            `cbor:"seq"`
	Time      time.Time         `cbor:"time"`
	Direction session.Direction `cbor:"dir"`
	Frame     []byte            `cbor:"frame"`
	Digest    Digest            `cbor:"digest"`
}

// recordDomainKey separates record digests from any other use of
// BLAKE3 over the same bytes. ASCII, zero-padded to 32 bytes.
var recordDomainKey = [32]byte{
	'h', 'a', 'w', 'i', 'r', 'e', '.', 'c', 'a', 'p', 't', 'u', 'r', 'e', '.',
	'r', 'e', 'c', 'o', 'r', 'd',
}

// computeDigest covers the sequence number, direction and frame. The
// timestamp is informational and excluded.
func computeDigest(sequence uint64, direction session.Direction, frame []byte) Digest {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("capture: BLAKE3 keyed hasher: " + err.Error())
	}
	var prefix [9]byte
	binary.BigEndian.PutUint64(prefix[:8], sequence)
	prefix[8] = byte(direction)
	hasher.Write(prefix[:])
	hasher.Write(frame)

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Verify reports whether the record's digest matches its contents.
func (r *Record) Verify() bool {
	return computeDigest(r.Sequence, r.Direction, r.Frame) == r.Digest
}

// DigestMismatchError reports a record whose contents do not match
// its digest.
type DigestMismatchError struct {
	Sequence uint64
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("capture: record %d: digest mismatch", e.Sequence)
}

// SequenceError reports a record out of order, which means records
// were lost or reordered.
type SequenceError struct {
	Expected uint64
	Got      uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("capture: record %d follows record %d", e.Got, e.Expected-1)
}
