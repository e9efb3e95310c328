// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/hawire/lib/codec"
)

// ErrIdentityRequired is returned when opening an encrypted journal
// without any identity.
var ErrIdentityRequired = errors.New("capture: journal is encrypted; an age identity is required")

// Reader reads the records of a journal in order.
type Reader struct {
	header  header
	decoder *codec.Decoder
	zstd    *zstd.Decoder
	file    io.Closer
	next    uint64
	err     error
}

// NewReader reads the journal header from r. Encrypted journals are
// decrypted with the first identity that matches a recipient.
func NewReader(r io.Reader, identities ...age.Identity) (*Reader, error) {
	head, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	body := r
	if head.encrypted {
		if len(identities) == 0 {
			return nil, ErrIdentityRequired
		}
		body, err = age.Decrypt(r, identities...)
		if err != nil {
			return nil, fmt.Errorf("capture: decrypting: %w", err)
		}
	}

	reader := &Reader{header: head, next: 1}
	switch head.compression {
	case CompressionLZ4:
		body = lz4.NewReader(body)
	case CompressionZstd:
		reader.zstd, err = zstd.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("capture: creating zstd decoder: %w", err)
		}
		body = reader.zstd
	}
	reader.decoder = codec.NewDecoder(body)
	return reader, nil
}

// Open opens the journal at path. Close closes the file.
func Open(path string, identities ...age.Identity) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	reader, err := NewReader(file, identities...)
	if err != nil {
		file.Close()
		return nil, err
	}
	reader.file = file
	return reader, nil
}

// Compression returns the body compression named in the header.
func (r *Reader) Compression() Compression { return r.header.compression }

// Encrypted reports whether the body is age-encrypted.
func (r *Reader) Encrypted() bool { return r.header.encrypted }

// Next returns the next record, or io.EOF after the last one. A record
// whose digest does not match returns a *DigestMismatchError and a
// gap in the sequence a *SequenceError; both are final, as is a
// truncated journal.
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	record, err := r.decode()
	if err != nil {
		r.err = err
		return nil, err
	}
	r.next++
	return record, nil
}

func (r *Reader) decode() (*Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("capture: reading record %d: %w", r.next, err)
	}
	if record.Sequence != r.next {
		return nil, &SequenceError{Expected: r.next, Got: record.Sequence}
	}
	if !record.Verify() {
		return nil, &DigestMismatchError{Sequence: record.Sequence}
	}
	return &record, nil
}

// Close releases the decompressor and, for Open, the file.
func (r *Reader) Close() error {
	if r.zstd != nil {
		r.zstd.Close()
		r.zstd = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// LoadIdentities reads age identities from a file in age-keygen
// format. Comment and blank lines are ignored.
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer file.Close()
	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("capture: parsing identities in %s: %w", path, err)
	}
	return identities, nil
}
