// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/hawire/lib/clock"
	"github.com/bureau-foundation/hawire/lib/codec"
	"github.com/bureau-foundation/hawire/session"
	"github.com/bureau-foundation/hawire/wire"
)

// RedactedToken replaces the access token in recorded auth frames.
const RedactedToken = "<redacted>"

// ErrWriterClosed is returned by Record after Close.
var ErrWriterClosed = errors.New("capture: writer closed")

// WriterConfig configures NewWriter and Create.
type WriterConfig struct {
	// Compression applies to the journal body.
	Compression Compression

	// Recipients are age X25519 public keys (age1...). When any are
	// given the body is encrypted to all of them.
	Recipients []string

	// Clock stamps records. Nil uses clock.Real().
	Clock clock.Clock

	// Logger reports write failures from ObserveFrame. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Writer appends records to a journal. It is safe for concurrent use.
type Writer struct {
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	encoder    *codec.Encoder
	compressor compressor
	encryptor  io.WriteCloser
	file       io.Closer
	sequence   uint64
	err        error
	reported   bool
	closed     bool
}

var _ session.Tap = (*Writer)(nil)

// compressor is the common surface of the zstd and lz4 stream
// writers.
type compressor interface {
	io.Writer
	Flush() error
	Close() error
}

type passthrough struct{ io.Writer }

func (passthrough) Flush() error { return nil }
func (passthrough) Close() error { return nil }

// nopWriteCloser wraps the destination when there is no encryption
// layer; closing the journal never closes the caller's writer.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter writes the journal header to w and returns a Writer for
// the body. Close finishes the journal but does not close w.
func NewWriter(w io.Writer, config WriterConfig) (*Writer, error) {
	if config.Compression > CompressionZstd {
		return nil, fmt.Errorf("capture: unsupported compression %s", config.Compression)
	}
	recipients := make([]age.Recipient, 0, len(config.Recipients))
	for _, key := range config.Recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("capture: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	head := header{
		version:     FormatVersion,
		compression: config.Compression,
		encrypted:   len(recipients) > 0,
	}
	if _, err := w.Write(head.marshal()); err != nil {
		return nil, fmt.Errorf("capture: writing header: %w", err)
	}

	var encryptor io.WriteCloser = nopWriteCloser{w}
	if head.encrypted {
		var err error
		encryptor, err = age.Encrypt(w, recipients...)
		if err != nil {
			return nil, fmt.Errorf("capture: creating age encryptor: %w", err)
		}
	}

	var body compressor
	switch config.Compression {
	case CompressionNone:
		body = passthrough{encryptor}
	case CompressionLZ4:
		body = lz4.NewWriter(encryptor)
	case CompressionZstd:
		encoder, err := zstd.NewWriter(encryptor, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("capture: creating zstd encoder: %w", err)
		}
		body = encoder
	}

	writer := &Writer{
		clock:      config.Clock,
		logger:     config.Logger,
		encoder:    codec.NewEncoder(body),
		compressor: body,
		encryptor:  encryptor,
	}
	if writer.clock == nil {
		writer.clock = clock.Real()
	}
	if writer.logger == nil {
		writer.logger = slog.Default()
	}
	return writer, nil
}

// Create creates (or truncates) the journal at path, readable only by
// the owner. Close closes the file.
func Create(path string, config WriterConfig) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	writer, err := NewWriter(file, config)
	if err != nil {
		file.Close()
		return nil, err
	}
	writer.file = file
	return writer, nil
}

// ObserveFrame records a frame. It implements session.Tap, so it
// cannot report failure: the first error is logged, kept for Err, and
// stops further recording.
func (w *Writer) ObserveFrame(direction session.Direction, frame []byte) {
	err := w.Record(direction, frame)
	if err == nil || errors.Is(err, ErrWriterClosed) {
		return
	}
	w.mu.Lock()
	report := !w.reported
	w.reported = true
	w.mu.Unlock()
	if report {
		w.logger.Warn("capture stopped", "error", err, "records", w.Count())
	}
}

// Record appends one frame. Outbound auth frames are redacted.
func (w *Writer) Record(direction session.Direction, frame []byte) error {
	if direction == session.Outbound {
		frame = redact(frame)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}

	sequence := w.sequence + 1
	record := Record{
		Sequence:  sequence,
		Time:      w.clock.Now().UTC(),
		Direction: direction,
		Frame:     frame,
		Digest:    computeDigest(sequence, direction, frame),
	}
	if err := w.encoder.Encode(&record); err != nil {
		w.err = fmt.Errorf("capture: writing record %d: %w", sequence, err)
		return w.err
	}
	w.sequence = sequence
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sequence
}

// Err returns the error that stopped recording, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Flush pushes compressed data to the destination. Encrypted journals
// are written in age's fixed-size chunks, so the tail of an encrypted
// journal only reaches the destination on Close.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.compressor.Flush(); err != nil {
		return fmt.Errorf("capture: flushing: %w", err)
	}
	return nil
}

// Close finishes the journal. Further records are refused.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.compressor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("capture: finishing compression: %w", err))
	}
	if err := w.encryptor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("capture: finishing encryption: %w", err))
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture: %w", err))
		}
	}
	return errors.Join(errs...)
}

// redactedAuthFrame stands in for every outbound auth frame.
var redactedAuthFrame []byte

func init() {
	var err error
	redactedAuthFrame, err = wire.Encode(&wire.Auth{AccessToken: RedactedToken})
	if err != nil {
		panic("capture: encoding redacted auth frame: " + err.Error())
	}
}

// redact replaces an auth frame with redactedAuthFrame. Only the
// discriminator is parsed, so the token is never copied.
func redact(frame []byte) []byte {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil || probe.Type != wire.TypeAuth {
		return frame
	}
	return redactedAuthFrame
}
