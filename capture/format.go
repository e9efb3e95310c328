// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"fmt"
	"io"
)

// Magic opens every journal.
const Magic = "HAWCAP"

// FormatVersion is the journal version this package writes.
const FormatVersion = 1

const (
	headerSize    = len(Magic) + 2
	encryptedFlag = 0x80
	tagMask       = 0x0f
)

// Compression identifies how the journal body is compressed. The
// values are stored in the header; changing them breaks existing
// journals.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the configuration name of a compression
// algorithm. The empty string selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("capture: unknown compression %q", name)
	}
}

// ErrNotJournal is returned when the input does not start with Magic.
var ErrNotJournal = errors.New("capture: not a capture journal")

// header is the fixed prefix of a journal.
type header struct {
	version     uint8
	compression Compression
	encrypted   bool
}

func (h header) marshal() []byte {
	mode := byte(h.compression) & tagMask
	if h.encrypted {
		mode |= encryptedFlag
	}
	buffer := make([]byte, 0, headerSize)
	buffer = append(buffer, Magic...)
	return append(buffer, h.version, mode)
}

func readHeader(r io.Reader) (header, error) {
	buffer := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buffer); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return header{}, ErrNotJournal
		}
		return header{}, fmt.Errorf("capture: reading header: %w", err)
	}
	if string(buffer[:len(Magic)]) != Magic {
		return header{}, ErrNotJournal
	}
	parsed := header{
		version:     buffer[len(Magic)],
		compression: Compression(buffer[len(Magic)+1] & tagMask),
		encrypted:   buffer[len(Magic)+1]&encryptedFlag != 0,
	}
	if parsed.version != FormatVersion {
		return header{}, fmt.Errorf("capture: unsupported journal version %d", parsed.version)
	}
	if parsed.compression > CompressionZstd {
		return header{}, fmt.Errorf("capture: unsupported compression tag %d", uint8(parsed.compression))
	}
	return parsed, nil
}
