// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"errors"
	"fmt"
)

// Magic opens every recording.
const Magic = "TWCREC1\n"

// FormatVersion is the Header.Version written by this package.
const FormatVersion = 1

// Compression names.
const (
	CompressionZstd = "zstd"
	CompressionNone = "none"
)

var (
	// ErrNotRecording is returned by Replay for input without the
	// magic.
	ErrNotRecording = errors.New("recording: not a recording")

	// ErrDigestMismatch is returned by Replay when a reconstructed
	// frame does not hash to the recorded digest.
	ErrDigestMismatch = errors.New("recording: frame digest mismatch")
)

// Header describes the recording.
type Header struct {
	Version int `cbor:"version"`

	// Width and Height are the frame size when recording started.
	Width  int `cbor:"width"`
	Height int `cbor:"height"`

	// Format is the 16-byte RFB encoding of the pixel format of
	// every rectangle.
	Format []byte `cbor:"format"`

	Compression string `cbor:"compression"`

	// Started is the wall clock at the start, in Unix nanoseconds.
	Started int64 `cbor:"started"`
}

// Record is one update.
type Record struct {
	Seq uint64 `cbor:"seq"`

	// Offset is nanoseconds since Header.Started.
	Offset int64 `cbor:"offset"`

	// Width and Height are the frame size this update applies to.
	// A change from the previous record means the frame was
	// reallocated.
	Width  int `cbor:"width"`
	Height int `cbor:"height"`

	Rects []Rect `cbor:"rects"`

	// Digest is the BLAKE3 digest of the frame after this update.
	Digest []byte `cbor:"digest,omitempty"`
}

// Rect is one damaged rectangle and its pixels.
type Rect struct {
	X      int    `cbor:"x"`
	Y      int    `cbor:"y"`
	Width  int    `cbor:"w"`
	Height int    `cbor:"h"`
	Pixels []byte `cbor:"pixels"`
}

func validateCompression(compression string) error {
	switch compression {
	case CompressionZstd, CompressionNone:
		return nil
	default:
		return fmt.Errorf("recording: unknown compression %q", compression)
	}
}
