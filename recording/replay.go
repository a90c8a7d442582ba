// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/termuxwc/termuxwc/lib/codec"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Result is the outcome of a replay.
type Result struct {
	Header Header

	// Frame is the reconstructed final frame.
	Frame *pixel.FrameBuffer

	Records int
	LastSeq uint64
}

// ReplayFile replays the recording at path.
func ReplayFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	defer file.Close()
	return Replay(file)
}

// Replay reads a recording and reconstructs the final frame, checking
// every record's digest along the way. A recording cut short in the
// middle of a record is an error.
func Replay(r io.Reader) (*Result, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, []byte(Magic)) {
		return nil, ErrNotRecording
	}

	decoder := codec.NewDecoder(r)
	var header Header
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("recording: reading header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("recording: unsupported version %d", header.Version)
	}
	if err := validateCompression(header.Compression); err != nil {
		return nil, err
	}
	format, err := pixel.ParseWire(header.Format)
	if err != nil {
		return nil, fmt.Errorf("recording: header format: %w", err)
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("recording: header format: %w", err)
	}
	if header.Width <= 0 || header.Height <= 0 {
		return nil, fmt.Errorf("recording: invalid size %dx%d", header.Width, header.Height)
	}

	var decompressor *zstd.Decoder
	if header.Compression == CompressionZstd {
		decompressor, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("recording: creating zstd decoder: %w", err)
		}
		defer decompressor.Close()
	}

	result := &Result{
		Header: header,
		Frame:  pixel.NewFrameBuffer(header.Width, header.Height, format),
	}
	for {
		var record Record
		if err := decoder.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return nil, fmt.Errorf("recording: reading record %d: %w", result.Records+1, err)
		}
		if err := apply(result, record, decompressor); err != nil {
			return nil, err
		}
		result.Records++
		result.LastSeq = record.Seq
	}
}

func apply(result *Result, record Record, decompressor *zstd.Decoder) error {
	frame := result.Frame
	if record.Width != frame.Width || record.Height != frame.Height {
		if record.Width <= 0 || record.Height <= 0 {
			return fmt.Errorf("recording: record %d has invalid size %dx%d", record.Seq, record.Width, record.Height)
		}
		frame = pixel.NewFrameBuffer(record.Width, record.Height, frame.Format)
		result.Frame = frame
	}

	for _, rect := range record.Rects {
		pixels := rect.Pixels
		if decompressor != nil {
			decoded, err := decompressor.DecodeAll(pixels, nil)
			if err != nil {
				return fmt.Errorf("recording: record %d: decompressing rect: %w", record.Seq, err)
			}
			pixels = decoded
		}
		target := pixel.Rect{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
		if err := frame.WriteRect(target, pixels); err != nil {
			return fmt.Errorf("recording: record %d: %w", record.Seq, err)
		}
	}

	if len(record.Digest) > 0 {
		digest := frame.Digest()
		if !bytes.Equal(record.Digest, digest[:]) {
			return fmt.Errorf("%w at seq %d", ErrDigestMismatch, record.Seq)
		}
	}
	return nil
}
