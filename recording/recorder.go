// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/termuxwc/termuxwc/bridge"
	"github.com/termuxwc/termuxwc/lib/clock"
	"github.com/termuxwc/termuxwc/lib/codec"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Options configures a Recorder.
type Options struct {
	// Compression is CompressionZstd (the default when empty) or
	// CompressionNone.
	Compression string

	// Clock stamps records. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Stats counts what has been written.
type Stats struct {
	Records uint64 `json:"records" cbor:"records"`
	Rects   uint64 `json:"rects" cbor:"rects"`
	Pixels  uint64 `json:"pixel_bytes" cbor:"pixel_bytes"`
}

// Recorder appends records to a writer.
type Recorder struct {
	encoder     *codec.Encoder
	closer      io.Closer
	compression string
	zstd        *zstd.Encoder
	clock       clock.Clock
	started     time.Time
	logger      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Create creates (or truncates) the file at path and starts a
// recording in it.
func Create(path string, width, height int, options Options) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	recorder, err := NewRecorder(file, width, height, options)
	if err != nil {
		file.Close()
		return nil, err
	}
	recorder.closer = file
	return recorder, nil
}

// NewRecorder writes the magic and header to w.
func NewRecorder(w io.Writer, width, height int, options Options) (*Recorder, error) {
	if options.Compression == "" {
		options.Compression = CompressionZstd
	}
	if err := validateCompression(options.Compression); err != nil {
		return nil, err
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	r := &Recorder{
		encoder:     codec.NewEncoder(w),
		compression: options.Compression,
		clock:       options.Clock,
		started:     options.Clock.Now(),
		logger:      options.Logger,
	}
	if r.compression == CompressionZstd {
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("recording: creating zstd encoder: %w", err)
		}
		r.zstd = encoder
	}

	if _, err := io.WriteString(w, Magic); err != nil {
		return nil, fmt.Errorf("recording: writing magic: %w", err)
	}
	header := Header{
		Version:     FormatVersion,
		Width:       width,
		Height:      height,
		Format:      pixel.ServerFormat.AppendWire(nil),
		Compression: r.compression,
		Started:     r.started.UnixNano(),
	}
	if err := r.encoder.Encode(header); err != nil {
		return nil, fmt.Errorf("recording: writing header: %w", err)
	}
	return r, nil
}

// Write appends one update.
func (r *Recorder) Write(update bridge.Update) error {
	frame := update.Frame
	digest := frame.Buffer.Digest()
	record := Record{
		Seq:    frame.Seq,
		Offset: r.clock.Now().Sub(r.started).Nanoseconds(),
		Width:  frame.Buffer.Width,
		Height: frame.Buffer.Height,
		Rects:  make([]Rect, 0, len(update.Region)),
		Digest: digest[:],
	}
	var pixelBytes uint64
	for _, rect := range update.Region {
		pixels := pixel.AppendRect(nil, frame.Buffer, rect, pixel.ServerFormat)
		pixelBytes += uint64(len(pixels))
		if r.zstd != nil {
			pixels = r.zstd.EncodeAll(pixels, nil)
		}
		record.Rects = append(record.Rects, Rect{
			X:      rect.X,
			Y:      rect.Y,
			Width:  rect.Width,
			Height: rect.Height,
			Pixels: pixels,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.encoder.Encode(record); err != nil {
		return fmt.Errorf("recording: writing record %d: %w", frame.Seq, err)
	}
	r.stats.Records++
	r.stats.Rects += uint64(len(record.Rects))
	r.stats.Pixels += pixelBytes
	return nil
}

// Run records every update from subscription until it closes or ctx
// is cancelled. A write error ends the recording.
func (r *Recorder) Run(ctx context.Context, subscription *bridge.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-subscription.Done():
			// Catch the damage published just before the close.
			if update, ok := subscription.Take(); ok {
				return r.Write(update)
			}
			return nil
		case <-subscription.Ready():
		}
		update, ok := subscription.Take()
		if !ok {
			continue
		}
		if err := r.Write(update); err != nil {
			r.logger.Error("recording stopped", "error", err)
			return err
		}
	}
}

// Stats returns the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close releases the compressor and closes the file opened by Create.
func (r *Recorder) Close() error {
	if r.zstd != nil {
		r.zstd.Close()
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
