// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package framesource

import (
	"context"
	"errors"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// ErrSourceClosed is returned once the output has been removed or the
// session has ended.
var ErrSourceClosed = errors.New("frame source closed")

// ErrFormatMismatch is pixel.ErrFormatMismatch, re-exported for
// callers that only deal with sources.
var ErrFormatMismatch = pixel.ErrFormatMismatch

// Source delivers committed frames to the bridge.
type Source interface {
	// WaitForFrame blocks until a frame newer than the last one it
	// returned is available, ctx is done, or the source closes. The
	// returned buffer is immutable.
	WaitForFrame(ctx context.Context) (*pixel.FrameBuffer, error)

	// Latest returns the most recently committed frame without
	// blocking, or nil if none has been committed.
	Latest() *pixel.FrameBuffer

	// Stats returns delivery counters.
	Stats() Stats
}

// Stats counts frames through a source.
type Stats struct {
	// Committed is the number of frames handed in by the compositor.
	Committed uint64 `json:"committed"`

	// Delivered is the number returned by WaitForFrame.
	Delivered uint64 `json:"delivered"`

	// Coalesced is the number replaced in the slot before any
	// WaitForFrame collected them.
	Coalesced uint64 `json:"coalesced"`
}
