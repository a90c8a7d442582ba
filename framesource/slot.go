// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package framesource

import (
	"context"
	"sync"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Slot is a single-frame mailbox between the compositor and the
// bridge. The zero value is not usable; call NewSlot.
type Slot struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending *pixel.FrameBuffer
	latest  *pixel.FrameBuffer

	closed   bool
	closeErr error

	stats Stats
}

// NewSlot returns an open, empty Slot.
func NewSlot() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Commit hands a finished frame to the slot. The caller must not
// modify frame afterwards. If the previous frame has not been
// collected it is replaced and counted as coalesced. Commit never
// blocks beyond the slot's own mutex and returns ErrSourceClosed after
// Close.
func (s *Slot) Commit(frame *pixel.FrameBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	if s.pending != nil {
		s.stats.Coalesced++
	}
	s.pending = frame
	s.latest = frame
	s.stats.Committed++
	s.cond.Broadcast()
	return nil
}

// WaitForFrame implements Source.
func (s *Slot) WaitForFrame(ctx context.Context) (*pixel.FrameBuffer, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending == nil && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}
	if s.closed {
		return nil, s.closeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := s.pending
	s.pending = nil
	s.stats.Delivered++
	return frame, nil
}

// Latest implements Source.
func (s *Slot) Latest() *pixel.FrameBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Stats implements Source.
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close marks the output removed. Waiters and later calls get
// ErrSourceClosed; an uncollected frame is dropped. Close is
// idempotent.
func (s *Slot) Close() {
	s.Fail(ErrSourceClosed)
}

// Fail closes the slot with a specific error, such as a format
// mismatch detected at the compositor handshake. Only the first
// Close or Fail takes effect.
func (s *Slot) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = err
	s.pending = nil
	s.cond.Broadcast()
}
