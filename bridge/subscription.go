// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"sync"

	"github.com/termuxwc/termuxwc/lib/damage"
)

// Update is what a subscriber receives: the frame to read from and the
// area to send.
type Update struct {
	Frame *Frame

	// Region lies inside Frame.Buffer's bounds.
	Region damage.Region

	// Resized is set on the first update after a size change. The
	// region then covers the whole frame.
	Resized bool
}

// Subscription is one consumer's view of the published frames.
type Subscription struct {
	id     string
	bridge *Bridge
	grid   *damage.Grid

	mu      sync.Mutex
	resized bool
	closed  bool

	ready chan struct{}
	done  chan struct{}
}

func newSubscription(id string, bridge *Bridge, width, height, tile int) *Subscription {
	s := &Subscription{
		id:     id,
		bridge: bridge,
		grid:   damage.NewGrid(width, height, tile),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.grid.MarkAll()
	s.signal()
	return s
}

// ID returns the subscriber id.
func (s *Subscription) ID() string { return s.id }

// Ready receives a value when damage may be pending. It is a hint:
// Take may still report nothing.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Done is closed when the subscription is closed, either by the
// subscriber or because the bridge stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Take returns the accumulated damage together with the current frame
// and clears it. The region covers every change between the frame
// handed out by the previous Take and this one.
func (s *Subscription) Take() (Update, bool) {
	s.bridge.mu.Lock()
	s.mu.Lock()
	resized := s.resized
	s.resized = false
	s.mu.Unlock()
	region := s.grid.Take()
	frame := s.bridge.Current()
	s.bridge.mu.Unlock()

	if region.Empty() && !resized {
		return Update{Frame: frame}, false
	}
	if resized {
		region = damage.Full(frame.Buffer.Width, frame.Buffer.Height)
	} else {
		region = region.Clip(frame.Buffer.Width, frame.Buffer.Height)
	}
	return Update{Frame: frame, Region: region, Resized: resized}, true
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bridge.remove(s)
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *Subscription) mark(region damage.Region) {
	s.grid.Mark(region)
	s.signal()
}

func (s *Subscription) markAll() {
	s.grid.MarkAll()
	s.signal()
}

func (s *Subscription) resize(width, height int) {
	s.mu.Lock()
	s.resized = true
	s.mu.Unlock()
	s.grid.Reset(width, height)
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}
