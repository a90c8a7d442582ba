// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// SizeFunc returns the current output size in pixels.
type SizeFunc func() (width, height int)

// Bridge delivers queued events to an Injector in order.
type Bridge struct {
	queue    *Queue
	injector Injector
	size     SizeFunc
	logger   *slog.Logger

	// held is only touched by the Run goroutine.
	held map[string]*heldState

	mu       sync.Mutex
	departed []string
	stats    BridgeStats
	wake     chan struct{}
}

// BridgeStats counts delivery outcomes.
type BridgeStats struct {
	Injected uint64 `json:"injected"`

	// Failed is injections rejected with an error other than
	// ErrUnavailable.
	Failed uint64 `json:"failed"`

	// Unavailable is events discarded because the injector reported
	// ErrUnavailable, including the one that observed it.
	Unavailable uint64 `json:"unavailable"`

	// Released is synthetic releases sent for departed viewers.
	Released uint64 `json:"released"`
}

type heldState struct {
	buttons map[uint32]bool
	keys    map[uint32]bool
}

// NewBridge returns a Bridge reading from queue. size supplies the
// output dimensions at delivery time.
func NewBridge(queue *Queue, injector Injector, size SizeFunc, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		queue:    queue,
		injector: injector,
		size:     size,
		logger:   logger,
		held:     make(map[string]*heldState),
		wake:     make(chan struct{}, 1),
	}
}

// Run delivers events until ctx is cancelled or the queue is closed.
// It never returns an error from the injector: failures are counted
// and logged.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		b.releaseDeparted(ctx)

		event, ok := b.queue.Pop()
		if ok {
			b.deliver(ctx, event)
			continue
		}
		if b.queue.Closed() {
			return nil
		}

		select {
		case <-b.queue.Notify():
		case <-b.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

// ReleaseViewer schedules release events for every button and key the
// viewer still holds. Call it after Queue.DiscardFrom when a viewer
// disconnects.
func (b *Bridge) ReleaseViewer(viewer string) {
	b.mu.Lock()
	b.departed = append(b.departed, viewer)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the counters.
func (b *Bridge) Stats() BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Bridge) releaseDeparted(ctx context.Context) {
	b.mu.Lock()
	departed := b.departed
	b.departed = nil
	b.mu.Unlock()

	for _, viewer := range departed {
		state := b.held[viewer]
		delete(b.held, viewer)
		if state == nil {
			continue
		}
		for _, button := range slices.Sorted(maps.Keys(state.buttons)) {
			b.inject(ctx, PointerButton(viewer, button, false), true)
		}
		for _, keycode := range slices.Sorted(maps.Keys(state.keys)) {
			b.inject(ctx, Key(viewer, keycode, false), true)
		}
	}
}

func (b *Bridge) deliver(ctx context.Context, event Event) {
	if !b.inject(ctx, event, false) {
		return
	}
	switch event.Kind {
	case KindPointerButton:
		b.track(event.Viewer).set(event.Button, event.Pressed, true)
	case KindKey:
		b.track(event.Viewer).set(event.Keycode, event.Pressed, false)
	}
}

// inject maps and delivers one event, reporting whether it was
// accepted.
func (b *Bridge) inject(ctx context.Context, event Event, synthetic bool) bool {
	injection := Injection{Event: event}
	if event.Kind == KindPointerMove {
		width, height := b.size()
		injection.OutputX = event.X * float64(max(width-1, 0))
		injection.OutputY = event.Y * float64(max(height-1, 0))
	}

	err := b.injector.Inject(ctx, injection)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		if synthetic {
			b.stats.Released++
		} else {
			b.stats.Injected++
		}
		return true
	case errors.Is(err, ErrUnavailable):
		discarded := b.queue.DiscardAll()
		b.stats.Unavailable += uint64(discarded) + 1
		b.logger.Warn("input injection unavailable, discarding queued input",
			"discarded", discarded+1,
			"error", err,
		)
		return false
	default:
		b.stats.Failed++
		b.logger.Debug("input injection failed", "event", event.String(), "viewer_id", event.Viewer, "error", err)
		return false
	}
}

func (b *Bridge) track(viewer string) *heldState {
	state := b.held[viewer]
	if state == nil {
		state = &heldState{buttons: make(map[uint32]bool), keys: make(map[uint32]bool)}
		b.held[viewer] = state
	}
	return state
}

func (s *heldState) set(code uint32, pressed, button bool) {
	target := s.keys
	if button {
		target = s.buttons
	}
	if pressed {
		target[code] = true
	} else {
		delete(target, code)
	}
}
