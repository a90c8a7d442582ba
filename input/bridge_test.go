// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/termuxwc/termuxwc/lib/testutil"
)

// recordingInjector records every injection and can be switched to
// fail with ErrUnavailable.
type recordingInjector struct {
	mu          sync.Mutex
	injections  []Injection
	unavailable bool
	delivered   chan Injection
}

func newRecordingInjector() *recordingInjector {
	return &recordingInjector{delivered: make(chan Injection, 64)}
}

func (r *recordingInjector) Inject(ctx context.Context, injection Injection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return fmt.Errorf("compositor gone: %w", ErrUnavailable)
	}
	r.injections = append(r.injections, injection)
	r.delivered <- injection
	return nil
}

func (r *recordingInjector) setUnavailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = true
}

func runBridge(t *testing.T, bridge *Bridge) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, testutil.Timeout, "bridge Run to return")
	})
}

func fixedSize(width, height int) SizeFunc {
	return func() (int, int) { return width, height }
}

func TestBridgePreservesPressBeforeRelease(t *testing.T) {
	t.Parallel()

	queue := NewQueue(16)
	injector := newRecordingInjector()
	runBridge(t, NewBridge(queue, injector, fixedSize(800, 600), nil))

	queue.Push(PointerMove("v", 0.5, 0.5))
	queue.Push(PointerButton("v", ButtonLeft, true))
	queue.Push(PointerButton("v", ButtonLeft, false))

	kinds := []Kind{KindPointerMove, KindPointerButton, KindPointerButton}
	pressed := []bool{false, true, false}
	for i := range kinds {
		got := testutil.RequireReceive(t, injector.delivered, testutil.Timeout, "injection %d", i)
		if got.Kind != kinds[i] || got.Pressed != pressed[i] {
			t.Errorf("injection %d: got %s, want kind %s pressed %v", i, got.Event, kinds[i], pressed[i])
		}
	}
}

func TestBridgeMapsCoordinatesAtDeliveryTime(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	width, height := 800, 600
	size := func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		return width, height
	}

	queue := NewQueue(16)
	injector := newRecordingInjector()
	runBridge(t, NewBridge(queue, injector, size, nil))

	queue.Push(PointerMove("v", 1, 0.5))
	first := testutil.RequireReceive(t, injector.delivered, testutil.Timeout, "first move")
	if first.OutputX != 799 || first.OutputY != 299.5 {
		t.Errorf("first move: got (%v, %v), want (799, 299.5)", first.OutputX, first.OutputY)
	}

	mu.Lock()
	width, height = 1025, 769
	mu.Unlock()
	queue.Push(PointerMove("v", 1, 0.5))
	second := testutil.RequireReceive(t, injector.delivered, testutil.Timeout, "second move")
	if second.OutputX != 1024 || second.OutputY != 384 {
		t.Errorf("second move: got (%v, %v), want (1024, 384)", second.OutputX, second.OutputY)
	}
}

func TestBridgeDiscardsWhenUnavailable(t *testing.T) {
	t.Parallel()

	queue := NewQueue(16)
	injector := newRecordingInjector()
	injector.setUnavailable()
	bridge := NewBridge(queue, injector, fixedSize(800, 600), nil)

	for keycode := uint32(1); keycode <= 4; keycode++ {
		queue.Push(Key("v", keycode, true))
	}
	runBridge(t, bridge)

	testutil.Eventually(t, testutil.Timeout, func() bool {
		return bridge.Stats().Unavailable == 4
	}, "all four events discarded")
	if queue.Len() != 0 {
		t.Errorf("queue length: got %d, want 0", queue.Len())
	}
}

func TestBridgeReleasesDepartedViewer(t *testing.T) {
	t.Parallel()

	queue := NewQueue(16)
	injector := newRecordingInjector()
	bridge := NewBridge(queue, injector, fixedSize(800, 600), nil)
	runBridge(t, bridge)

	queue.Push(Key("left", 30, true))
	queue.Push(PointerButton("left", ButtonRight, true))
	queue.Push(Key("stays", 31, true))
	for i := range 3 {
		testutil.RequireReceive(t, injector.delivered, testutil.Timeout, "press %d", i)
	}

	queue.DiscardFrom("left")
	bridge.ReleaseViewer("left")

	released := map[string]bool{}
	for i := range 2 {
		got := testutil.RequireReceive(t, injector.delivered, testutil.Timeout, "release %d", i)
		if got.Pressed || got.Viewer != "left" {
			t.Fatalf("release %d: got %+v", i, got)
		}
		released[got.Event.String()] = true
	}
	if !released[PointerButton("left", ButtonRight, false).String()] || !released[Key("left", 30, false).String()] {
		t.Errorf("releases: got %v", released)
	}
	if stats := bridge.Stats(); stats.Injected != 3 || stats.Released != 2 {
		t.Errorf("stats: got %+v, want injected 3, released 2", stats)
	}

	// A viewer with nothing held produces no injections.
	bridge.ReleaseViewer("stranger")
	queue.Push(Key("stays", 31, false))
	got := testutil.RequireReceive(t, injector.delivered, testutil.Timeout, "stays release")
	if got.Viewer != "stays" {
		t.Errorf("next injection: got %+v, want the stays release", got)
	}
}

func TestBridgeReturnsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := NewQueue(4)
	bridge := NewBridge(queue, newRecordingInjector(), fixedSize(1, 1), nil)
	done := make(chan error, 1)
	go func() { done <- bridge.Run(context.Background()) }()

	queue.Close()
	if err := testutil.RequireReceive(t, done, testutil.Timeout, "Run after queue close"); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
}
