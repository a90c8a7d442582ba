// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"testing"
)

func TestQueueDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	queue := NewQueue(3)
	for keycode := uint32(1); keycode <= 5; keycode++ {
		if !queue.Push(Key("v", keycode, true)) {
			t.Fatalf("Push %d rejected", keycode)
		}
	}

	var got []uint32
	for {
		event, ok := queue.Pop()
		if !ok {
			break
		}
		got = append(got, event.Keycode)
	}
	want := []uint32{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("popped: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("popped: got %v, want %v", got, want)
		}
	}

	stats := queue.Stats()
	if stats.Pushed != 5 || stats.Dropped != 2 || stats.Popped != 3 || stats.Queued != 0 || stats.Capacity != 3 {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestQueueNotifyIsCoalesced(t *testing.T) {
	t.Parallel()

	queue := NewQueue(8)
	queue.Push(Key("v", 1, true))
	queue.Push(Key("v", 1, false))

	select {
	case <-queue.Notify():
	default:
		t.Fatal("no notification after Push")
	}
	select {
	case <-queue.Notify():
		t.Fatal("second notification queued; notify must hold at most one")
	default:
	}
}

func TestQueueDiscardFromKeepsOrder(t *testing.T) {
	t.Parallel()

	queue := NewQueue(4)
	// Wrap the ring so discarding crosses the end of the slice.
	queue.Push(Key("a", 100, true))
	queue.Push(Key("a", 101, true))
	queue.Pop()
	queue.Pop()
	queue.Push(Key("a", 1, true))
	queue.Push(Key("b", 2, true))
	queue.Push(Key("a", 3, true))
	queue.Push(Key("b", 4, true))

	if removed := queue.DiscardFrom("a"); removed != 2 {
		t.Errorf("DiscardFrom: removed %d, want 2", removed)
	}
	for _, want := range []uint32{2, 4} {
		event, ok := queue.Pop()
		if !ok || event.Keycode != want || event.Viewer != "b" {
			t.Fatalf("Pop: got %+v (ok=%v), want keycode %d from b", event, ok, want)
		}
	}
	if queue.Len() != 0 {
		t.Errorf("Len: got %d, want 0", queue.Len())
	}
	if queue.Stats().Discarded != 2 {
		t.Errorf("Discarded: got %d, want 2", queue.Stats().Discarded)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	queue := NewQueue(4)
	queue.Push(PointerMove("v", 0.5, 0.5))
	queue.Close()

	if !queue.Closed() {
		t.Fatal("Closed: got false after Close")
	}
	if _, ok := queue.Pop(); ok {
		t.Error("Pop returned an event after Close")
	}
	if queue.Push(PointerMove("v", 0, 0)) {
		t.Error("Push accepted an event after Close")
	}
	if stats := queue.Stats(); stats.Discarded != 2 {
		t.Errorf("Discarded: got %d, want 2", stats.Discarded)
	}
}

func TestKeysymToKeycode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keysym uint32
		want   uint32
	}{
		{'a', 30},
		{'A', 30},
		{'z', 44},
		{'1', 2},
		{'0', 11},
		{'!', 2},
		{' ', 57},
		{0xff0d, 28},
		{0xffe1, 42},
		{0xffbe, 59},
		{0xffc9, 88},
	}
	for _, test := range tests {
		got, ok := KeysymToKeycode(test.keysym)
		if !ok || got != test.want {
			t.Errorf("KeysymToKeycode(%#x): got %d (ok=%v), want %d", test.keysym, got, ok, test.want)
		}
	}
	if _, ok := KeysymToKeycode(0x20ac); ok {
		t.Error("KeysymToKeycode accepted the euro sign")
	}
}

func TestPointerMoveClamps(t *testing.T) {
	t.Parallel()

	event := PointerMove("v", -0.5, 1.5)
	if event.X != 0 || event.Y != 1 {
		t.Errorf("PointerMove: got (%v, %v), want (0, 1)", event.X, event.Y)
	}
}
