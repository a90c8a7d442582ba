// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package framesource

import (
	"context"
	"errors"
	"testing"

	"github.com/termuxwc/termuxwc/lib/pixel"
	"github.com/termuxwc/termuxwc/lib/testutil"
)

func solidFrame(red, green, blue uint8) *pixel.FrameBuffer {
	frame := pixel.NewFrameBuffer(8, 8, pixel.ServerFormat)
	frame.Fill(frame.Bounds(), red, green, blue)
	return frame
}

func TestSlotDeliversLatestOnly(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	first := solidFrame(1, 0, 0)
	second := solidFrame(2, 0, 0)
	third := solidFrame(3, 0, 0)
	for _, frame := range []*pixel.FrameBuffer{first, second, third} {
		if err := slot.Commit(frame); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	got, err := slot.WaitForFrame(context.Background())
	if err != nil {
		t.Fatalf("WaitForFrame: %v", err)
	}
	if got != third {
		t.Error("WaitForFrame did not return the newest frame")
	}
	stats := slot.Stats()
	if stats.Committed != 3 || stats.Coalesced != 2 || stats.Delivered != 1 {
		t.Errorf("stats: got %+v, want committed 3, coalesced 2, delivered 1", stats)
	}
	if slot.Latest() != third {
		t.Error("Latest did not return the newest frame")
	}
}

func TestSlotWaitBlocksUntilCommit(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	frame := solidFrame(0, 255, 0)

	received := make(chan *pixel.FrameBuffer, 1)
	go func() {
		got, err := slot.WaitForFrame(context.Background())
		if err != nil {
			t.Errorf("WaitForFrame: %v", err)
		}
		received <- got
	}()

	if err := slot.Commit(frame); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := testutil.RequireReceive(t, received, testutil.Timeout, "frame after commit"); got != frame {
		t.Error("waiter received a different frame")
	}

	// The frame was collected: the next wait must block again.
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := slot.WaitForFrame(ctx)
		errs <- err
	}()
	cancel()
	if err := testutil.RequireReceive(t, errs, testutil.Timeout, "cancelled wait"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait: got %v, want context.Canceled", err)
	}
}

func TestSlotClose(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	errs := make(chan error, 1)
	go func() {
		_, err := slot.WaitForFrame(context.Background())
		errs <- err
	}()

	slot.Close()
	if err := testutil.RequireReceive(t, errs, testutil.Timeout, "wait after close"); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("wait after close: got %v, want ErrSourceClosed", err)
	}
	if err := slot.Commit(solidFrame(0, 0, 0)); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Commit after close: got %v, want ErrSourceClosed", err)
	}
	slot.Close()
}

func TestSlotFailKeepsFirstError(t *testing.T) {
	t.Parallel()

	slot := NewSlot()
	slot.Fail(ErrFormatMismatch)
	slot.Close()
	if _, err := slot.WaitForFrame(context.Background()); !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("WaitForFrame: got %v, want ErrFormatMismatch", err)
	}
}
