// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/termuxwc/termuxwc/framesource"
	"github.com/termuxwc/termuxwc/lib/clock"
	"github.com/termuxwc/termuxwc/lib/pixel"
	"github.com/termuxwc/termuxwc/lib/testutil"
)

func solid(width, height int, format pixel.PixelFormat, red, green, blue uint8) *pixel.FrameBuffer {
	frame := pixel.NewFrameBuffer(width, height, format)
	frame.Fill(frame.Bounds(), red, green, blue)
	return frame
}

// startBridge runs b until the test ends and returns the channel Run's
// result arrives on.
func startBridge(t *testing.T, b *Bridge) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-b.Done():
		case <-time.After(testutil.Timeout):
			t.Errorf("bridge did not stop")
		}
	})
	return result
}

func newBridge(t *testing.T, slot *framesource.Slot, options Options) *Bridge {
	t.Helper()
	if options.Width == 0 {
		options.Width, options.Height = 64, 48
	}
	if options.MaxFPS == 0 {
		options.MaxFPS = 1000
	}
	b, err := New(slot, options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func waitForSeq(t *testing.T, b *Bridge, seq uint64) *Frame {
	t.Helper()
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return b.Current().Seq >= seq
	}, "published seq %d", seq)
	return b.Current()
}

// takeUpdate waits for the subscription to hold damage for a frame at
// or after seq.
func takeUpdate(t *testing.T, subscription *Subscription, seq uint64) Update {
	t.Helper()
	var update Update
	testutil.Eventually(t, testutil.Timeout, func() bool {
		next, ok := subscription.Take()
		if !ok {
			return false
		}
		update = next
		return next.Frame.Seq >= seq
	}, "update for seq %d", seq)
	return update
}

func TestInitialFrameIsBlank(t *testing.T) {
	t.Parallel()

	b := newBridge(t, framesource.NewSlot(), Options{Width: 800, Height: 600})
	frame := b.Current()
	if frame.Seq != 0 {
		t.Errorf("initial seq: got %d, want 0", frame.Seq)
	}
	if frame.Buffer.Width != 800 || frame.Buffer.Height != 600 || frame.Buffer.Format != pixel.ServerFormat {
		t.Errorf("initial buffer: got %dx%d %v", frame.Buffer.Width, frame.Buffer.Height, frame.Buffer.Format)
	}
	if frame.Buffer.Pixel(400, 300) != 0 {
		t.Error("initial frame is not zeroed")
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Options{Width: 1, Height: 1}); err == nil {
		t.Error("New accepted a nil source")
	}
	if _, err := New(framesource.NewSlot(), Options{}); err == nil {
		t.Error("New accepted a zero size")
	}
	bad := pixel.PixelFormat{BitsPerPixel: 24, TrueColor: true}
	if _, err := New(framesource.NewSlot(), Options{Width: 1, Height: 1, SourceFormat: bad}); !errors.Is(err, pixel.ErrFormatMismatch) {
		t.Errorf("New with invalid source format: got %v, want ErrFormatMismatch", err)
	}
}

func TestPublishConvertsToServerFormat(t *testing.T) {
	t.Parallel()

	xbgr, _ := pixel.FormatByName("xbgr8888")
	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{Width: 16, Height: 16, SourceFormat: xbgr, DamageTracking: true})
	startBridge(t, b)

	source := pixel.NewFrameBuffer(16, 16, xbgr)
	source.Fill(pixel.Rect{X: 2, Y: 2, Width: 4, Height: 4}, 255, 0, 0)
	slot.Commit(source)

	frame := waitForSeq(t, b, 1)
	if got := frame.Buffer.Pixel(3, 3); got != 0x00FF0000 {
		t.Errorf("converted red: got %#08x, want 0x00ff0000", got)
	}
	if got := frame.Buffer.Pixel(10, 10); got != 0 {
		t.Errorf("background: got %#08x, want 0", got)
	}
}

func TestCoalescesFramesAboveRate(t *testing.T) {
	t.Parallel()

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{MaxFPS: 10, Clock: fake, DamageTracking: true})
	startBridge(t, b)

	slot.Commit(solid(64, 48, pixel.ServerFormat, 255, 0, 0))
	waitForSeq(t, b, 1)

	// The pump now waits 100ms for its next slot; both frames
	// committed meanwhile land in the source slot.
	fake.WaitForTimers(1)
	slot.Commit(solid(64, 48, pixel.ServerFormat, 0, 255, 0))
	slot.Commit(solid(64, 48, pixel.ServerFormat, 0, 0, 255))
	fake.Advance(100 * time.Millisecond)

	frame := waitForSeq(t, b, 2)
	if got := frame.Buffer.Pixel(0, 0); got != 0x000000FF {
		t.Errorf("published pixel: got %#08x, want the newest frame's blue", got)
	}
	stats := b.Stats()
	if stats.Published != 2 || stats.Coalesced != 1 || stats.Committed != 3 {
		t.Errorf("stats: got %+v, want published 2, coalesced 1, committed 3", stats)
	}
}

func TestLateSubscriberGetsFullFrame(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{DamageTracking: true})
	startBridge(t, b)

	slot.Commit(solid(64, 48, pixel.ServerFormat, 10, 20, 30))
	waitForSeq(t, b, 1)
	frame := solid(64, 48, pixel.ServerFormat, 10, 20, 30)
	frame.SetPixel(1, 1, 0x00FFFFFF)
	slot.Commit(frame)
	waitForSeq(t, b, 2)

	subscription := b.Subscribe("late")
	defer subscription.Close()
	testutil.RequireReceive(t, subscription.Ready(), testutil.Timeout, "initial ready")

	update, ok := subscription.Take()
	if !ok {
		t.Fatal("Take: no update for a new subscriber")
	}
	if update.Region.Area() != 64*48 {
		t.Errorf("first region: got %v, want the whole frame", update.Region)
	}
	if update.Frame.Seq != 2 || update.Frame.Buffer.Digest() != frame.Digest() {
		t.Errorf("first update is not the current frame (seq %d)", update.Frame.Seq)
	}
	if _, ok := subscription.Take(); ok {
		t.Error("second Take returned an update with no new frame")
	}
}

func TestDamageLimitedToChangedTiles(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{Width: 256, Height: 256, DamageTracking: true})
	subscription := b.Subscribe("viewer")
	defer subscription.Close()
	subscription.Take()
	startBridge(t, b)

	frame := pixel.NewFrameBuffer(256, 256, pixel.ServerFormat)
	frame.Fill(pixel.Rect{X: 200, Y: 10, Width: 5, Height: 5}, 255, 255, 255)
	slot.Commit(frame)
	waitForSeq(t, b, 1)

	update := takeUpdate(t, subscription, 1)
	want := pixel.Rect{X: 192, Y: 0, Width: 64, Height: 64}
	if len(update.Region) != 1 || update.Region[0] != want {
		t.Errorf("region: got %v, want [%v]", update.Region, want)
	}
}

func TestUnchangedFrameIsNotPublished(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{DamageTracking: true})
	startBridge(t, b)

	slot.Commit(solid(64, 48, pixel.ServerFormat, 1, 2, 3))
	waitForSeq(t, b, 1)
	slot.Commit(solid(64, 48, pixel.ServerFormat, 1, 2, 3))

	testutil.Eventually(t, testutil.Timeout, func() bool {
		return b.Stats().Unchanged == 1
	}, "unchanged frame counted")
	if seq := b.Current().Seq; seq != 1 {
		t.Errorf("seq after identical frame: got %d, want 1", seq)
	}
}

func TestFullDamageWithoutTracking(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{DamageTracking: false})
	startBridge(t, b)

	frame := pixel.NewFrameBuffer(64, 48, pixel.ServerFormat)
	frame.SetPixel(0, 0, 1)
	slot.Commit(frame)
	published := waitForSeq(t, b, 1)
	if published.Damage.Area() != 64*48 {
		t.Errorf("damage: got %v, want full frame", published.Damage)
	}
}

func TestResizeFlagsSubscribers(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{Width: 64, Height: 48, DamageTracking: true})
	subscription := b.Subscribe("viewer")
	defer subscription.Close()
	subscription.Take()
	startBridge(t, b)

	slot.Commit(solid(100, 80, pixel.ServerFormat, 9, 9, 9))
	waitForSeq(t, b, 1)

	update := takeUpdate(t, subscription, 1)
	if !update.Resized {
		t.Fatalf("Take after resize: got %+v, want Resized", update)
	}
	if update.Region.Area() != 100*80 {
		t.Errorf("resize region: got %v, want full 100x80", update.Region)
	}
	if width, height := b.Size(); width != 100 || height != 80 {
		t.Errorf("Size: got %dx%d, want 100x80", width, height)
	}
	if b.Stats().Resizes != 1 {
		t.Errorf("resizes: got %d, want 1", b.Stats().Resizes)
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{Width: 128, Height: 64, DamageTracking: true})
	slow := b.Subscribe("slow")
	fast := b.Subscribe("fast")
	defer slow.Close()
	defer fast.Close()
	slow.Take()
	fast.Take()
	startBridge(t, b)

	for i := range 20 {
		frame := pixel.NewFrameBuffer(128, 64, pixel.ServerFormat)
		frame.SetPixel(i%2*64, 0, uint32(i+1))
		slot.Commit(frame)
		waitForSeq(t, b, uint64(i+1))
		takeUpdate(t, fast, uint64(i+1))
	}

	// The slow subscriber collects the union of everything it missed
	// in one update.
	update, ok := slow.Take()
	if !ok {
		t.Fatal("slow subscriber has no pending update")
	}
	if update.Frame.Seq != 20 {
		t.Errorf("slow update seq: got %d, want 20", update.Frame.Seq)
	}
	if update.Region.Area() != 128*64 {
		t.Errorf("slow update region: got %v, want both tiles", update.Region)
	}
}

func TestRefreshMarksEverything(t *testing.T) {
	t.Parallel()

	b := newBridge(t, framesource.NewSlot(), Options{})
	subscription := b.Subscribe("viewer")
	defer subscription.Close()
	subscription.Take()

	b.Refresh()
	update, ok := subscription.Take()
	if !ok || update.Region.Area() != 64*48 {
		t.Errorf("Take after Refresh: got %v (ok=%v), want full frame", update.Region, ok)
	}
}

func TestSourceCloseStopsBridge(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{})
	subscription := b.Subscribe("viewer")
	result := startBridge(t, b)

	slot.Close()
	err := testutil.RequireReceive(t, result, testutil.Timeout, "Run after source close")
	if !errors.Is(err, framesource.ErrSourceClosed) {
		t.Errorf("Run: got %v, want ErrSourceClosed", err)
	}
	testutil.RequireClosed(t, subscription.Done(), testutil.Timeout, "subscription closed")

	late := b.Subscribe("late")
	select {
	case <-late.Done():
	default:
		t.Error("subscription created after stop is open")
	}
}

func TestFormatMismatchStopsBridge(t *testing.T) {
	t.Parallel()

	slot := framesource.NewSlot()
	b := newBridge(t, slot, Options{SourceFormat: pixel.ServerFormat})
	result := startBridge(t, b)

	rgb565, _ := pixel.FormatByName("rgb565")
	slot.Commit(pixel.NewFrameBuffer(64, 48, rgb565))
	err := testutil.RequireReceive(t, result, testutil.Timeout, "Run after mismatched frame")
	if !errors.Is(err, pixel.ErrFormatMismatch) {
		t.Errorf("Run: got %v, want ErrFormatMismatch", err)
	}
}

func TestUnsubscribeClosesSubscription(t *testing.T) {
	t.Parallel()

	b := newBridge(t, framesource.NewSlot(), Options{})
	subscription := b.Subscribe("viewer")
	b.Unsubscribe("viewer")
	testutil.RequireClosed(t, subscription.Done(), testutil.Timeout, "unsubscribed")
	if b.Stats().Subscribers != 0 {
		t.Errorf("subscribers: got %d, want 0", b.Stats().Subscribers)
	}
	subscription.Close()
}
