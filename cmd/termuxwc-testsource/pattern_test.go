// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

func TestRenderBarsAndSquare(t *testing.T) {
	t.Parallel()

	p := newPattern(160, 120, pixel.ServerFormat)
	frame := p.render(0)

	// First bar is white, sixth is red.
	if got := frame.Pixel(0, 0); got != 0x00FFFFFF {
		t.Errorf("first bar: got %#08x, want 0x00ffffff", got)
	}
	if got := frame.Pixel(5*160/8, 10); got != 0x00FF0000 {
		t.Errorf("red bar: got %#08x, want 0x00ff0000", got)
	}
	x, y := squarePosition(0, 160, 120)
	if got := frame.Pixel(x+1, y+1); got != 0x00FF8000 {
		t.Errorf("square: got %#08x, want 0x00ff8000", got)
	}
	if !frame.Equal(p.render(0)) {
		t.Error("the same tick rendered differently")
	}
	if frame.Equal(p.render(1)) {
		t.Error("the square did not move between ticks")
	}
}

func TestSquareBounces(t *testing.T) {
	t.Parallel()

	travel := 100 - squareSize
	for tick := 0; tick < 200; tick++ {
		x, _ := squarePosition(tick, 100, 90)
		if x < 0 || x > travel {
			t.Fatalf("tick %d: x %d outside [0, %d]", tick, x, travel)
		}
	}
	if x, _ := squarePosition(travel/4, 100, 90); x != travel {
		t.Errorf("square did not reach the right edge: x %d", x)
	}
}

func TestCrosshairFollowsPointer(t *testing.T) {
	t.Parallel()

	p := newPattern(100, 90, pixel.ServerFormat)
	p.apply(input.Injection{Event: input.PointerMove("v", 0.5, 0.5), OutputX: 50, OutputY: 10})
	if got := p.render(0).Pixel(50, 10); got != 0x00FFFFFF {
		t.Errorf("crosshair: got %#08x, want white", got)
	}

	p.apply(input.Injection{Event: input.PointerButton("v", input.ButtonLeft, true)})
	if got := p.render(0).Pixel(45, 10); got != 0x00FF0000 {
		t.Errorf("pressed crosshair: got %#08x, want red", got)
	}
}
