// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned by an Injector whose compositor input
// pipeline is gone. The bridge then discards what is queued.
var ErrUnavailable = errors.New("input injection unavailable")

// Kind discriminates the Event variant.
type Kind uint8

const (
	// KindPointerMove moves the pointer to (X, Y).
	KindPointerMove Kind = iota + 1
	// KindPointerButton presses or releases Button.
	KindPointerButton
	// KindKey presses or releases Keycode.
	KindKey
	// KindPointerAxis scrolls Steps discrete wheel clicks along Axis.
	KindPointerAxis
)

func (k Kind) String() string {
	switch k {
	case KindPointerMove:
		return "pointer_move"
	case KindPointerButton:
		return "pointer_button"
	case KindKey:
		return "key"
	case KindPointerAxis:
		return "pointer_axis"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Axis is a scroll orientation.
type Axis uint8

const (
	AxisVertical Axis = iota
	AxisHorizontal
)

// Linux evdev codes for the pointer buttons viewers can press.
const (
	ButtonLeft   uint32 = 0x110
	ButtonRight  uint32 = 0x111
	ButtonMiddle uint32 = 0x112
)

// Event is one viewer input action. Pointer coordinates are
// normalized to [0, 1] of the frame the viewer was looking at, so they
// stay meaningful if the output is resized before delivery.
type Event struct {
	Kind Kind `cbor:"kind"`

	// Viewer identifies the originating viewer session.
	Viewer string `cbor:"viewer,omitempty"`

	X float64 `cbor:"x,omitempty"`
	Y float64 `cbor:"y,omitempty"`

	// Button is an evdev button code (ButtonLeft and friends).
	Button uint32 `cbor:"button,omitempty"`

	// Keycode is an evdev key code (see KeysymToKeycode).
	Keycode uint32 `cbor:"keycode,omitempty"`

	Pressed bool `cbor:"pressed,omitempty"`

	Axis  Axis `cbor:"axis,omitempty"`
	Steps int  `cbor:"steps,omitempty"`
}

// PointerMove returns a move event at normalized (x, y), clamped to
// [0, 1].
func PointerMove(viewer string, x, y float64) Event {
	return Event{Kind: KindPointerMove, Viewer: viewer, X: clampUnit(x), Y: clampUnit(y)}
}

// PointerButton returns a button press or release.
func PointerButton(viewer string, button uint32, pressed bool) Event {
	return Event{Kind: KindPointerButton, Viewer: viewer, Button: button, Pressed: pressed}
}

// Key returns a key press or release.
func Key(viewer string, keycode uint32, pressed bool) Event {
	return Event{Kind: KindKey, Viewer: viewer, Keycode: keycode, Pressed: pressed}
}

// PointerAxis returns a scroll of steps clicks; negative scrolls up or
// left.
func PointerAxis(viewer string, axis Axis, steps int) Event {
	return Event{Kind: KindPointerAxis, Viewer: viewer, Axis: axis, Steps: steps}
}

func clampUnit(value float64) float64 {
	return min(max(value, 0), 1)
}

func (e Event) String() string {
	switch e.Kind {
	case KindPointerMove:
		return fmt.Sprintf("move(%.4f, %.4f)", e.X, e.Y)
	case KindPointerButton:
		return fmt.Sprintf("button(%#x, %v)", e.Button, e.Pressed)
	case KindKey:
		return fmt.Sprintf("key(%d, %v)", e.Keycode, e.Pressed)
	case KindPointerAxis:
		return fmt.Sprintf("axis(%d, %d)", e.Axis, e.Steps)
	default:
		return e.Kind.String()
	}
}

// Injection is an Event as delivered to the compositor: pointer
// coordinates are mapped to output pixels using the output size at
// delivery time.
type Injection struct {
	Event

	OutputX float64 `cbor:"output_x,omitempty"`
	OutputY float64 `cbor:"output_y,omitempty"`
}

// Injector is the compositor's input entry point. Inject must return
// an error wrapping ErrUnavailable once input can no longer be
// delivered.
type Injector interface {
	Inject(ctx context.Context, injection Injection) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, injection Injection) error

// Inject calls f.
func (f InjectorFunc) Inject(ctx context.Context, injection Injection) error {
	return f(ctx, injection)
}
