// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "github.com/termuxwc/termuxwc/lib/pixel"

// barColors are the classic eight colour bars.
var barColors = [8][3]uint8{
	{255, 255, 255},
	{255, 255, 0},
	{0, 255, 255},
	{0, 255, 0},
	{255, 0, 255},
	{255, 0, 0},
	{0, 0, 255},
	{0, 0, 0},
}

// squareSize is the edge of the bouncing square.
const squareSize = 32

// render draws frame number tick: colour bars over the top two
// thirds, a grey floor, a square bouncing along the floor and the
// cursor crosshair.
func (p *pattern) render(tick int) *pixel.FrameBuffer {
	frame := pixel.NewFrameBuffer(p.width, p.height, p.format)

	barsHeight := p.height * 2 / 3
	for i, color := range barColors {
		x0 := i * p.width / len(barColors)
		x1 := (i + 1) * p.width / len(barColors)
		frame.Fill(pixel.Rect{X: x0, Y: 0, Width: x1 - x0, Height: barsHeight}, color[0], color[1], color[2])
	}
	frame.Fill(pixel.Rect{X: 0, Y: barsHeight, Width: p.width, Height: p.height - barsHeight}, 64, 64, 64)

	x, y := squarePosition(tick, p.width, p.height)
	frame.Fill(pixel.Rect{X: x, Y: y, Width: squareSize, Height: squareSize}, 255, 128, 0)

	p.mu.Lock()
	cursorX, cursorY, pressed, hasInput := p.cursorX, p.cursorY, p.pressed, p.hasInput
	p.mu.Unlock()
	if hasInput {
		red, green, blue := uint8(255), uint8(255), uint8(255)
		if pressed {
			green, blue = 0, 0
		}
		frame.Fill(pixel.Rect{X: cursorX - 8, Y: cursorY, Width: 17, Height: 1}, red, green, blue)
		frame.Fill(pixel.Rect{X: cursorX, Y: cursorY - 8, Width: 1, Height: 17}, red, green, blue)
	}
	return frame
}

// squarePosition bounces the square between the left and right edges
// of the floor, four pixels per tick.
func squarePosition(tick, width, height int) (x, y int) {
	travel := max(width-squareSize, 1)
	position := (tick * 4) % (2 * travel)
	if position >= travel {
		position = 2*travel - position
	}
	y = height*2/3 + max((height/3-squareSize)/2, 0)
	return position, y
}
