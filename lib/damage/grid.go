// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package damage

import (
	"sync"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Grid accumulates damage for one consumer as a bitmap of dirty tiles.
// Marking is O(tiles covered) and never allocates after construction;
// Take converts the dirty set back to a Region and clears it. Safe for
// concurrent use.
type Grid struct {
	mu      sync.Mutex
	width   int
	height  int
	tile    int
	columns int
	rows    int
	dirty   []bool
	count   int
}

// NewGrid returns a grid for a width x height frame. tile <= 0 selects
// TileSize.
func NewGrid(width, height, tile int) *Grid {
	if tile <= 0 {
		tile = TileSize
	}
	g := &Grid{tile: tile}
	g.resetLocked(width, height)
	return g
}

func (g *Grid) resetLocked(width, height int) {
	g.width = width
	g.height = height
	g.columns = (width + g.tile - 1) / g.tile
	g.rows = (height + g.tile - 1) / g.tile
	g.dirty = make([]bool, g.columns*g.rows)
	g.count = 0
}

// Reset resizes the grid and marks every tile dirty.
func (g *Grid) Reset(width, height int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked(width, height)
	g.markAllLocked()
}

// Mark adds region to the dirty set. Rectangles are clipped to the
// grid.
func (g *Grid) Mark(region Region) {
	g.mu.Lock()
	defer g.mu.Unlock()
	bounds := pixel.Rect{Width: g.width, Height: g.height}
	for _, rect := range region {
		rect = rect.Intersect(bounds)
		if rect.Empty() {
			continue
		}
		firstColumn := rect.X / g.tile
		lastColumn := (rect.X + rect.Width - 1) / g.tile
		firstRow := rect.Y / g.tile
		lastRow := (rect.Y + rect.Height - 1) / g.tile
		for row := firstRow; row <= lastRow; row++ {
			for column := firstColumn; column <= lastColumn; column++ {
				index := row*g.columns + column
				if !g.dirty[index] {
					g.dirty[index] = true
					g.count++
				}
			}
		}
	}
}

// MarkAll marks the whole frame dirty.
func (g *Grid) MarkAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markAllLocked()
}

func (g *Grid) markAllLocked() {
	for i := range g.dirty {
		g.dirty[i] = true
	}
	g.count = len(g.dirty)
}

// Empty reports whether no tile is dirty.
func (g *Grid) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count == 0
}

// Take returns the dirty tiles as a Region and clears the grid. A
// fully dirty grid returns a single full-frame rectangle.
func (g *Grid) Take() Region {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count == 0 {
		return nil
	}
	if g.count == len(g.dirty) {
		clear(g.dirty)
		g.count = 0
		return Full(g.width, g.height)
	}

	var runs Region
	for row := 0; row < g.rows; row++ {
		y := row * g.tile
		height := min(g.tile, g.height-y)
		runStart := -1
		for column := 0; column <= g.columns; column++ {
			dirty := column < g.columns && g.dirty[row*g.columns+column]
			if dirty && runStart < 0 {
				runStart = column
			}
			if !dirty && runStart >= 0 {
				x := runStart * g.tile
				end := min(column*g.tile, g.width)
				runs = append(runs, pixel.Rect{X: x, Y: y, Width: end - x, Height: height})
				runStart = -1
			}
		}
	}
	clear(g.dirty)
	g.count = 0
	return mergeVertical(runs)
}
