// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package damage

import (
	"bytes"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// TileSize is the default edge length of a damage tile in pixels.
const TileSize = 64

// Region is an ordered set of non-overlapping rectangles. A nil or
// empty Region means nothing changed.
type Region []pixel.Rect

// Full returns a region covering a whole width x height frame.
func Full(width, height int) Region {
	if width <= 0 || height <= 0 {
		return nil
	}
	return Region{{Width: width, Height: height}}
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	for _, rect := range r {
		if !rect.Empty() {
			return false
		}
	}
	return true
}

// Area returns the number of pixels covered.
func (r Region) Area() int {
	total := 0
	for _, rect := range r {
		total += rect.Area()
	}
	return total
}

// Clip returns the part of the region inside a width x height frame.
func (r Region) Clip(width, height int) Region {
	bounds := pixel.Rect{Width: width, Height: height}
	var clipped Region
	for _, rect := range r {
		if inside := rect.Intersect(bounds); !inside.Empty() {
			clipped = append(clipped, inside)
		}
	}
	return clipped
}

// Diff returns the tiles of next that differ from prev, merged into
// row runs. Frames with different geometry or layout yield full
// damage. A nil prev also yields full damage.
func Diff(prev, next *pixel.FrameBuffer, tile int) Region {
	if tile <= 0 {
		tile = TileSize
	}
	if prev == nil || !prev.SameGeometry(next) || !prev.Format.SameLayout(next.Format) {
		return Full(next.Width, next.Height)
	}

	bytesPerPixel := next.Format.BytesPerPixel()
	columns := (next.Width + tile - 1) / tile
	var region Region
	for tileY := 0; tileY < next.Height; tileY += tile {
		tileHeight := min(tile, next.Height-tileY)
		runStart := -1
		for column := 0; column <= columns; column++ {
			changed := false
			if column < columns {
				x := column * tile
				width := min(tile, next.Width-x)
				changed = tileChanged(prev, next, x, tileY, width, tileHeight, bytesPerPixel)
			}
			if changed && runStart < 0 {
				runStart = column
			}
			if !changed && runStart >= 0 {
				x := runStart * tile
				end := min(column*tile, next.Width)
				region = append(region, pixel.Rect{X: x, Y: tileY, Width: end - x, Height: tileHeight})
				runStart = -1
			}
		}
	}
	return mergeVertical(region)
}

func tileChanged(prev, next *pixel.FrameBuffer, x, y, width, height, bytesPerPixel int) bool {
	start := x * bytesPerPixel
	end := start + width*bytesPerPixel
	for row := y; row < y+height; row++ {
		if !bytes.Equal(prev.Row(row)[start:end], next.Row(row)[start:end]) {
			return true
		}
	}
	return false
}

// mergeVertical joins runs that span the same columns in consecutive
// tile rows. Input is ordered by y then x, and so is the output.
func mergeVertical(runs Region) Region {
	if len(runs) < 2 {
		return runs
	}
	merged := make(Region, 0, len(runs))
	for _, run := range runs {
		joined := false
		for i := len(merged) - 1; i >= 0; i-- {
			candidate := &merged[i]
			if candidate.X == run.X && candidate.Width == run.Width && candidate.Y+candidate.Height == run.Y {
				candidate.Height += run.Height
				joined = true
				break
			}
		}
		if !joined {
			merged = append(merged, run)
		}
	}
	return merged
}
