// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package pixel

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

// Rect is an axis-aligned rectangle in pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the number of pixels covered.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Intersect returns the overlap of r and other, or the zero Rect.
func (r Rect) Intersect(other Rect) Rect {
	x0 := max(r.X, other.X)
	y0 := max(r.Y, other.Y)
	x1 := min(r.X+r.Width, other.X+other.Width)
	y1 := min(r.Y+r.Height, other.Y+other.Height)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Overlaps reports whether r and other share at least one pixel.
func (r Rect) Overlaps(other Rect) bool {
	return !r.Intersect(other).Empty()
}

// Contains reports whether other lies entirely inside r.
func (r Rect) Contains(other Rect) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.X+other.Width <= r.X+r.Width &&
		other.Y+other.Height <= r.Y+r.Height
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// FrameBuffer is a fixed-format image. Pix holds Height rows of Stride
// bytes; only the first Width*BytesPerPixel bytes of each row are
// pixels.
type FrameBuffer struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// NewFrameBuffer allocates a zeroed, tightly packed FrameBuffer.
func NewFrameBuffer(width, height int, format PixelFormat) *FrameBuffer {
	stride := width * format.BytesPerPixel()
	return &FrameBuffer{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Pix:    make([]byte, stride*height),
	}
}

// Bounds returns the rectangle covering the whole buffer.
func (fb *FrameBuffer) Bounds() Rect {
	return Rect{Width: fb.Width, Height: fb.Height}
}

// Validate checks the geometry invariants: positive dimensions, a
// stride wide enough for one row, and enough bytes for every row.
func (fb *FrameBuffer) Validate() error {
	if fb.Width <= 0 || fb.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", fb.Width, fb.Height)
	}
	if fb.Width > 0xffff || fb.Height > 0xffff {
		return fmt.Errorf("dimensions %dx%d exceed 65535", fb.Width, fb.Height)
	}
	if err := fb.Format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFormatMismatch, err)
	}
	rowBytes := fb.Width * fb.Format.BytesPerPixel()
	if fb.Stride < rowBytes {
		return fmt.Errorf("stride %d shorter than row of %d bytes", fb.Stride, rowBytes)
	}
	if len(fb.Pix) < fb.Stride*fb.Height {
		return fmt.Errorf("buffer holds %d bytes, need %d", len(fb.Pix), fb.Stride*fb.Height)
	}
	return nil
}

// SameGeometry reports whether two buffers have identical width and
// height.
func (fb *FrameBuffer) SameGeometry(other *FrameBuffer) bool {
	return other != nil && fb.Width == other.Width && fb.Height == other.Height
}

// Row returns the pixel bytes of row y, without stride padding.
func (fb *FrameBuffer) Row(y int) []byte {
	start := y * fb.Stride
	return fb.Pix[start : start+fb.Width*fb.Format.BytesPerPixel()]
}

// Clone returns a deep, tightly packed copy.
func (fb *FrameBuffer) Clone() *FrameBuffer {
	clone := NewFrameBuffer(fb.Width, fb.Height, fb.Format)
	for y := 0; y < fb.Height; y++ {
		copy(clone.Row(y), fb.Row(y))
	}
	return clone
}

// Pixel returns the raw pixel value at (x, y).
func (fb *FrameBuffer) Pixel(x, y int) uint32 {
	bytesPerPixel := fb.Format.BytesPerPixel()
	offset := y*fb.Stride + x*bytesPerPixel
	return readPixel(fb.Pix[offset:offset+bytesPerPixel], fb.Format.BigEndian)
}

// SetPixel stores a raw pixel value at (x, y).
func (fb *FrameBuffer) SetPixel(x, y int, value uint32) {
	bytesPerPixel := fb.Format.BytesPerPixel()
	offset := y*fb.Stride + x*bytesPerPixel
	writePixel(fb.Pix[offset:offset+bytesPerPixel], value, fb.Format.BigEndian)
}

// Fill paints the part of rect inside the buffer with an 8-bit RGB
// colour.
func (fb *FrameBuffer) Fill(rect Rect, red, green, blue uint8) {
	rect = rect.Intersect(fb.Bounds())
	value := fb.Format.Encode(red, green, blue)
	for y := rect.Y; y < rect.Y+rect.Height; y++ {
		for x := rect.X; x < rect.X+rect.Width; x++ {
			fb.SetPixel(x, y, value)
		}
	}
}

// ReadRect returns the pixels of rect, tightly packed, in the buffer's
// own format. rect must lie inside the buffer.
func (fb *FrameBuffer) ReadRect(rect Rect) []byte {
	bytesPerPixel := fb.Format.BytesPerPixel()
	rowBytes := rect.Width * bytesPerPixel
	out := make([]byte, 0, rowBytes*rect.Height)
	for y := rect.Y; y < rect.Y+rect.Height; y++ {
		start := y*fb.Stride + rect.X*bytesPerPixel
		out = append(out, fb.Pix[start:start+rowBytes]...)
	}
	return out
}

// WriteRect copies tightly packed pixels in the buffer's format into
// rect.
func (fb *FrameBuffer) WriteRect(rect Rect, data []byte) error {
	if !fb.Bounds().Contains(rect) {
		return fmt.Errorf("rect %s outside %dx%d buffer", rect, fb.Width, fb.Height)
	}
	bytesPerPixel := fb.Format.BytesPerPixel()
	rowBytes := rect.Width * bytesPerPixel
	if len(data) != rowBytes*rect.Height {
		return fmt.Errorf("rect %s needs %d bytes, got %d", rect, rowBytes*rect.Height, len(data))
	}
	for row := 0; row < rect.Height; row++ {
		start := (rect.Y+row)*fb.Stride + rect.X*bytesPerPixel
		copy(fb.Pix[start:start+rowBytes], data[row*rowBytes:(row+1)*rowBytes])
	}
	return nil
}

// Equal reports whether two buffers have the same geometry, format and
// visible pixels. Stride padding is ignored.
func (fb *FrameBuffer) Equal(other *FrameBuffer) bool {
	if !fb.SameGeometry(other) || !fb.Format.SameLayout(other.Format) {
		return false
	}
	for y := 0; y < fb.Height; y++ {
		if !bytes.Equal(fb.Row(y), other.Row(y)) {
			return false
		}
	}
	return true
}

// Digest is a BLAKE3 hash over a buffer's geometry, format and visible
// pixels.
type Digest [32]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// Digest hashes the visible content. Two buffers with Equal content
// have the same digest regardless of stride.
func (fb *FrameBuffer) Digest() Digest {
	hasher := blake3.New()
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(fb.Width))
	binary.BigEndian.PutUint32(header[4:8], uint32(fb.Height))
	hasher.Write(header[:])
	hasher.Write(fb.Format.AppendWire(nil))
	for y := 0; y < fb.Height; y++ {
		hasher.Write(fb.Row(y))
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func readPixel(data []byte, bigEndian bool) uint32 {
	switch len(data) {
	case 1:
		return uint32(data[0])
	case 2:
		if bigEndian {
			return uint32(binary.BigEndian.Uint16(data))
		}
		return uint32(binary.LittleEndian.Uint16(data))
	default:
		if bigEndian {
			return binary.BigEndian.Uint32(data)
		}
		return binary.LittleEndian.Uint32(data)
	}
}

func writePixel(data []byte, value uint32, bigEndian bool) {
	switch len(data) {
	case 1:
		data[0] = uint8(value)
	case 2:
		if bigEndian {
			binary.BigEndian.PutUint16(data, uint16(value))
		} else {
			binary.LittleEndian.PutUint16(data, uint16(value))
		}
	default:
		if bigEndian {
			binary.BigEndian.PutUint32(data, value)
		} else {
			binary.LittleEndian.PutUint32(data, value)
		}
	}
}
