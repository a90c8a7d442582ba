// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package pixel

import (
	"encoding/binary"
	"fmt"
)

// converter maps pixel values from one format to another. Lookup
// tables are only built for channels whose max differs.
type converter struct {
	from, to PixelFormat

	red, green, blue []uint32

	// maskOnly is set when both formats share a layout: converting is
	// clearing the non-channel bits.
	maskOnly bool
	mask     uint32
}

func newConverter(from, to PixelFormat) *converter {
	c := &converter{from: from, to: to}
	if from.SameLayout(to) {
		c.maskOnly = true
		c.mask = from.ChannelMask()
		return c
	}
	c.red = channelTable(from.RedMax, to.RedMax)
	c.green = channelTable(from.GreenMax, to.GreenMax)
	c.blue = channelTable(from.BlueMax, to.BlueMax)
	return c
}

func channelTable(from, to uint16) []uint32 {
	if from == to {
		return nil
	}
	table := make([]uint32, int(from)+1)
	for value := range table {
		table[value] = scale(uint32(value), uint32(from), uint32(to))
	}
	return table
}

func lookup(table []uint32, value uint32) uint32 {
	if table == nil {
		return value
	}
	return table[value]
}

func (c *converter) convert(value uint32) uint32 {
	if c.maskOnly {
		return value & c.mask
	}
	red := lookup(c.red, (value>>c.from.RedShift)&uint32(c.from.RedMax))
	green := lookup(c.green, (value>>c.from.GreenShift)&uint32(c.from.GreenMax))
	blue := lookup(c.blue, (value>>c.from.BlueShift)&uint32(c.from.BlueMax))
	return red<<c.to.RedShift | green<<c.to.GreenShift | blue<<c.to.BlueShift
}

// convertRow converts count pixels from src into dst.
func (c *converter) convertRow(dst, src []byte, count int) {
	fromBytes := c.from.BytesPerPixel()
	toBytes := c.to.BytesPerPixel()

	// The common case: 32-bit little-endian in and out.
	if fromBytes == 4 && toBytes == 4 && !c.from.BigEndian && !c.to.BigEndian {
		for i := 0; i < count; i++ {
			value := binary.LittleEndian.Uint32(src[i*4:])
			binary.LittleEndian.PutUint32(dst[i*4:], c.convert(value))
		}
		return
	}

	for i := 0; i < count; i++ {
		value := readPixel(src[i*fromBytes:(i+1)*fromBytes], c.from.BigEndian)
		writePixel(dst[i*toBytes:(i+1)*toBytes], c.convert(value), c.to.BigEndian)
	}
}

// Convert writes the pixels of rect from src into the same rect of
// dst, translating from src.Format to dst.Format. Both buffers must
// contain rect.
func Convert(dst, src *FrameBuffer, rect Rect) error {
	if !src.Bounds().Contains(rect) || !dst.Bounds().Contains(rect) {
		return fmt.Errorf("rect %s outside source %dx%d or destination %dx%d",
			rect, src.Width, src.Height, dst.Width, dst.Height)
	}
	c := newConverter(src.Format, dst.Format)
	fromBytes := src.Format.BytesPerPixel()
	toBytes := dst.Format.BytesPerPixel()
	for y := rect.Y; y < rect.Y+rect.Height; y++ {
		srcStart := y*src.Stride + rect.X*fromBytes
		dstStart := y*dst.Stride + rect.X*toBytes
		c.convertRow(dst.Pix[dstStart:], src.Pix[srcStart:], rect.Width)
	}
	return nil
}

// ConvertFrame returns a new tightly packed buffer holding src in the
// given format.
func ConvertFrame(src *FrameBuffer, to PixelFormat) (*FrameBuffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, fmt.Errorf("%w: target: %v", ErrFormatMismatch, err)
	}
	dst := NewFrameBuffer(src.Width, src.Height, to)
	if err := Convert(dst, src, src.Bounds()); err != nil {
		return nil, err
	}
	return dst, nil
}

// AppendRect appends the pixels of rect from src to out, tightly
// packed in the given format. This is the shape of an RFB Raw
// rectangle body.
func AppendRect(out []byte, src *FrameBuffer, rect Rect, to PixelFormat) []byte {
	c := newConverter(src.Format, to)
	fromBytes := src.Format.BytesPerPixel()
	rowBytes := rect.Width * to.BytesPerPixel()
	for y := rect.Y; y < rect.Y+rect.Height; y++ {
		start := len(out)
		out = append(out, make([]byte, rowBytes)...)
		srcStart := y*src.Stride + rect.X*fromBytes
		c.convertRow(out[start:], src.Pix[srcStart:], rect.Width)
	}
	return out
}
