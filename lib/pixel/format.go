// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrFormatMismatch reports a pixel layout that differs from the one
// the session was configured with. Converting such frames would
// silently corrupt the remote display, so it is fatal to the session.
var ErrFormatMismatch = errors.New("pixel format mismatch")

// WireSize is the encoded size of a PixelFormat in the RFB protocol
// (ServerInit and SetPixelFormat).
const WireSize = 16

// PixelFormat describes a true-colour pixel layout. Each channel value
// lives at (pixel >> Shift) & Max. Only 8, 16 and 32 bits per pixel
// are representable, matching RFB.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    bool
	TrueColor    bool

	RedMax   uint16
	GreenMax uint16
	BlueMax  uint16

	RedShift   uint8
	GreenShift uint8
	BlueShift  uint8
}

// ServerFormat is the layout of every published frame and the format
// advertised in ServerInit: 32 bits per pixel, depth 24, little-endian,
// R/G/B at shifts 16/8/0 with max 255.
var ServerFormat = PixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	TrueColor:    true,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     16,
	GreenShift:   8,
	BlueShift:    0,
}

// Named compositor layouts. The names follow the DRM fourcc spelling
// in lower case; the byte order is little-endian as in DRM. Alpha and
// padding bytes are not channels, so xrgb8888 and argb8888 share a
// description.
var namedFormats = map[string]PixelFormat{
	"xrgb8888": ServerFormat,
	"argb8888": ServerFormat,
	"xbgr8888": {
		BitsPerPixel: 32, Depth: 24, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 0, GreenShift: 8, BlueShift: 16,
	},
	"abgr8888": {
		BitsPerPixel: 32, Depth: 24, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 0, GreenShift: 8, BlueShift: 16,
	},
	"rgb565": {
		BitsPerPixel: 16, Depth: 16, TrueColor: true,
		RedMax: 31, GreenMax: 63, BlueMax: 31,
		RedShift: 11, GreenShift: 5, BlueShift: 0,
	},
	"bgr565": {
		BitsPerPixel: 16, Depth: 16, TrueColor: true,
		RedMax: 31, GreenMax: 63, BlueMax: 31,
		RedShift: 0, GreenShift: 5, BlueShift: 11,
	},
	"rgb332": {
		BitsPerPixel: 8, Depth: 8, TrueColor: true,
		RedMax: 7, GreenMax: 7, BlueMax: 3,
		RedShift: 5, GreenShift: 2, BlueShift: 0,
	},
}

// FormatByName resolves a layout name (case-insensitive) such as
// "xrgb8888" or "rgb565".
func FormatByName(name string) (PixelFormat, error) {
	format, ok := namedFormats[strings.ToLower(name)]
	if !ok {
		return PixelFormat{}, fmt.Errorf("unknown pixel format %q", name)
	}
	return format, nil
}

// FormatNames returns the accepted layout names, for help text.
func FormatNames() []string {
	return []string{"xrgb8888", "argb8888", "xbgr8888", "abgr8888", "rgb565", "bgr565", "rgb332"}
}

// BytesPerPixel returns BitsPerPixel / 8.
func (f PixelFormat) BytesPerPixel() int {
	return int(f.BitsPerPixel) / 8
}

// Validate checks that the format can be converted to and from.
// Colour-map formats (TrueColor false) are rejected: the server only
// speaks true colour.
func (f PixelFormat) Validate() error {
	switch f.BitsPerPixel {
	case 8, 16, 32:
	default:
		return fmt.Errorf("unsupported bits per pixel %d", f.BitsPerPixel)
	}
	if !f.TrueColor {
		return fmt.Errorf("colour-map pixel formats are not supported")
	}
	channels := []struct {
		name  string
		max   uint16
		shift uint8
	}{
		{"red", f.RedMax, f.RedShift},
		{"green", f.GreenMax, f.GreenShift},
		{"blue", f.BlueMax, f.BlueShift},
	}
	var used uint32
	for _, channel := range channels {
		if channel.max == 0 {
			return fmt.Errorf("%s max is zero", channel.name)
		}
		if channel.max&(channel.max+1) != 0 {
			return fmt.Errorf("%s max %d is not of the form 2^n-1", channel.name, channel.max)
		}
		width := bits.Len16(channel.max)
		if int(channel.shift)+width > int(f.BitsPerPixel) {
			return fmt.Errorf("%s channel (shift %d, max %d) does not fit in %d bits",
				channel.name, channel.shift, channel.max, f.BitsPerPixel)
		}
		mask := uint32(channel.max) << channel.shift
		if used&mask != 0 {
			return fmt.Errorf("%s channel overlaps another channel", channel.name)
		}
		used |= mask
	}
	return nil
}

// ChannelMask returns the bits of a pixel value occupied by the three
// colour channels.
func (f PixelFormat) ChannelMask() uint32 {
	return uint32(f.RedMax)<<f.RedShift | uint32(f.GreenMax)<<f.GreenShift | uint32(f.BlueMax)<<f.BlueShift
}

// SameLayout reports whether two formats place identical channels at
// identical bits with identical endianness. Depth is informational in
// RFB and is ignored.
func (f PixelFormat) SameLayout(other PixelFormat) bool {
	return f.BitsPerPixel == other.BitsPerPixel &&
		f.BigEndian == other.BigEndian &&
		f.TrueColor == other.TrueColor &&
		f.RedMax == other.RedMax && f.GreenMax == other.GreenMax && f.BlueMax == other.BlueMax &&
		f.RedShift == other.RedShift && f.GreenShift == other.GreenShift && f.BlueShift == other.BlueShift
}

// Encode packs 8-bit channel values into a pixel value of this format.
func (f PixelFormat) Encode(red, green, blue uint8) uint32 {
	return uint32(scale(uint32(red), 255, uint32(f.RedMax)))<<f.RedShift |
		uint32(scale(uint32(green), 255, uint32(f.GreenMax)))<<f.GreenShift |
		uint32(scale(uint32(blue), 255, uint32(f.BlueMax)))<<f.BlueShift
}

// Decode unpacks a pixel value into 8-bit channel values.
func (f PixelFormat) Decode(value uint32) (red, green, blue uint8) {
	red = uint8(scale((value>>f.RedShift)&uint32(f.RedMax), uint32(f.RedMax), 255))
	green = uint8(scale((value>>f.GreenShift)&uint32(f.GreenMax), uint32(f.GreenMax), 255))
	blue = uint8(scale((value>>f.BlueShift)&uint32(f.BlueMax), uint32(f.BlueMax), 255))
	return red, green, blue
}

// scale maps value from [0, from] to [0, to] with round-half-up
// integer arithmetic.
func scale(value, from, to uint32) uint32 {
	if from == to {
		return value
	}
	return (value*to + from/2) / from
}

// AppendWire appends the 16-byte RFB encoding of the format.
func (f PixelFormat) AppendWire(buffer []byte) []byte {
	var wire [WireSize]byte
	wire[0] = f.BitsPerPixel
	wire[1] = f.Depth
	if f.BigEndian {
		wire[2] = 1
	}
	if f.TrueColor {
		wire[3] = 1
	}
	binary.BigEndian.PutUint16(wire[4:6], f.RedMax)
	binary.BigEndian.PutUint16(wire[6:8], f.GreenMax)
	binary.BigEndian.PutUint16(wire[8:10], f.BlueMax)
	wire[10] = f.RedShift
	wire[11] = f.GreenShift
	wire[12] = f.BlueShift
	return append(buffer, wire[:]...)
}

// ParseWire decodes the 16-byte RFB encoding of a pixel format. The
// result is not validated.
func ParseWire(wire []byte) (PixelFormat, error) {
	if len(wire) != WireSize {
		return PixelFormat{}, fmt.Errorf("pixel format must be %d bytes, got %d", WireSize, len(wire))
	}
	return PixelFormat{
		BitsPerPixel: wire[0],
		Depth:        wire[1],
		BigEndian:    wire[2] != 0,
		TrueColor:    wire[3] != 0,
		RedMax:       binary.BigEndian.Uint16(wire[4:6]),
		GreenMax:     binary.BigEndian.Uint16(wire[6:8]),
		BlueMax:      binary.BigEndian.Uint16(wire[8:10]),
		RedShift:     wire[10],
		GreenShift:   wire[11],
		BlueShift:    wire[12],
	}, nil
}

// String returns the layout name when the format matches a named one,
// otherwise a compact description.
func (f PixelFormat) String() string {
	for _, name := range FormatNames() {
		if namedFormats[name].SameLayout(f) && f.Depth == namedFormats[name].Depth {
			return name
		}
	}
	endian := "le"
	if f.BigEndian {
		endian = "be"
	}
	return fmt.Sprintf("%dbpp/%d %s r%d@%d g%d@%d b%d@%d",
		f.BitsPerPixel, f.Depth, endian,
		f.RedMax, f.RedShift, f.GreenMax, f.GreenShift, f.BlueMax, f.BlueShift)
}
