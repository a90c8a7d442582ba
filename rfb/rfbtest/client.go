// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package rfbtest provides a minimal RFB viewer for exercising the
// server end to end: handshake, update requests, Raw, Zlib and
// DesktopSize decoding into a local framebuffer, and input messages.
package rfbtest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/klauspost/compress/zlib"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Encodings the client can decode.
const (
	EncodingRaw         int32 = 0
	EncodingZlib        int32 = 6
	EncodingDesktopSize int32 = -223
)

// Pointer mask bits.
const (
	ButtonLeft   uint8 = 1 << 0
	ButtonMiddle uint8 = 1 << 1
	ButtonRight  uint8 = 1 << 2
	WheelUp      uint8 = 1 << 3
	WheelDown    uint8 = 1 << 4
)

// Client is one RFB viewer connection.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	// Name is the desktop name from ServerInit.
	Name string

	// Format is the pixel format updates arrive in.
	Format pixel.PixelFormat

	// Frame is the client's copy of the remote framebuffer, in
	// Format. Every decoded rectangle is written into it.
	Frame *pixel.FrameBuffer

	inflaterInput bytes.Buffer
	inflater      io.ReadCloser
}

// Rect is one decoded rectangle of an update.
type Rect struct {
	pixel.Rect
	Encoding int32
}

// Update is one decoded FramebufferUpdate.
type Update struct {
	Rects []Rect
}

// Resized reports whether the update carried a DesktopSize rectangle.
func (u Update) Resized() bool {
	for _, rect := range u.Rects {
		if rect.Encoding == EncodingDesktopSize {
			return true
		}
	}
	return false
}

// Area returns the number of pixels covered by pixel-carrying
// rectangles.
func (u Update) Area() int {
	area := 0
	for _, rect := range u.Rects {
		if rect.Encoding != EncodingDesktopSize {
			area += rect.Area()
		}
	}
	return area
}

// Handshake runs the client side of the handshake on conn, announcing
// version ("3.3", "3.7" or "3.8").
func Handshake(conn net.Conn, version string) (*Client, error) {
	c := &Client{conn: conn, reader: bufio.NewReader(conn)}

	serverVersion := make([]byte, 12)
	if _, err := io.ReadFull(c.reader, serverVersion); err != nil {
		return nil, fmt.Errorf("reading server version: %w", err)
	}
	var minor int
	switch version {
	case "3.3":
		minor = 3
	case "3.7":
		minor = 7
	case "3.8":
		minor = 8
	default:
		return nil, fmt.Errorf("unsupported client version %q", version)
	}
	if _, err := fmt.Fprintf(conn, "RFB 003.%03d\n", minor); err != nil {
		return nil, err
	}

	if minor == 3 {
		var security uint32
		if err := binary.Read(c.reader, binary.BigEndian, &security); err != nil {
			return nil, fmt.Errorf("reading security type: %w", err)
		}
		if security != 1 {
			return nil, fmt.Errorf("server chose security type %d", security)
		}
	} else {
		count, err := c.reader.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading security types: %w", err)
		}
		types := make([]byte, count)
		if _, err := io.ReadFull(c.reader, types); err != nil {
			return nil, fmt.Errorf("reading security types: %w", err)
		}
		if !bytes.Contains(types, []byte{1}) {
			return nil, fmt.Errorf("server does not offer security None: %v", types)
		}
		if _, err := conn.Write([]byte{1}); err != nil {
			return nil, err
		}
		if minor == 8 {
			var result uint32
			if err := binary.Read(c.reader, binary.BigEndian, &result); err != nil {
				return nil, fmt.Errorf("reading security result: %w", err)
			}
			if result != 0 {
				return nil, fmt.Errorf("security result %d", result)
			}
		}
	}

	// Shared flag.
	if _, err := conn.Write([]byte{1}); err != nil {
		return nil, err
	}

	var init [20]byte
	if _, err := io.ReadFull(c.reader, init[:]); err != nil {
		return nil, fmt.Errorf("reading server init: %w", err)
	}
	width := int(binary.BigEndian.Uint16(init[0:2]))
	height := int(binary.BigEndian.Uint16(init[2:4]))
	format, err := pixel.ParseWire(init[4:20])
	if err != nil {
		return nil, err
	}
	var nameLength uint32
	if err := binary.Read(c.reader, binary.BigEndian, &nameLength); err != nil {
		return nil, fmt.Errorf("reading desktop name: %w", err)
	}
	name := make([]byte, nameLength)
	if _, err := io.ReadFull(c.reader, name); err != nil {
		return nil, fmt.Errorf("reading desktop name: %w", err)
	}

	c.Name = string(name)
	c.Format = format
	c.Frame = pixel.NewFrameBuffer(width, height, format)
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SetPixelFormat switches the format of later updates. The local
// framebuffer is reallocated in the new format.
func (c *Client) SetPixelFormat(format pixel.PixelFormat) error {
	message := []byte{0, 0, 0, 0}
	message = format.AppendWire(message)
	if _, err := c.conn.Write(message); err != nil {
		return err
	}
	c.Format = format
	c.Frame = pixel.NewFrameBuffer(c.Frame.Width, c.Frame.Height, format)
	return nil
}

// SetEncodings announces the encodings the client accepts.
func (c *Client) SetEncodings(encodings ...int32) error {
	message := []byte{2, 0}
	message = binary.BigEndian.AppendUint16(message, uint16(len(encodings)))
	for _, encoding := range encodings {
		message = binary.BigEndian.AppendUint32(message, uint32(encoding))
	}
	_, err := c.conn.Write(message)
	return err
}

// RequestUpdate sends a FramebufferUpdateRequest for rect.
func (c *Client) RequestUpdate(incremental bool, rect pixel.Rect) error {
	message := []byte{3, 0}
	if incremental {
		message[1] = 1
	}
	message = binary.BigEndian.AppendUint16(message, uint16(rect.X))
	message = binary.BigEndian.AppendUint16(message, uint16(rect.Y))
	message = binary.BigEndian.AppendUint16(message, uint16(rect.Width))
	message = binary.BigEndian.AppendUint16(message, uint16(rect.Height))
	_, err := c.conn.Write(message)
	return err
}

// RequestFull requests the whole framebuffer, non-incrementally.
func (c *Client) RequestFull() error {
	return c.RequestUpdate(false, c.Frame.Bounds())
}

// RequestIncremental requests changes to the whole framebuffer.
func (c *Client) RequestIncremental() error {
	return c.RequestUpdate(true, c.Frame.Bounds())
}

// KeyEvent sends a key press or release for an X11 keysym.
func (c *Client) KeyEvent(down bool, keysym uint32) error {
	message := []byte{4, 0, 0, 0}
	if down {
		message[1] = 1
	}
	message = binary.BigEndian.AppendUint32(message, keysym)
	_, err := c.conn.Write(message)
	return err
}

// PointerEvent sends the button mask and position.
func (c *Client) PointerEvent(mask uint8, x, y int) error {
	message := []byte{5, mask}
	message = binary.BigEndian.AppendUint16(message, uint16(x))
	message = binary.BigEndian.AppendUint16(message, uint16(y))
	_, err := c.conn.Write(message)
	return err
}

// CutText sends ClientCutText.
func (c *Client) CutText(text string) error {
	message := []byte{6, 0, 0, 0}
	message = binary.BigEndian.AppendUint32(message, uint32(len(text)))
	message = append(message, text...)
	_, err := c.conn.Write(message)
	return err
}

// ReadUpdate reads one FramebufferUpdate and applies it to Frame.
func (c *Client) ReadUpdate() (Update, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return Update{}, err
	}
	if header[0] != 0 {
		return Update{}, fmt.Errorf("unexpected server message type %d", header[0])
	}
	count := int(binary.BigEndian.Uint16(header[2:4]))

	update := Update{Rects: make([]Rect, 0, count)}
	for range count {
		var rectHeader [12]byte
		if _, err := io.ReadFull(c.reader, rectHeader[:]); err != nil {
			return update, err
		}
		rect := Rect{
			Rect: pixel.Rect{
				X:      int(binary.BigEndian.Uint16(rectHeader[0:2])),
				Y:      int(binary.BigEndian.Uint16(rectHeader[2:4])),
				Width:  int(binary.BigEndian.Uint16(rectHeader[4:6])),
				Height: int(binary.BigEndian.Uint16(rectHeader[6:8])),
			},
			Encoding: int32(binary.BigEndian.Uint32(rectHeader[8:12])),
		}
		if err := c.decodeRect(rect); err != nil {
			return update, err
		}
		update.Rects = append(update.Rects, rect)
	}
	return update, nil
}

func (c *Client) decodeRect(rect Rect) error {
	size := rect.Width * rect.Height * c.Format.BytesPerPixel()
	switch rect.Encoding {
	case EncodingDesktopSize:
		c.Frame = pixel.NewFrameBuffer(rect.Width, rect.Height, c.Format)
		return nil

	case EncodingRaw:
		pixels := make([]byte, size)
		if _, err := io.ReadFull(c.reader, pixels); err != nil {
			return err
		}
		return c.Frame.WriteRect(rect.Rect, pixels)

	case EncodingZlib:
		var length uint32
		if err := binary.Read(c.reader, binary.BigEndian, &length); err != nil {
			return err
		}
		if _, err := io.CopyN(&c.inflaterInput, c.reader, int64(length)); err != nil {
			return err
		}
		if c.inflater == nil {
			inflater, err := zlib.NewReader(&c.inflaterInput)
			if err != nil {
				return fmt.Errorf("starting zlib stream: %w", err)
			}
			c.inflater = inflater
		}
		pixels := make([]byte, size)
		if _, err := io.ReadFull(c.inflater, pixels); err != nil {
			return fmt.Errorf("inflating rectangle: %w", err)
		}
		return c.Frame.WriteRect(rect.Rect, pixels)

	default:
		return fmt.Errorf("unsupported encoding %d", rect.Encoding)
	}
}
