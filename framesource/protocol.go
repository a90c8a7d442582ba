// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package framesource

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/codec"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Message types on the compositor socket. Each message is a 5-byte
// header (1 byte type + 4 byte big-endian payload length) followed by
// the payload.
const (
	// MessageTypeHello describes the output. Compositor to bridge,
	// first message only. Payload is a CBOR Hello.
	MessageTypeHello byte = 0x01

	// MessageTypeFrame carries one committed frame. Compositor to
	// bridge. Payload is a fixed frame header followed by pixels.
	MessageTypeFrame byte = 0x02

	// MessageTypeGoodbye announces output removal. Compositor to
	// bridge, empty payload.
	MessageTypeGoodbye byte = 0x03

	// MessageTypeInput carries one input.Injection as CBOR. Bridge to
	// compositor.
	MessageTypeInput byte = 0x04
)

const messageHeaderLength = 5

// maxPayloadLength bounds one message: a 4096x4096 32-bit frame plus
// header.
const maxPayloadLength = 64*1024*1024 + frameHeaderLength

// Frame payload compression.
const (
	CompressionNone byte = 0
	CompressionLZ4  byte = 1
)

// frameHeaderLength is width, height, stride (u32 each), compression
// (u8) and uncompressed length (u32).
const frameHeaderLength = 17

// Message is a single compositor socket message.
type Message struct {
	Type    byte
	Payload []byte
}

// WriteMessage writes a framed message to w.
func WriteMessage(w io.Writer, message Message) error {
	var header [messageHeaderLength]byte
	header[0] = message.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(message.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write message header: %w", err)
	}
	if len(message.Payload) > 0 {
		if _, err := w.Write(message.Payload); err != nil {
			return fmt.Errorf("write message payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads a framed message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var header [messageHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, fmt.Errorf("read message header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadLength {
		return Message{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("read message payload: %w", err)
	}
	return Message{Type: header[0], Payload: payload}, nil
}

// Hello is the compositor's description of its output.
type Hello struct {
	// Output is the compositor's name for the output ("HEADLESS-1").
	Output string `cbor:"output"`
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
	Stride int    `cbor:"stride"`
	// Format is a pixel format name accepted by pixel.FormatByName.
	Format string `cbor:"format"`
}

// NewHelloMessage encodes hello.
func NewHelloMessage(hello Hello) (Message, error) {
	payload, err := codec.Marshal(hello)
	if err != nil {
		return Message{}, fmt.Errorf("encoding hello: %w", err)
	}
	return Message{Type: MessageTypeHello, Payload: payload}, nil
}

// ParseHello decodes a hello payload.
func ParseHello(payload []byte) (Hello, error) {
	var hello Hello
	if err := codec.Unmarshal(payload, &hello); err != nil {
		return Hello{}, fmt.Errorf("decoding hello: %w", err)
	}
	return hello, nil
}

// NewGoodbyeMessage returns the output-removed message.
func NewGoodbyeMessage() Message {
	return Message{Type: MessageTypeGoodbye}
}

// NewFrameMessage encodes the visible rows of frame. With compress
// set, pixels are LZ4 block compressed unless that would not shrink
// them.
func NewFrameMessage(frame *pixel.FrameBuffer, compress bool) Message {
	bytesPerPixel := frame.Format.BytesPerPixel()
	stride := frame.Width * bytesPerPixel
	raw := frame.Pix[:frame.Stride*frame.Height]
	if frame.Stride != stride {
		raw = make([]byte, 0, stride*frame.Height)
		for y := 0; y < frame.Height; y++ {
			raw = append(raw, frame.Row(y)...)
		}
	}

	compression := CompressionNone
	body := raw
	if compress {
		compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, compressed, nil)
		if err == nil && n > 0 && n < len(raw) {
			compression = CompressionLZ4
			body = compressed[:n]
		}
	}

	payload := make([]byte, frameHeaderLength, frameHeaderLength+len(body))
	binary.BigEndian.PutUint32(payload[0:4], uint32(frame.Width))
	binary.BigEndian.PutUint32(payload[4:8], uint32(frame.Height))
	binary.BigEndian.PutUint32(payload[8:12], uint32(stride))
	payload[12] = compression
	binary.BigEndian.PutUint32(payload[13:17], uint32(len(raw)))
	payload = append(payload, body...)
	return Message{Type: MessageTypeFrame, Payload: payload}
}

// ParseFrame decodes a frame payload into a new buffer of the given
// format.
func ParseFrame(payload []byte, format pixel.PixelFormat) (*pixel.FrameBuffer, error) {
	if len(payload) < frameHeaderLength {
		return nil, fmt.Errorf("frame payload of %d bytes shorter than header", len(payload))
	}
	width := int(binary.BigEndian.Uint32(payload[0:4]))
	height := int(binary.BigEndian.Uint32(payload[4:8]))
	stride := int(binary.BigEndian.Uint32(payload[8:12]))
	compression := payload[12]
	rawLength := int(binary.BigEndian.Uint32(payload[13:17]))
	body := payload[frameHeaderLength:]

	if rawLength != stride*height || rawLength > maxPayloadLength {
		return nil, fmt.Errorf("frame %dx%d stride %d declares %d bytes", width, height, stride, rawLength)
	}

	var pix []byte
	switch compression {
	case CompressionNone:
		if len(body) != rawLength {
			return nil, fmt.Errorf("frame body has %d bytes, want %d", len(body), rawLength)
		}
		pix = body
	case CompressionLZ4:
		pix = make([]byte, rawLength)
		n, err := lz4.UncompressBlock(body, pix)
		if err != nil {
			return nil, fmt.Errorf("decompressing frame: %w", err)
		}
		if n != rawLength {
			return nil, fmt.Errorf("decompressed frame has %d bytes, want %d", n, rawLength)
		}
	default:
		return nil, fmt.Errorf("unknown frame compression %d", compression)
	}

	frame := &pixel.FrameBuffer{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Pix:    pix,
	}
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return frame, nil
}

// NewInputMessage encodes an injection.
func NewInputMessage(injection input.Injection) (Message, error) {
	payload, err := codec.Marshal(injection)
	if err != nil {
		return Message{}, fmt.Errorf("encoding input: %w", err)
	}
	return Message{Type: MessageTypeInput, Payload: payload}, nil
}

// ParseInput decodes an input payload.
func ParseInput(payload []byte) (input.Injection, error) {
	var injection input.Injection
	if err := codec.Unmarshal(payload, &injection); err != nil {
		return input.Injection{}, fmt.Errorf("decoding input: %w", err)
	}
	return injection, nil
}
