// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zlib"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// encoder turns frame rectangles into RFB rectangle bodies. It owns
// the viewer's zlib stream: RFB Zlib is one deflate stream per
// connection, flushed after every rectangle, so the encoder must be
// used by a single goroutine for the life of the connection.
type encoder struct {
	raw []byte

	compressed bytes.Buffer
	zlib       *zlib.Writer
}

// appendRect appends the header and body of one rectangle in the given
// encoding and pixel format.
func (e *encoder) appendRect(out []byte, frame *pixel.FrameBuffer, rect pixel.Rect, format pixel.PixelFormat, encoding int32) ([]byte, error) {
	out = appendRectHeader(out, rect, encoding)
	switch encoding {
	case EncodingRaw:
		return pixel.AppendRect(out, frame, rect, format), nil
	case EncodingZlib:
		e.raw = pixel.AppendRect(e.raw[:0], frame, rect, format)
		body, err := e.deflate(e.raw)
		if err != nil {
			return out, err
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
		return append(out, body...), nil
	default:
		return out, fmt.Errorf("rfb: encoding %d not implemented", encoding)
	}
}

// deflate compresses data onto the connection's stream and returns the
// bytes produced up to a sync flush. The result is only valid until the
// next call.
func (e *encoder) deflate(data []byte) ([]byte, error) {
	e.compressed.Reset()
	if e.zlib == nil {
		writer, err := zlib.NewWriterLevel(&e.compressed, zlib.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("rfb: creating zlib stream: %w", err)
		}
		e.zlib = writer
	}
	if _, err := e.zlib.Write(data); err != nil {
		return nil, fmt.Errorf("rfb: compressing rectangle: %w", err)
	}
	if err := e.zlib.Flush(); err != nil {
		return nil, fmt.Errorf("rfb: flushing zlib stream: %w", err)
	}
	return e.compressed.Bytes(), nil
}

func (e *encoder) close() {
	if e.zlib != nil {
		e.zlib.Close()
	}
}

func encodingName(encoding int32) string {
	switch encoding {
	case EncodingRaw:
		return "raw"
	case EncodingZlib:
		return "zlib"
	default:
		return fmt.Sprintf("encoding(%d)", encoding)
	}
}
