// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Encoding numbers understood by the server.
const (
	EncodingRaw         int32 = 0
	EncodingZlib        int32 = 6
	EncodingDesktopSize int32 = -223
)

// Client to server message types.
const (
	msgSetPixelFormat           = 0
	msgSetEncodings             = 2
	msgFramebufferUpdateRequest = 3
	msgKeyEvent                 = 4
	msgPointerEvent             = 5
	msgClientCutText            = 6
)

// Server to client message types.
const msgFramebufferUpdate = 0

const (
	securityInvalid = 0
	securityNone    = 1
)

// serverVersion is the ProtocolVersion the server announces.
const serverVersion = "RFB 003.008\n"

// maxCutText bounds ClientCutText payloads. Clipboard is not bridged;
// the text is read and discarded.
const maxCutText = 1 << 20

// maxEncodings bounds the SetEncodings list.
const maxEncodings = 1024

var (
	// ErrUnsupportedVersion is returned for a client ProtocolVersion
	// other than 3.x.
	ErrUnsupportedVersion = errors.New("rfb: unsupported protocol version")

	// ErrResizeUnsupported is returned when the output is resized
	// under a viewer that did not announce DesktopSize.
	ErrResizeUnsupported = errors.New("rfb: viewer cannot follow a resize")

	// ErrServerClosed is returned by Serve and ServeConn after Close.
	ErrServerClosed = errors.New("rfb: server closed")
)

// Version is a negotiated protocol minor version: 3, 7 or 8.
type Version int

func (v Version) String() string {
	return fmt.Sprintf("3.%d", int(v))
}

// parseVersion maps a 12-byte ProtocolVersion message onto the closest
// version the server implements. Minor versions below 7 are treated as
// 3.3 and anything above 8 (Apple's 3.889, for one) as 3.8.
func parseVersion(message []byte) (Version, error) {
	text := string(message)
	if len(text) != len(serverVersion) || !strings.HasPrefix(text, "RFB ") || text[7] != '.' || text[11] != '\n' {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, message)
	}
	major, majorErr := strconv.Atoi(text[4:7])
	minor, minorErr := strconv.Atoi(text[8:11])
	if majorErr != nil || minorErr != nil || major != 3 || minor < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, message)
	}
	switch {
	case minor < 7:
		return 3, nil
	case minor == 7:
		return 7, nil
	default:
		return 8, nil
	}
}

// serverInit describes the framebuffer at the end of the handshake.
type serverInit struct {
	width, height int
	format        pixel.PixelFormat
	name          string
}

// handshake runs ProtocolVersion, security negotiation (None only),
// ClientInit and ServerInit. init is called after ClientInit so the
// size it reports is as fresh as possible.
func handshake(rw io.ReadWriter, init func() serverInit) (Version, serverInit, error) {
	if _, err := io.WriteString(rw, serverVersion); err != nil {
		return 0, serverInit{}, fmt.Errorf("writing protocol version: %w", err)
	}
	message := make([]byte, len(serverVersion))
	if _, err := io.ReadFull(rw, message); err != nil {
		return 0, serverInit{}, fmt.Errorf("reading protocol version: %w", err)
	}
	version, err := parseVersion(message)
	if err != nil {
		return 0, serverInit{}, err
	}

	if version == 3 {
		// 3.3: the server decides and sends a single u32.
		if err := binary.Write(rw, binary.BigEndian, uint32(securityNone)); err != nil {
			return 0, serverInit{}, fmt.Errorf("writing security type: %w", err)
		}
	} else {
		if _, err := rw.Write([]byte{1, securityNone}); err != nil {
			return 0, serverInit{}, fmt.Errorf("writing security types: %w", err)
		}
		var choice [1]byte
		if _, err := io.ReadFull(rw, choice[:]); err != nil {
			return 0, serverInit{}, fmt.Errorf("reading security type: %w", err)
		}
		if choice[0] != securityNone {
			if version == 8 {
				writeSecurityFailure(rw, "only security type None is supported")
			}
			return 0, serverInit{}, fmt.Errorf("rfb: client chose security type %d", choice[0])
		}
		// 3.7 sends no SecurityResult for None.
		if version == 8 {
			if err := binary.Write(rw, binary.BigEndian, uint32(0)); err != nil {
				return 0, serverInit{}, fmt.Errorf("writing security result: %w", err)
			}
		}
	}

	var clientInit [1]byte
	if _, err := io.ReadFull(rw, clientInit[:]); err != nil {
		return 0, serverInit{}, fmt.Errorf("reading client init: %w", err)
	}

	state := init()
	buffer := make([]byte, 0, 24+len(state.name))
	buffer = binary.BigEndian.AppendUint16(buffer, uint16(state.width))
	buffer = binary.BigEndian.AppendUint16(buffer, uint16(state.height))
	buffer = state.format.AppendWire(buffer)
	buffer = binary.BigEndian.AppendUint32(buffer, uint32(len(state.name)))
	buffer = append(buffer, state.name...)
	if _, err := rw.Write(buffer); err != nil {
		return 0, serverInit{}, fmt.Errorf("writing server init: %w", err)
	}
	return version, state, nil
}

func writeSecurityFailure(w io.Writer, reason string) {
	buffer := binary.BigEndian.AppendUint32(nil, 1)
	buffer = binary.BigEndian.AppendUint32(buffer, uint32(len(reason)))
	buffer = append(buffer, reason...)
	w.Write(buffer)
}

// updateRequest is a FramebufferUpdateRequest.
type updateRequest struct {
	incremental bool
	rect        pixel.Rect
}

// merge folds a newer request into a pending one. A full request wins
// over an incremental one, and the areas are combined.
func (r updateRequest) merge(next updateRequest) updateRequest {
	x0 := min(r.rect.X, next.rect.X)
	y0 := min(r.rect.Y, next.rect.Y)
	x1 := max(r.rect.X+r.rect.Width, next.rect.X+next.rect.Width)
	y1 := max(r.rect.Y+r.rect.Height, next.rect.Y+next.rect.Height)
	return updateRequest{
		incremental: r.incremental && next.incremental,
		rect:        pixel.Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0},
	}
}

// appendUpdateHeader appends a FramebufferUpdate header for count
// rectangles.
func appendUpdateHeader(buffer []byte, count int) []byte {
	buffer = append(buffer, msgFramebufferUpdate, 0)
	return binary.BigEndian.AppendUint16(buffer, uint16(count))
}

// appendRectHeader appends one rectangle header.
func appendRectHeader(buffer []byte, rect pixel.Rect, encoding int32) []byte {
	buffer = binary.BigEndian.AppendUint16(buffer, uint16(rect.X))
	buffer = binary.BigEndian.AppendUint16(buffer, uint16(rect.Y))
	buffer = binary.BigEndian.AppendUint16(buffer, uint16(rect.Width))
	buffer = binary.BigEndian.AppendUint16(buffer, uint16(rect.Height))
	return binary.BigEndian.AppendUint32(buffer, uint32(encoding))
}
