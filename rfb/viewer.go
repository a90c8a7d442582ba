// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/termuxwc/termuxwc/bridge"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/damage"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Pointer mask bits from PointerEvent.
const (
	maskLeft       = 1 << 0
	maskMiddle     = 1 << 1
	maskRight      = 1 << 2
	maskWheelUp    = 1 << 3
	maskWheelDown  = 1 << 4
	maskWheelLeft  = 1 << 5
	maskWheelRight = 1 << 6
)

var pointerButtons = []struct {
	mask   uint8
	button uint32
}{
	{maskLeft, input.ButtonLeft},
	{maskMiddle, input.ButtonMiddle},
	{maskRight, input.ButtonRight},
}

var wheelDirections = []struct {
	mask  uint8
	axis  input.Axis
	steps int
}{
	{maskWheelUp, input.AxisVertical, -1},
	{maskWheelDown, input.AxisVertical, 1},
	{maskWheelLeft, input.AxisHorizontal, -1},
	{maskWheelRight, input.AxisHorizontal, 1},
}

// viewer is one connected RFB client.
type viewer struct {
	id           string
	conn         net.Conn
	server       *Server
	subscription *bridge.Subscription
	logger       *slog.Logger

	transport string
	version   Version
	connected time.Time

	mu          sync.Mutex
	format      pixel.PixelFormat
	zlib        bool
	desktopSize bool
	request     *updateRequest
	width       int
	height      int

	// Reader goroutine only.
	buttons      uint8
	pointerSeen  bool
	pointerX     int
	pointerY     int
	pointerWidth int

	// Writer goroutine only.
	encoder encoder
	buffer  []byte

	requested chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	stopErr   error

	bytesSent atomic.Uint64
	updates   atomic.Uint64
	events    atomic.Uint64
}

// run starts the reader and writer and blocks until both have
// returned. The first error either one reports is the session's
// result.
func (v *viewer) run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { v.stop(nil) })
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		v.stop(v.readLoop())
	}()
	go func() {
		defer wg.Done()
		v.stop(v.writeLoop())
	}()
	wg.Wait()
	v.encoder.close()
	return v.stopErr
}

// stop ends the session. Only the first call records its error.
func (v *viewer) stop(err error) {
	v.stopOnce.Do(func() {
		v.stopErr = err
		close(v.done)
		v.conn.Close()
	})
}

func (v *viewer) readLoop() error {
	reader := bufio.NewReader(v.conn)
	for {
		messageType, err := reader.ReadByte()
		if err != nil {
			return err
		}
		switch messageType {
		case msgSetPixelFormat:
			var body [19]byte
			if _, err := io.ReadFull(reader, body[:]); err != nil {
				return err
			}
			if err := v.setPixelFormat(body[3:]); err != nil {
				return err
			}

		case msgSetEncodings:
			var body [3]byte
			if _, err := io.ReadFull(reader, body[:]); err != nil {
				return err
			}
			count := int(binary.BigEndian.Uint16(body[1:]))
			if count > maxEncodings {
				return fmt.Errorf("rfb: SetEncodings lists %d encodings", count)
			}
			list := make([]byte, 4*count)
			if _, err := io.ReadFull(reader, list); err != nil {
				return err
			}
			v.setEncodings(list)

		case msgFramebufferUpdateRequest:
			var body [9]byte
			if _, err := io.ReadFull(reader, body[:]); err != nil {
				return err
			}
			v.queueRequest(updateRequest{
				incremental: body[0] != 0,
				rect: pixel.Rect{
					X:      int(binary.BigEndian.Uint16(body[1:3])),
					Y:      int(binary.BigEndian.Uint16(body[3:5])),
					Width:  int(binary.BigEndian.Uint16(body[5:7])),
					Height: int(binary.BigEndian.Uint16(body[7:9])),
				},
			})

		case msgKeyEvent:
			var body [7]byte
			if _, err := io.ReadFull(reader, body[:]); err != nil {
				return err
			}
			v.key(body[0] != 0, binary.BigEndian.Uint32(body[3:7]))

		case msgPointerEvent:
			var body [5]byte
			if _, err := io.ReadFull(reader, body[:]); err != nil {
				return err
			}
			v.pointer(body[0],
				int(binary.BigEndian.Uint16(body[1:3])),
				int(binary.BigEndian.Uint16(body[3:5])))

		case msgClientCutText:
			var body [7]byte
			if _, err := io.ReadFull(reader, body[:]); err != nil {
				return err
			}
			// Extended clipboard messages carry a negative length.
			length := int64(int32(binary.BigEndian.Uint32(body[3:7])))
			if length < 0 {
				length = -length
			}
			if length > maxCutText {
				return fmt.Errorf("rfb: ClientCutText of %d bytes", length)
			}
			if _, err := io.CopyN(io.Discard, reader, length); err != nil {
				return err
			}

		default:
			return fmt.Errorf("rfb: unknown client message type %d", messageType)
		}
	}
}

func (v *viewer) setPixelFormat(wire []byte) error {
	format, err := pixel.ParseWire(wire)
	if err != nil {
		return err
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("rfb: SetPixelFormat: %w", err)
	}
	v.mu.Lock()
	v.format = format
	v.mu.Unlock()
	v.logger.Debug("viewer pixel format", "format", format.String())
	return nil
}

func (v *viewer) setEncodings(list []byte) {
	var zlib, desktopSize bool
	for offset := 0; offset < len(list); offset += 4 {
		switch int32(binary.BigEndian.Uint32(list[offset:])) {
		case EncodingZlib:
			zlib = true
		case EncodingDesktopSize:
			desktopSize = true
		}
	}
	v.mu.Lock()
	v.zlib = zlib
	v.desktopSize = desktopSize
	v.mu.Unlock()
	v.logger.Debug("viewer encodings", "zlib", zlib, "desktop_size", desktopSize)
}

func (v *viewer) queueRequest(request updateRequest) {
	v.mu.Lock()
	if v.request != nil {
		request = v.request.merge(request)
	}
	v.request = &request
	v.mu.Unlock()
	select {
	case v.requested <- struct{}{}:
	default:
	}
}

func (v *viewer) key(down bool, keysym uint32) {
	keycode, ok := input.KeysymToKeycode(keysym)
	if !ok {
		v.logger.Debug("ignoring unmapped keysym", "keysym", fmt.Sprintf("%#x", keysym))
		return
	}
	v.push(input.Key(v.id, keycode, down))
}

// pointer turns one PointerEvent into a move (when the position
// changed), button transitions, and wheel clicks. Coordinates are
// normalized against the frame size this viewer was last sent.
func (v *viewer) pointer(mask uint8, x, y int) {
	v.mu.Lock()
	width, height := v.width, v.height
	v.mu.Unlock()

	if !v.pointerSeen || x != v.pointerX || y != v.pointerY || width != v.pointerWidth {
		v.push(input.PointerMove(v.id, normalize(x, width), normalize(y, height)))
		v.pointerSeen = true
		v.pointerX, v.pointerY, v.pointerWidth = x, y, width
	}

	changed := mask ^ v.buttons
	for _, button := range pointerButtons {
		if changed&button.mask != 0 {
			v.push(input.PointerButton(v.id, button.button, mask&button.mask != 0))
		}
	}
	for _, wheel := range wheelDirections {
		if changed&wheel.mask != 0 && mask&wheel.mask != 0 {
			v.push(input.PointerAxis(v.id, wheel.axis, wheel.steps))
		}
	}
	v.buttons = mask
}

func normalize(position, size int) float64 {
	if size <= 1 {
		return 0
	}
	return float64(position) / float64(size-1)
}

func (v *viewer) push(event input.Event) {
	v.events.Add(1)
	if v.server.options.Queue == nil {
		return
	}
	v.server.options.Queue.Push(event)
}

func (v *viewer) writeLoop() error {
	for {
		select {
		case <-v.done:
			return nil
		case <-v.subscription.Done():
			v.logger.Debug("frame subscription closed")
			return nil
		case <-v.requested:
		case <-v.subscription.Ready():
		}
		if err := v.sendPending(); err != nil {
			return err
		}
	}
}

// sendPending answers the pending update request if there is anything
// to send. An incremental request with no damage stays pending.
func (v *viewer) sendPending() error {
	v.mu.Lock()
	if v.request == nil {
		v.mu.Unlock()
		return nil
	}
	request := *v.request
	v.request = nil
	format := v.format
	useZlib := v.zlib
	desktopSize := v.desktopSize
	width, height := v.width, v.height
	v.mu.Unlock()

	update, ok := v.subscription.Take()
	frame := update.Frame
	frameWidth, frameHeight := frame.Buffer.Width, frame.Buffer.Height
	resized := frameWidth != width || frameHeight != height

	var region damage.Region
	switch {
	case resized:
		if !desktopSize {
			return fmt.Errorf("%w: %dx%d -> %dx%d", ErrResizeUnsupported, width, height, frameWidth, frameHeight)
		}
		region = damage.Full(frameWidth, frameHeight)
	case !request.incremental:
		region = damage.Region{request.rect}.Clip(frameWidth, frameHeight)
		if ok && region.Area() != frameWidth*frameHeight {
			region = append(region, update.Region...)
		}
	case ok:
		region = update.Region
	default:
		v.restoreRequest(request)
		return nil
	}

	encoding := EncodingRaw
	if useZlib {
		encoding = EncodingZlib
	}

	count := len(region)
	if resized {
		count++
	}
	buffer := appendUpdateHeader(v.buffer[:0], count)
	if resized {
		buffer = appendRectHeader(buffer, pixel.Rect{Width: frameWidth, Height: frameHeight}, EncodingDesktopSize)
	}
	for _, rect := range region {
		var err error
		buffer, err = v.encoder.appendRect(buffer, frame.Buffer, rect, format, encoding)
		if err != nil {
			return err
		}
	}
	v.buffer = buffer

	if resized {
		v.mu.Lock()
		v.width, v.height = frameWidth, frameHeight
		v.mu.Unlock()
		v.logger.Info("viewer resized", "width", frameWidth, "height", frameHeight)
	}
	return v.write(buffer, frame.Seq, len(region))
}

// restoreRequest puts back a request that produced nothing, merging
// with any request that arrived meanwhile.
func (v *viewer) restoreRequest(request updateRequest) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.request != nil {
		request = request.merge(*v.request)
	}
	v.request = &request
}

func (v *viewer) write(buffer []byte, seq uint64, rects int) error {
	v.conn.SetWriteDeadline(time.Now().Add(v.server.options.WriteTimeout))
	written, err := v.conn.Write(buffer)
	v.bytesSent.Add(uint64(written))
	v.server.bytesSent.Add(uint64(written))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			v.server.writeTimeouts.Add(1)
			v.logger.Warn("viewer too slow, dropping",
				"write_timeout", v.server.options.WriteTimeout,
				"seq", seq,
			)
		}
		return fmt.Errorf("rfb: writing update: %w", err)
	}
	v.updates.Add(1)
	v.server.updates.Add(1)
	v.logger.Debug("update sent", "seq", seq, "rects", rects, "bytes", written)
	return nil
}

// info snapshots the viewer for Server.Viewers.
func (v *viewer) info() ViewerInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	encoding := EncodingRaw
	if v.zlib {
		encoding = EncodingZlib
	}
	var extensions []string
	if v.desktopSize {
		extensions = append(extensions, "desktop_size")
	}
	return ViewerInfo{
		ID:         v.id,
		RemoteAddr: remoteAddr(v.conn),
		Transport:  v.transport,
		Version:    v.version.String(),
		Connected:  v.connected,
		Width:      v.width,
		Height:     v.height,
		Format:     v.format.String(),
		Encoding:   encodingName(encoding),
		Extensions: extensions,
		BytesSent:  v.bytesSent.Load(),
		Updates:    v.updates.Load(),
		Events:     v.events.Load(),
	}
}

func remoteAddr(conn net.Conn) string {
	if address := conn.RemoteAddr(); address != nil {
		return address.String()
	}
	return ""
}
