// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package framesource

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Conn is the compositor end of the compositor socket.
type Conn struct {
	conn     net.Conn
	compress bool

	writeMu sync.Mutex
}

// Dial connects to the bridge's compositor socket and sends hello.
// With compress set, frames are LZ4 compressed when that helps.
func Dial(ctx context.Context, path string, hello Hello, compress bool) (*Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	message, err := NewHelloMessage(hello)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := WriteMessage(conn, message); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	return &Conn{conn: conn, compress: compress}, nil
}

// SendFrame sends one committed frame.
func (c *Conn) SendFrame(frame *pixel.FrameBuffer) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.conn, NewFrameMessage(frame, c.compress))
}

// ReadInput blocks for the next injection from the bridge.
func (c *Conn) ReadInput() (input.Injection, error) {
	for {
		message, err := ReadMessage(c.conn)
		if err != nil {
			return input.Injection{}, err
		}
		if message.Type == MessageTypeInput {
			return ParseInput(message.Payload)
		}
	}
}

// Goodbye announces output removal and closes the connection.
func (c *Conn) Goodbye() error {
	c.writeMu.Lock()
	err := WriteMessage(c.conn, NewGoodbyeMessage())
	c.writeMu.Unlock()
	closeErr := c.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Close drops the connection without Goodbye.
func (c *Conn) Close() error {
	return c.conn.Close()
}
