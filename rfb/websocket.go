// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// webSocketSubprotocol is the noVNC subprotocol name for raw RFB bytes
// in binary messages.
const webSocketSubprotocol = "binary"

// WebSocketHandler returns a handler that upgrades requests to
// WebSocket and serves RFB over them. Each binary message carries a
// chunk of the RFB byte stream in either direction.
func (s *Server) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		Subprotocols:    []string{webSocketSubprotocol},
		// noVNC pages are commonly served from a different origin
		// than the bridge.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			s.logger.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		s.ServeConn(r.Context(), NewWebSocketConn(ws), "websocket")
	})
}

// webSocketConn presents a WebSocket as a net.Conn carrying a byte
// stream.
type webSocketConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

// NewWebSocketConn adapts ws to a net.Conn. Each Write sends one
// binary message; Read spans message boundaries. Viewer clients (and
// tests) dialing /websockify use it to speak RFB over the socket.
func NewWebSocketConn(ws *websocket.Conn) net.Conn {
	return &webSocketConn{ws: ws}
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			messageType, reader, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				return 0, fmt.Errorf("rfb: websocket message type %d, want binary", messageType)
			}
			c.reader = reader
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) Close() error {
	return c.ws.Close()
}

func (c *webSocketConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *webSocketConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *webSocketConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *webSocketConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
