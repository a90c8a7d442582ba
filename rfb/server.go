// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/termuxwc/termuxwc/bridge"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/netutil"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Frames is the part of the frame bridge the server reads from.
type Frames interface {
	Subscribe(id string) *bridge.Subscription
	Current() *bridge.Frame
}

// Releaser releases whatever a departed viewer still holds pressed.
// *input.Bridge implements it.
type Releaser interface {
	ReleaseViewer(viewer string)
}

// Options configures a Server.
type Options struct {
	// DesktopName is sent in ServerInit.
	DesktopName string

	// WriteTimeout bounds each update write. A viewer that cannot
	// accept an update in time is disconnected. Zero means 10s.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the protocol handshake. Zero means 10s.
	HandshakeTimeout time.Duration

	// Queue receives viewer input. Nil drops input.
	Queue *input.Queue

	// Releaser is told about departed viewers after their queued
	// input has been discarded. May be nil.
	Releaser Releaser

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// ViewerInfo describes a connected viewer.
type ViewerInfo struct {
	ID         string    `json:"id" cbor:"id"`
	RemoteAddr string    `json:"remote_addr" cbor:"remote_addr"`
	Transport  string    `json:"transport" cbor:"transport"`
	Version    string    `json:"version" cbor:"version"`
	Connected  time.Time `json:"connected" cbor:"connected"`
	Width      int       `json:"width" cbor:"width"`
	Height     int       `json:"height" cbor:"height"`
	Format     string    `json:"format" cbor:"format"`
	Encoding   string    `json:"encoding" cbor:"encoding"`
	Extensions []string  `json:"extensions,omitempty" cbor:"extensions,omitempty"`
	BytesSent  uint64    `json:"bytes_sent" cbor:"bytes_sent"`
	Updates    uint64    `json:"updates" cbor:"updates"`
	Events     uint64    `json:"events" cbor:"events"`
}

// Stats is a snapshot of the server counters.
type Stats struct {
	Connected     int    `json:"connected" cbor:"connected"`
	Accepted      uint64 `json:"accepted" cbor:"accepted"`
	Rejected      uint64 `json:"rejected" cbor:"rejected"`
	Disconnected  uint64 `json:"disconnected" cbor:"disconnected"`
	WriteTimeouts uint64 `json:"write_timeouts" cbor:"write_timeouts"`
	BytesSent     uint64 `json:"bytes_sent" cbor:"bytes_sent"`
	Updates       uint64 `json:"updates" cbor:"updates"`
}

// Server accepts RFB viewers. Create it with NewServer.
type Server struct {
	frames  Frames
	options Options
	logger  *slog.Logger

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	pending   map[net.Conn]struct{}
	viewers   map[string]*viewer

	// active tracks ServeConn calls so Close can wait for every
	// viewer goroutine.
	active sync.WaitGroup

	accepted      atomic.Uint64
	rejected      atomic.Uint64
	disconnected  atomic.Uint64
	writeTimeouts atomic.Uint64
	bytesSent     atomic.Uint64
	updates       atomic.Uint64
}

// NewServer returns a Server publishing frames from frames.
func NewServer(frames Frames, options Options) (*Server, error) {
	if frames == nil {
		return nil, errors.New("rfb: frames are required")
	}
	if options.WriteTimeout < 0 || options.HandshakeTimeout < 0 {
		return nil, fmt.Errorf("rfb: negative timeout")
	}
	if options.WriteTimeout == 0 {
		options.WriteTimeout = 10 * time.Second
	}
	if options.HandshakeTimeout == 0 {
		options.HandshakeTimeout = 10 * time.Second
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Server{
		frames:    frames,
		options:   options,
		logger:    options.Logger,
		listeners: make(map[net.Listener]struct{}),
		pending:   make(map[net.Conn]struct{}),
		viewers:   make(map[string]*viewer),
	}, nil
}

// Serve accepts viewers on listener until ctx is cancelled or Close is
// called. It returns nil on cancellation and ErrServerClosed after
// Close. Viewers accepted here are disconnected when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	s.listeners[listener] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, listener)
		s.mu.Unlock()
		listener.Close()
	}()

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("viewer server listening", "address", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				if s.isClosed() {
					return ErrServerClosed
				}
				return fmt.Errorf("rfb: accepting viewers: %w", err)
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		go s.ServeConn(ctx, conn, "tcp")
	}
}

// ServeConn runs the RFB protocol on an accepted connection until the
// viewer leaves, ctx is cancelled, or the server is closed. transport
// labels the viewer in logs and in Viewers. The connection is always
// closed on return. Normal disconnects return nil.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn, transport string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrServerClosed
	}
	s.active.Add(1)
	s.pending[conn] = struct{}{}
	s.mu.Unlock()
	defer s.active.Done()

	logger := s.logger.With("remote_addr", remoteAddr(conn), "transport", transport)

	conn.SetDeadline(time.Now().Add(s.options.HandshakeTimeout))
	stopHandshake := context.AfterFunc(ctx, func() { conn.Close() })
	version, init, err := handshake(conn, s.serverInit)
	cancelled := !stopHandshake()

	s.mu.Lock()
	delete(s.pending, conn)
	closed := s.closed
	s.mu.Unlock()

	if err != nil || cancelled || closed {
		conn.Close()
		if cancelled || closed {
			return ErrServerClosed
		}
		s.rejected.Add(1)
		if netutil.IsExpectedCloseError(err) {
			logger.Debug("viewer left during handshake", "error", err)
			return nil
		}
		logger.Warn("viewer handshake failed", "error", err)
		return err
	}
	conn.SetDeadline(time.Time{})

	id := uuid.NewString()
	v := &viewer{
		id:        id,
		conn:      conn,
		server:    s,
		logger:    logger.With("viewer_id", id),
		transport: transport,
		version:   version,
		connected: time.Now(),
		format:    init.format,
		width:     init.width,
		height:    init.height,
		requested: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	v.subscription = s.frames.Subscribe(id)

	if !s.register(v) {
		v.subscription.Close()
		conn.Close()
		return ErrServerClosed
	}
	s.accepted.Add(1)
	v.logger.Info("viewer connected",
		"version", version.String(),
		"width", init.width,
		"height", init.height,
	)

	err = v.run(ctx)
	s.release(v)

	if err == nil || netutil.IsExpectedCloseError(err) {
		v.logger.Info("viewer disconnected")
		return nil
	}
	if errors.Is(err, ErrResizeUnsupported) {
		v.logger.Info("viewer disconnected", "reason", err.Error())
		return err
	}
	v.logger.Warn("viewer dropped", "error", err)
	return err
}

func (s *Server) serverInit() serverInit {
	buffer := s.frames.Current().Buffer
	return serverInit{
		width:  buffer.Width,
		height: buffer.Height,
		format: pixel.ServerFormat,
		name:   s.options.DesktopName,
	}
}

func (s *Server) register(v *viewer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.viewers[v.id] = v
	return true
}

// release tears down a departed viewer: subscription first, then its
// undelivered input, then whatever it still holds pressed.
func (s *Server) release(v *viewer) {
	s.mu.Lock()
	delete(s.viewers, v.id)
	s.mu.Unlock()

	v.subscription.Close()
	discarded := 0
	if s.options.Queue != nil {
		discarded = s.options.Queue.DiscardFrom(v.id)
	}
	if s.options.Releaser != nil {
		s.options.Releaser.ReleaseViewer(v.id)
	}
	s.disconnected.Add(1)
	if discarded > 0 {
		v.logger.Debug("discarded queued input", "events", discarded)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Viewers lists the connected viewers, oldest first.
func (s *Server) Viewers() []ViewerInfo {
	s.mu.Lock()
	viewers := make([]*viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.mu.Unlock()

	infos := make([]ViewerInfo, 0, len(viewers))
	for _, v := range viewers {
		infos = append(infos, v.info())
	}
	slices.SortFunc(infos, func(a, b ViewerInfo) int {
		if c := a.Connected.Compare(b.Connected); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// Disconnect closes the viewer with the given id. It reports whether
// such a viewer was connected.
func (s *Server) Disconnect(id string) bool {
	s.mu.Lock()
	v := s.viewers[id]
	s.mu.Unlock()
	if v == nil {
		return false
	}
	v.logger.Info("disconnecting viewer on request")
	v.stop(nil)
	return true
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	connected := len(s.viewers)
	s.mu.Unlock()
	return Stats{
		Connected:     connected,
		Accepted:      s.accepted.Load(),
		Rejected:      s.rejected.Load(),
		Disconnected:  s.disconnected.Load(),
		WriteTimeouts: s.writeTimeouts.Load(),
		BytesSent:     s.bytesSent.Load(),
		Updates:       s.updates.Load(),
	}
}

// Close stops every listener, disconnects every viewer, and waits for
// all viewer goroutines to finish. It is safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	pending := make([]net.Conn, 0, len(s.pending))
	for conn := range s.pending {
		pending = append(pending, conn)
	}
	viewers := make([]*viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener.Close()
	}
	for _, conn := range pending {
		conn.Close()
	}
	for _, v := range viewers {
		v.stop(nil)
	}
	s.active.Wait()
}
