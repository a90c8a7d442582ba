// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package framesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/netutil"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Listener is a Source fed by a compositor process over a unix socket.
// It accepts exactly one compositor per session; when that compositor
// says Goodbye or disconnects, the output is considered removed.
type Listener struct {
	// Format is the configured compositor pixel layout. A Hello
	// announcing anything else fails the source with ErrFormatMismatch.
	Format pixel.PixelFormat

	// InputTimeout bounds each input write to the compositor. Zero
	// means two seconds.
	InputTimeout time.Duration

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	path     string
	listener *net.UnixListener
	slot     *Slot

	mu    sync.Mutex
	conn  *net.UnixConn
	hello *Hello

	writeMu sync.Mutex

	closeOnce sync.Once
}

// Listen binds the compositor socket at path. The caller must Close
// the Listener.
func Listen(path string, format pixel.PixelFormat, logger *slog.Logger) (*Listener, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatMismatch, err)
	}
	listener, err := netutil.ListenUnix(path)
	if err != nil {
		return nil, fmt.Errorf("compositor socket: %w", err)
	}
	return &Listener{
		Format:   format,
		Logger:   logger,
		path:     path,
		listener: listener,
		slot:     NewSlot(),
	}, nil
}

func (l *Listener) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// Hello returns the connected compositor's hello, or nil before the
// handshake.
func (l *Listener) Hello() *Hello {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hello
}

// Serve accepts the compositor and pumps its frames into the source
// until the output is removed, ctx is cancelled, or the compositor
// violates the protocol. Connections that fail the peer check or
// handshake are dropped and the next one is accepted. A format
// mismatch is returned and fails the source.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.Close)
	defer stop()

	for {
		conn, err := l.listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.slot.Close()
				return nil
			}
			l.logger().Error("compositor accept failed", "error", err)
			continue
		}

		hello, err := l.handshake(conn)
		if err != nil {
			conn.Close()
			if errors.Is(err, ErrFormatMismatch) {
				l.slot.Fail(err)
				l.Close()
				return err
			}
			l.logger().Warn("compositor connection rejected", "error", err)
			continue
		}

		// One compositor per session: stop accepting.
		l.listener.Close()
		l.mu.Lock()
		l.conn = conn
		l.hello = &hello
		l.mu.Unlock()

		l.logger().Info("compositor connected",
			"output", hello.Output,
			"width", hello.Width,
			"height", hello.Height,
			"format", hello.Format,
		)
		err = l.pump(conn)
		l.detach()
		if err != nil {
			l.slot.Fail(fmt.Errorf("%w: %v", ErrSourceClosed, err))
			return err
		}
		l.slot.Close()
		l.logger().Info("compositor output removed", "output", hello.Output)
		return nil
	}
}

func (l *Listener) handshake(conn *net.UnixConn) (Hello, error) {
	if err := netutil.RequireSameUser(conn); err != nil {
		return Hello{}, err
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	message, err := ReadMessage(conn)
	if err != nil {
		return Hello{}, fmt.Errorf("reading hello: %w", err)
	}
	if message.Type != MessageTypeHello {
		return Hello{}, fmt.Errorf("first message has type %#x, want hello", message.Type)
	}
	hello, err := ParseHello(message.Payload)
	if err != nil {
		return Hello{}, err
	}
	format, err := pixel.FormatByName(hello.Format)
	if err != nil {
		return Hello{}, fmt.Errorf("%w: compositor format: %v", ErrFormatMismatch, err)
	}
	if !format.SameLayout(l.Format) {
		return Hello{}, fmt.Errorf("%w: compositor announced %s, configured %s", ErrFormatMismatch, format, l.Format)
	}
	return hello, nil
}

// pump reads frames until Goodbye (nil), disconnect (nil) or a
// protocol error.
func (l *Listener) pump(conn *net.UnixConn) error {
	for {
		message, err := ReadMessage(conn)
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				return nil
			}
			return err
		}
		switch message.Type {
		case MessageTypeFrame:
			frame, err := ParseFrame(message.Payload, l.Format)
			if err != nil {
				return err
			}
			if err := l.slot.Commit(frame); err != nil {
				return nil
			}
		case MessageTypeGoodbye:
			return nil
		default:
			return fmt.Errorf("unexpected message type %#x from compositor", message.Type)
		}
	}
}

func (l *Listener) detach() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// WaitForFrame implements Source.
func (l *Listener) WaitForFrame(ctx context.Context) (*pixel.FrameBuffer, error) {
	return l.slot.WaitForFrame(ctx)
}

// Latest implements Source.
func (l *Listener) Latest() *pixel.FrameBuffer { return l.slot.Latest() }

// Stats implements Source.
func (l *Listener) Stats() Stats { return l.slot.Stats() }

// Inject implements input.Injector by forwarding the injection to the
// compositor. Without a connected compositor it returns
// input.ErrUnavailable.
func (l *Listener) Inject(ctx context.Context, injection input.Injection) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return input.ErrUnavailable
	}

	message, err := NewInputMessage(injection)
	if err != nil {
		return err
	}

	timeout := l.InputTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := WriteMessage(conn, message); err != nil {
		return fmt.Errorf("%w: %v", input.ErrUnavailable, err)
	}
	return nil
}

// Close stops accepting, disconnects the compositor, closes the
// source and removes the socket file. Safe to call more than once.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.listener.Close()
		l.detach()
		l.slot.Close()
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.logger().Debug("removing compositor socket", "path", l.path, "error", err)
		}
	})
}
