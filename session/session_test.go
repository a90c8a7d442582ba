// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termuxwc/termuxwc/control"
	"github.com/termuxwc/termuxwc/framesource"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/pixel"
	"github.com/termuxwc/termuxwc/lib/testutil"
	"github.com/termuxwc/termuxwc/recording"
	"github.com/termuxwc/termuxwc/rfb"
	"github.com/termuxwc/termuxwc/rfb/rfbtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return listener
}

type harness struct {
	session *Session
	slot    *framesource.Slot
	cancel  context.CancelFunc
	result  chan error
}

// start builds a session on a fresh slot with an RFB listener and runs
// it. options.Source, RFBListener and Logger are filled in.
func start(t *testing.T, options Options) *harness {
	t.Helper()
	h := &harness{slot: framesource.NewSlot(), result: make(chan error, 1)}
	options.Source = h.slot
	options.RFBListener = listen(t)
	options.Logger = discardLogger()
	if options.MaxFPS == 0 {
		options.MaxFPS = 1000
	}

	session, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = session

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.result <- session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.result:
		case <-time.After(testutil.Timeout):
			t.Error("session did not stop")
		}
	})
	return h
}

// stop cancels the session and returns Run's result.
func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	err := testutil.RequireReceive(t, h.result, testutil.Timeout, "session stopped")
	// Cleanup waits on result too.
	h.result <- err
	return err
}

func (h *harness) commit(t *testing.T, frame *pixel.FrameBuffer) {
	t.Helper()
	seq := h.session.Frames().Current().Seq
	if err := h.slot.Commit(frame); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return h.session.Frames().Current().Seq > seq
	}, "frame published")
}

func (h *harness) dial(t *testing.T) *rfbtest.Client {
	t.Helper()
	before := h.session.Viewers().Stats().Accepted
	conn, err := net.Dial("tcp", h.session.options.RFBListener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(testutil.Timeout))
	client, err := rfbtest.Handshake(conn, "3.8")
	if err != nil {
		conn.Close()
		t.Fatalf("Handshake: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return h.session.Viewers().Stats().Accepted > before
	}, "viewer registered")
	return client
}

func redSquare(width, height int) *pixel.FrameBuffer {
	frame := pixel.NewFrameBuffer(width, height, pixel.ServerFormat)
	frame.Fill(pixel.Rect{X: 5, Y: 5, Width: 10, Height: 10}, 255, 0, 0)
	return frame
}

func TestEndToEndRedSquare(t *testing.T) {
	t.Parallel()

	h := start(t, Options{
		Width:          800,
		Height:         600,
		SourceFormat:   pixel.ServerFormat,
		DamageTracking: true,
	})
	h.commit(t, redSquare(800, 600))

	client := h.dial(t)
	if client.Frame.Width != 800 || client.Frame.Height != 600 {
		t.Fatalf("ServerInit size: got %dx%d, want 800x600", client.Frame.Width, client.Frame.Height)
	}
	if err := client.RequestFull(); err != nil {
		t.Fatalf("RequestFull: %v", err)
	}
	if _, err := client.ReadUpdate(); err != nil {
		t.Fatalf("ReadUpdate: %v", err)
	}

	checks := []struct {
		x, y int
		want uint32
	}{
		{5, 5, 0x00FF0000},
		{14, 14, 0x00FF0000},
		{4, 5, 0},
		{15, 15, 0},
		{799, 599, 0},
	}
	for _, check := range checks {
		if got := client.Frame.Pixel(check.x, check.y); got != check.want {
			t.Errorf("pixel (%d, %d): got %#08x, want %#08x", check.x, check.y, got, check.want)
		}
	}

	if err := h.stop(t); err != nil {
		t.Errorf("Run: %v", err)
	}
}

// blockingInjector accepts the first injection and then holds it until
// the session cancels delivery.
type blockingInjector struct {
	entered chan struct{}

	mu       sync.Mutex
	injected []input.Injection
}

func (b *blockingInjector) Inject(ctx context.Context, injection input.Injection) error {
	b.mu.Lock()
	b.injected = append(b.injected, injection)
	b.mu.Unlock()
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingInjector) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.injected)
}

func TestTeardownWithViewersAndQueuedInput(t *testing.T) {
	t.Parallel()

	injector := &blockingInjector{entered: make(chan struct{}, 1)}
	h := start(t, Options{Width: 64, Height: 48, Injector: injector})

	first := h.dial(t)
	second := h.dial(t)

	// The first event occupies the injector; the second waits in the
	// queue.
	if err := first.PointerEvent(0, 10, 10); err != nil {
		t.Fatalf("PointerEvent: %v", err)
	}
	testutil.RequireReceive(t, injector.entered, testutil.Timeout, "first event delivered")
	if err := second.KeyEvent(true, 'a'); err != nil {
		t.Fatalf("KeyEvent: %v", err)
	}
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return h.session.Queue().Len() == 1
	}, "key event queued")

	// Removing the output ends the session on its own.
	h.slot.Close()
	err := testutil.RequireReceive(t, h.result, testutil.Timeout, "session ended")
	h.result <- err
	if err != nil {
		t.Errorf("Run after output removal: %v", err)
	}

	viewers := h.session.Viewers().Stats()
	if viewers.Connected != 0 || viewers.Disconnected != 2 {
		t.Errorf("viewer stats: got %+v, want 2 disconnected", viewers)
	}
	queue := h.session.Queue().Stats()
	if queue.Queued != 0 || queue.Discarded != 1 || queue.Popped != 1 {
		t.Errorf("queue stats: got %+v, want the key event discarded", queue)
	}
	if !h.session.Queue().Closed() {
		t.Error("input queue left open")
	}
	if got := injector.count(); got != 1 {
		t.Errorf("injections: got %d, want only the first event", got)
	}
	testutil.RequireClosed(t, h.session.Frames().Done(), testutil.Timeout, "bridge stopped")

	for name, client := range map[string]*rfbtest.Client{"first": first, "second": second} {
		if _, err := client.ReadUpdate(); err == nil {
			t.Errorf("%s viewer: connection still open after teardown", name)
		}
	}
}

func TestRunTwice(t *testing.T) {
	t.Parallel()

	h := start(t, Options{Width: 32, Height: 32})
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return h.session.running.Load()
	}, "session running")
	if err := h.session.Run(context.Background()); err == nil {
		t.Error("second Run succeeded")
	}
}

func TestNewRequiresSource(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Logger: discardLogger()}); err == nil {
		t.Error("New accepted options without a source")
	}
	_, err := New(Options{Source: framesource.NewSlot(), RecordingPath: filepath.Join(t.TempDir(), "missing", "x.twcrec"), Logger: discardLogger()})
	if err == nil {
		t.Error("New accepted an unwritable recording path")
	}
}

func TestControlActions(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	h := start(t, Options{Width: 320, Height: 200, ControlSocket: socketPath})
	testutil.Eventually(t, testutil.Timeout, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, "control socket listening")

	client := control.NewClient(socketPath)
	ctx := context.Background()

	var status Status
	if err := client.Call(ctx, ActionStatus, nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Frames.Width != 320 || status.Frames.Height != 200 {
		t.Errorf("status size: got %dx%d, want 320x200", status.Frames.Width, status.Frames.Height)
	}
	if status.Version == "" || status.Frames.Digest == "" {
		t.Errorf("status missing version or digest: %+v", status)
	}

	var refreshed RefreshResponse
	if err := client.Call(ctx, ActionRefresh, nil, &refreshed); err != nil {
		t.Errorf("refresh: %v", err)
	}

	err := client.Call(ctx, ActionDisconnect, map[string]any{"viewer": "nobody"}, nil)
	var actionErr *control.ActionError
	if !errors.As(err, &actionErr) {
		t.Errorf("disconnect unknown viewer: got %v, want *ActionError", err)
	}

	h.dial(t)
	var viewers []rfb.ViewerInfo
	if err := client.Call(ctx, ActionViewers, nil, &viewers); err != nil {
		t.Fatalf("viewers: %v", err)
	}
	if len(viewers) != 1 || viewers[0].Transport != "tcp" {
		t.Fatalf("viewers: got %+v, want one tcp viewer", viewers)
	}
	if err := client.Call(ctx, ActionDisconnect, map[string]any{"viewer": viewers[0].ID}, nil); err != nil {
		t.Errorf("disconnect: %v", err)
	}
	testutil.Eventually(t, testutil.Timeout, func() bool {
		return h.session.Viewers().Stats().Connected == 0
	}, "viewer disconnected")
}

func TestHTTPEndpoints(t *testing.T) {
	t.Parallel()

	httpListener := listen(t)
	h := start(t, Options{Width: 64, Height: 48, HTTPListener: httpListener})
	h.commit(t, redSquare(64, 48))
	base := "http://" + httpListener.Addr().String()

	get := func(path string) (int, string) {
		t.Helper()
		response, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer response.Body.Close()
		body, err := io.ReadAll(response.Body)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		return response.StatusCode, string(body)
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz: got %d %q", code, body)
	}
	if code, body := get("/metrics"); code != http.StatusOK || !strings.Contains(body, "termuxwc_build_info") {
		t.Errorf("/metrics: got %d, body without build info", code)
	}
	code, body := get("/status")
	if code != http.StatusOK {
		t.Fatalf("/status: got %d", code)
	}
	var status Status
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("decoding /status: %v", err)
	}
	if status.Frames.Seq != 1 {
		t.Errorf("/status seq: got %d, want 1", status.Frames.Seq)
	}

	dialer := websocket.Dialer{Subprotocols: []string{"binary"}}
	ws, _, err := dialer.Dial("ws://"+httpListener.Addr().String()+"/websockify", nil)
	if err != nil {
		t.Fatalf("websocket Dial: %v", err)
	}
	defer ws.Close()
	conn := rfb.NewWebSocketConn(ws)
	conn.SetDeadline(time.Now().Add(testutil.Timeout))
	client, err := rfbtest.Handshake(conn, "3.8")
	if err != nil {
		t.Fatalf("Handshake over websocket: %v", err)
	}
	client.RequestFull()
	if _, err := client.ReadUpdate(); err != nil {
		t.Fatalf("ReadUpdate over websocket: %v", err)
	}
	if got := client.Frame.Pixel(5, 5); got != 0x00FF0000 {
		t.Errorf("websocket pixel (5, 5): got %#08x, want 0x00ff0000", got)
	}
}

func TestRecordingReplaysSession(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.twcrec")
	h := start(t, Options{
		Width:          128,
		Height:         96,
		DamageTracking: true,
		RecordingPath:  path,
	})
	for i := range 5 {
		frame := pixel.NewFrameBuffer(128, 96, pixel.ServerFormat)
		frame.Fill(pixel.Rect{X: i * 20, Y: i * 10, Width: 30, Height: 30}, 0, uint8(50*i), 255)
		h.commit(t, frame)
	}
	if err := h.stop(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	result, err := recording.ReplayFile(path)
	if err != nil {
		t.Fatalf("ReplayFile: %v", err)
	}
	final := h.session.Frames().Current()
	if !result.Frame.Equal(final.Buffer) {
		t.Error("replayed frame differs from the final published frame")
	}
	if result.LastSeq != final.Seq {
		t.Errorf("last seq: got %d, want %d", result.LastSeq, final.Seq)
	}
}
