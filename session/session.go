// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/termuxwc/termuxwc/bridge"
	"github.com/termuxwc/termuxwc/control"
	"github.com/termuxwc/termuxwc/framesource"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/clock"
	"github.com/termuxwc/termuxwc/lib/pixel"
	"github.com/termuxwc/termuxwc/metrics"
	"github.com/termuxwc/termuxwc/recording"
	"github.com/termuxwc/termuxwc/rfb"
)

// recorderID is the bridge subscription id used by the recorder.
const recorderID = "recorder"

// Options configures a Session.
type Options struct {
	// Source delivers compositor frames. Required. If it has a
	// Close() method, Run calls it on cancellation.
	Source framesource.Source

	// Injector receives viewer input. Nil discards input as
	// unavailable.
	Injector input.Injector

	// Width and Height size the blank frame shown before the first
	// commit. Zero means 800x600.
	Width  int
	Height int

	// SourceFormat, when set, is the only layout accepted from Source.
	SourceFormat pixel.PixelFormat

	// MaxFPS caps the publish rate. Zero means 30.
	MaxFPS int

	DamageTracking bool

	// InputQueueCapacity bounds the shared input queue. Zero means 256.
	InputQueueCapacity int

	DesktopName  string
	WriteTimeout time.Duration

	// RFBListener accepts RFB viewers over TCP. May be nil.
	RFBListener net.Listener

	// HTTPListener serves Handler. May be nil.
	HTTPListener net.Listener

	// ControlSocket is the control protocol socket path. Empty
	// disables it.
	ControlSocket string

	// RecordingPath enables the recorder. RecordingCompression is
	// passed through to recording.Options.
	RecordingPath        string
	RecordingCompression string

	// StatsInterval is how often a stats line is logged. Zero
	// disables it.
	StatsInterval time.Duration

	// Clock drives the bridge rate limiter and the stats logger. Nil
	// means clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Status is the snapshot returned by the status action and /status.
type Status struct {
	Version   string            `json:"version" cbor:"version"`
	Uptime    string            `json:"uptime" cbor:"uptime"`
	Frames    bridge.Stats      `json:"frames" cbor:"frames"`
	Viewers   rfb.Stats         `json:"viewers" cbor:"viewers"`
	Queue     input.QueueStats  `json:"input_queue" cbor:"input_queue"`
	Delivery  input.BridgeStats `json:"input_delivery" cbor:"input_delivery"`
	Recording *recording.Stats  `json:"recording,omitempty" cbor:"recording,omitempty"`
	Source    framesource.Stats `json:"source" cbor:"source"`
	Sessions  []rfb.ViewerInfo  `json:"sessions,omitempty" cbor:"sessions,omitempty"`
}

// Session is one running output. Create it with New and start it with
// Run.
type Session struct {
	options Options
	logger  *slog.Logger
	clock   clock.Clock
	started time.Time

	frames   *bridge.Bridge
	queue    *input.Queue
	input    *input.Bridge
	viewers  *rfb.Server
	exporter *metrics.Exporter
	router   chi.Router

	control *control.Server

	recorder     *recording.Recorder
	subscription *bridge.Subscription

	running atomic.Bool
}

// New builds every component of a session. On error nothing is left
// running and no file is left open.
func New(options Options) (*Session, error) {
	if options.Source == nil {
		return nil, errors.New("session: source is required")
	}
	if options.Width == 0 && options.Height == 0 {
		options.Width, options.Height = 800, 600
	}
	if options.InputQueueCapacity == 0 {
		options.InputQueueCapacity = 256
	}
	if options.InputQueueCapacity < 0 {
		return nil, fmt.Errorf("session: negative input queue capacity %d", options.InputQueueCapacity)
	}
	if options.StatsInterval < 0 {
		return nil, fmt.Errorf("session: negative stats interval %s", options.StatsInterval)
	}
	if options.Injector == nil {
		options.Injector = input.InjectorFunc(func(context.Context, input.Injection) error {
			return input.ErrUnavailable
		})
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	s := &Session{
		options: options,
		logger:  options.Logger,
		clock:   options.Clock,
		started: options.Clock.Now(),
	}

	frames, err := bridge.New(options.Source, bridge.Options{
		Width:          options.Width,
		Height:         options.Height,
		SourceFormat:   options.SourceFormat,
		MaxFPS:         options.MaxFPS,
		DamageTracking: options.DamageTracking,
		Clock:          options.Clock,
		Logger:         options.Logger.With("component", "bridge"),
	})
	if err != nil {
		return nil, err
	}
	s.frames = frames

	s.queue = input.NewQueue(options.InputQueueCapacity)
	s.input = input.NewBridge(s.queue, options.Injector, frames.Size, options.Logger.With("component", "input"))

	s.viewers, err = rfb.NewServer(frames, rfb.Options{
		DesktopName:  options.DesktopName,
		WriteTimeout: options.WriteTimeout,
		Queue:        s.queue,
		Releaser:     s.input,
		Logger:       options.Logger.With("component", "rfb"),
	})
	if err != nil {
		return nil, err
	}

	s.exporter = metrics.NewExporter().
		WithFrames(frames.Stats).
		WithViewers(s.viewers.Stats).
		WithInputQueue(s.queue.Stats).
		WithInputDelivery(s.input.Stats)
	s.router = s.newRouter()

	if options.ControlSocket != "" {
		s.control = control.NewServer(options.ControlSocket, options.Logger.With("component", "control"))
		s.registerActions(s.control)
	}

	if options.RecordingPath != "" {
		recorder, err := recording.Create(options.RecordingPath, options.Width, options.Height, recording.Options{
			Compression: options.RecordingCompression,
			Clock:       options.Clock,
			Logger:      options.Logger.With("component", "recording"),
		})
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		s.recorder = recorder
		// Subscribing now captures the initial frame as the first record.
		s.subscription = frames.Subscribe(recorderID)
	}

	return s, nil
}

// Frames returns the frame bridge.
func (s *Session) Frames() *bridge.Bridge { return s.frames }

// Viewers returns the viewer server.
func (s *Session) Viewers() *rfb.Server { return s.viewers }

// Queue returns the input queue.
func (s *Session) Queue() *input.Queue { return s.queue }

// Input returns the input bridge.
func (s *Session) Input() *input.Bridge { return s.input }

// Handler serves /websockify, /metrics, /healthz and /status.
func (s *Session) Handler() http.Handler { return s.router }

// Status returns a snapshot of every component.
func (s *Session) Status(includeViewers bool) Status {
	status := Status{
		Version:  buildVersion(),
		Uptime:   clock.Since(s.clock, s.started).Round(time.Second).String(),
		Frames:   s.frames.Stats(),
		Viewers:  s.viewers.Stats(),
		Queue:    s.queue.Stats(),
		Delivery: s.input.Stats(),
		Source:   s.options.Source.Stats(),
	}
	if s.recorder != nil {
		stats := s.recorder.Stats()
		status.Recording = &stats
	}
	if includeViewers {
		status.Sessions = s.viewers.Viewers()
	}
	return status
}

// Run starts every component and blocks until the frame source closes
// or ctx is cancelled, then tears the session down. It returns the
// error that stopped the bridge, or nil when ctx was cancelled or the
// output went away cleanly. Run may be called only once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}

	// Components get their own contexts so teardown can stop them one
	// at a time in order.
	bridgeCtx, cancelBridge := context.WithCancel(context.Background())
	defer cancelBridge()
	inputCtx, cancelInput := context.WithCancel(context.Background())
	defer cancelInput()
	auxCtx, cancelAux := context.WithCancel(context.Background())
	defer cancelAux()

	var aux sync.WaitGroup

	bridgeDone := make(chan error, 1)
	go func() { bridgeDone <- s.frames.Run(bridgeCtx) }()

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		s.input.Run(inputCtx)
	}()

	// Viewer connections live until viewers.Close, not until ctx.
	viewersDone := make(chan struct{})
	var viewerServes sync.WaitGroup
	if s.options.RFBListener != nil {
		viewerServes.Add(1)
		go func() {
			defer viewerServes.Done()
			err := s.viewers.Serve(context.Background(), s.options.RFBListener)
			if err != nil && !errors.Is(err, rfb.ErrServerClosed) {
				s.logger.Error("rfb listener failed", "error", err)
			}
		}()
	}
	go func() {
		viewerServes.Wait()
		close(viewersDone)
	}()

	var httpServer *http.Server
	if s.options.HTTPListener != nil {
		httpServer = &http.Server{
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		}
		aux.Add(1)
		go func() {
			defer aux.Done()
			if err := httpServer.Serve(s.options.HTTPListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("http server failed", "error", err)
			}
		}()
	}

	if s.control != nil {
		aux.Add(1)
		go func() {
			defer aux.Done()
			if err := s.control.Serve(auxCtx); err != nil {
				s.logger.Error("control socket failed", "error", err)
			}
		}()
	}

	if s.recorder != nil {
		aux.Add(1)
		go func() {
			defer aux.Done()
			// The recorder ends when the bridge closes its subscription,
			// after taking the last damage.
			if err := s.recorder.Run(context.Background(), s.subscription); err != nil {
				s.frames.Unsubscribe(recorderID)
			}
		}()
	}

	if s.options.StatsInterval > 0 {
		aux.Add(1)
		go func() {
			defer aux.Done()
			s.logStats(auxCtx, s.options.StatsInterval)
		}()
	}

	s.logger.Info("session running",
		"width", s.options.Width,
		"height", s.options.Height,
		"rfb", listenerAddr(s.options.RFBListener),
		"http", listenerAddr(s.options.HTTPListener),
		"control_socket", s.options.ControlSocket,
		"recording", s.options.RecordingPath,
	)

	var err error
	select {
	case err = <-bridgeDone:
	case <-ctx.Done():
		s.logger.Info("session stopping")
		s.closeSource()
		cancelBridge()
		err = <-bridgeDone
		if errors.Is(err, framesource.ErrSourceClosed) {
			err = nil
		}
	}
	if errors.Is(err, framesource.ErrSourceClosed) {
		s.logger.Info("output removed, ending session")
		err = nil
	} else if err != nil {
		s.logger.Error("frame bridge stopped", "error", err)
	}

	s.viewers.Close()
	<-viewersDone

	s.queue.Close()
	cancelInput()
	<-inputDone

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			httpServer.Close()
		}
		cancel()
	}
	cancelAux()
	aux.Wait()

	if s.recorder != nil {
		if closeErr := s.recorder.Close(); closeErr != nil {
			s.logger.Error("closing recording", "path", s.options.RecordingPath, "error", closeErr)
		}
	}
	s.closeSource()

	final := s.Status(false)
	s.logger.Info("session ended",
		"frames_published", final.Frames.Published,
		"viewers_accepted", final.Viewers.Accepted,
		"input_injected", final.Delivery.Injected,
		"input_discarded", final.Queue.Discarded,
	)
	return err
}

func (s *Session) closeSource() {
	if closer, ok := s.options.Source.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (s *Session) logStats(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.Status(false)
			s.logger.Info("session stats",
				"seq", status.Frames.Seq,
				"published", status.Frames.Published,
				"coalesced", status.Frames.Coalesced,
				"viewers", status.Viewers.Connected,
				"bytes_sent", status.Viewers.BytesSent,
				"input_queued", status.Queue.Queued,
				"input_dropped", status.Queue.Dropped,
			)
		}
	}
}

func listenerAddr(listener net.Listener) string {
	if listener == nil {
		return ""
	}
	return listener.Addr().String()
}
