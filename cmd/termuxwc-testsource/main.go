// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// termuxwc-testsource stands in for the compositor: it connects to a
// running termuxwc-bridge, streams an animated test pattern and draws
// a crosshair wherever viewer pointer input lands. Use it to check a
// viewer setup without a real compositor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/termuxwc/termuxwc/framesource"
	"github.com/termuxwc/termuxwc/input"
	"github.com/termuxwc/termuxwc/lib/config"
	"github.com/termuxwc/termuxwc/lib/netutil"
	"github.com/termuxwc/termuxwc/lib/pixel"
	"github.com/termuxwc/termuxwc/lib/process"
	"github.com/termuxwc/termuxwc/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	defaults := config.Default()
	defaults.ExpandPaths()

	var (
		socketPath  string
		width       int
		height      int
		fps         int
		formatName  string
		frames      int
		compress    bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("termuxwc-testsource", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", defaults.CompositorSocket, "compositor socket of the bridge")
	flagSet.IntVar(&width, "width", defaults.Width, "output width")
	flagSet.IntVar(&height, "height", defaults.Height, "output height")
	flagSet.IntVar(&fps, "fps", 30, "frames per second")
	flagSet.StringVar(&formatName, "format", defaults.SourceFormat, "pixel format name")
	flagSet.IntVar(&frames, "frames", 0, "stop after this many frames (0: run until interrupted)")
	flagSet.BoolVar(&compress, "compress", true, "LZ4 compress frames")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.WithExitCode(err, 2)
	}
	if showVersion {
		fmt.Printf("termuxwc-testsource %s\n", version.Info())
		return nil
	}
	if width <= 0 || height <= 0 || fps <= 0 {
		return process.WithExitCode(fmt.Errorf("width, height and fps must be positive"), 2)
	}
	format, err := pixel.FormatByName(formatName)
	if err != nil {
		return process.WithExitCode(err, 2)
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, nil)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := framesource.Dial(ctx, socketPath, framesource.Hello{
		Output: "TESTSOURCE-1",
		Width:  width,
		Height: height,
		Stride: width * format.BytesPerPixel(),
		Format: formatName,
	}, compress)
	if err != nil {
		return err
	}

	pattern := newPattern(width, height, format)
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		for {
			injection, err := conn.ReadInput()
			if err != nil {
				if !netutil.IsExpectedCloseError(err) {
					logger.Error("reading input", "error", err)
				}
				return
			}
			logger.Info("input", "event", injection.Event.String(), "viewer_id", injection.Viewer,
				"x", injection.OutputX, "y", injection.OutputY)
			pattern.apply(injection)
		}
	}()

	logger.Info("streaming test pattern", "socket", socketPath, "width", width, "height", height, "fps", fps)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
stream:
	for sent := 0; frames == 0 || sent < frames; sent++ {
		if err := conn.SendFrame(pattern.render(sent)); err != nil {
			conn.Close()
			<-inputDone
			return fmt.Errorf("sending frame %d: %w", sent, err)
		}
		select {
		case <-ctx.Done():
			break stream
		case <-ticker.C:
		}
	}

	err = conn.Goodbye()
	<-inputDone
	return err
}

// pattern renders frames and tracks the last injected pointer
// position.
type pattern struct {
	width, height int
	format        pixel.PixelFormat

	mu       sync.Mutex
	cursorX  int
	cursorY  int
	pressed  bool
	hasInput bool
}

func newPattern(width, height int, format pixel.PixelFormat) *pattern {
	return &pattern{width: width, height: height, format: format}
}

func (p *pattern) apply(injection input.Injection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch injection.Kind {
	case input.KindPointerMove:
		p.cursorX = int(injection.OutputX)
		p.cursorY = int(injection.OutputY)
		p.hasInput = true
	case input.KindPointerButton:
		if injection.Button == input.ButtonLeft {
			p.pressed = injection.Pressed
		}
	}
}
