// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// termuxwc-bridge serves a headless compositor output to VNC viewers.
//
// The compositor connects to the compositor socket, announces its
// output and streams committed frames. Viewers connect over RFB on
// --listen, or over WebSocket at /websockify on --http-listen (which
// also serves /metrics, /healthz and /status). termuxwc-ctl talks to
// the control socket.
//
// Configuration comes from the YAML file named by --config or
// TERMUXWC_CONFIG; without either the built-in defaults are used.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/termuxwc/termuxwc/framesource"
	"github.com/termuxwc/termuxwc/lib/config"
	"github.com/termuxwc/termuxwc/lib/process"
	"github.com/termuxwc/termuxwc/lib/version"
	"github.com/termuxwc/termuxwc/session"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		httpListen  string
		recordPath  string
		debug       bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("termuxwc-bridge", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to termuxwc.yaml (default: $TERMUXWC_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "RFB listen address (overrides the config file)")
	flagSet.StringVar(&httpListen, "http-listen", "", "WebSocket and metrics listen address (overrides the config file)")
	flagSet.StringVar(&recordPath, "record", "", "record the session to this file (overrides the config file)")
	flagSet.BoolVar(&debug, "debug", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.WithExitCode(err, 2)
	}
	if showVersion {
		fmt.Printf("termuxwc-bridge %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("listen") {
		cfg.Listen = listen
	}
	if flagSet.Changed("http-listen") {
		cfg.HTTPListen = httpListen
	}
	if flagSet.Changed("record") {
		cfg.Recording.Path = recordPath
	}
	if err := cfg.Validate(); err != nil {
		return process.WithExitCode(fmt.Errorf("invalid configuration:\n%w", err), 2)
	}

	logger := newLogger(debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv("TERMUXWC_CONFIG") != "":
		return config.Load()
	default:
		cfg := config.Default()
		cfg.ExpandPaths()
		return cfg, nil
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	format, err := cfg.PixelFormat()
	if err != nil {
		return err
	}

	source, err := framesource.Listen(cfg.CompositorSocket, format, logger.With("component", "framesource"))
	if err != nil {
		return err
	}
	defer source.Close()

	rfbListener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("rfb listener: %w", err)
	}
	var httpListener net.Listener
	if cfg.HTTPListen != "" {
		httpListener, err = net.Listen("tcp", cfg.HTTPListen)
		if err != nil {
			rfbListener.Close()
			return fmt.Errorf("http listener: %w", err)
		}
	}
	closeListeners := func() {
		rfbListener.Close()
		if httpListener != nil {
			httpListener.Close()
		}
	}

	sess, err := session.New(session.Options{
		Source:               source,
		Injector:             source,
		Width:                cfg.Width,
		Height:               cfg.Height,
		SourceFormat:         format,
		MaxFPS:               cfg.MaxFPS,
		DamageTracking:       cfg.DamageTracking,
		InputQueueCapacity:   cfg.InputQueueCapacity,
		DesktopName:          cfg.DesktopName,
		WriteTimeout:         cfg.WriteTimeout(),
		RFBListener:          rfbListener,
		HTTPListener:         httpListener,
		ControlSocket:        cfg.ControlSocket,
		RecordingPath:        cfg.Recording.Path,
		RecordingCompression: cfg.Recording.Compression,
		StatsInterval:        cfg.StatsEvery(),
		Logger:               logger,
	})
	if err != nil {
		closeListeners()
		return err
	}

	logger.Info("waiting for compositor",
		"version", version.Info(),
		"compositor_socket", cfg.CompositorSocket,
		"environment", cfg.Environment,
	)

	sourceDone := make(chan error, 1)
	go func() { sourceDone <- source.Serve(ctx) }()

	runErr := sess.Run(ctx)
	closeListeners()
	if sourceErr := <-sourceDone; sourceErr != nil && runErr == nil {
		runErr = fmt.Errorf("compositor: %w", sourceErr)
	}
	return runErr
}
