// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// termuxwc-ctl queries and controls a running termuxwc-bridge through
// its control socket.
//
//	termuxwc-ctl status
//	termuxwc-ctl viewers
//	termuxwc-ctl refresh
//	termuxwc-ctl disconnect <viewer-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/termuxwc/termuxwc/control"
	"github.com/termuxwc/termuxwc/lib/config"
	"github.com/termuxwc/termuxwc/lib/process"
	"github.com/termuxwc/termuxwc/lib/version"
	"github.com/termuxwc/termuxwc/rfb"
	"github.com/termuxwc/termuxwc/session"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	var (
		socketPath  string
		configPath  string
		jsonOutput  bool
		timeout     time.Duration
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("termuxwc-ctl", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "socket", "", "control socket path (default: from the config)")
	flagSet.StringVar(&configPath, "config", "", "path to termuxwc.yaml used to find the control socket")
	flagSet.BoolVar(&jsonOutput, "json", false, "print raw JSON")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() { printUsage(flagSet) }
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.WithExitCode(err, 2)
	}
	if showVersion {
		fmt.Fprintf(stdout, "termuxwc-ctl %s\n", version.Info())
		return nil
	}

	positional := flagSet.Args()
	if len(positional) == 0 {
		printUsage(flagSet)
		return process.WithExitCode(errors.New("command required"), 2)
	}

	if socketPath == "" {
		path, err := defaultSocket(configPath)
		if err != nil {
			return err
		}
		socketPath = path
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := control.NewClient(socketPath)

	switch command := positional[0]; command {
	case "status":
		var status session.Status
		if err := client.Call(ctx, session.ActionStatus, nil, &status); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(stdout, status)
		}
		printStatus(stdout, status)
		return nil

	case "viewers":
		var viewers []rfb.ViewerInfo
		if err := client.Call(ctx, session.ActionViewers, nil, &viewers); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(stdout, viewers)
		}
		printViewers(stdout, viewers)
		return nil

	case "refresh":
		var response session.RefreshResponse
		if err := client.Call(ctx, session.ActionRefresh, nil, &response); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "full refresh scheduled at seq %d\n", response.Seq)
		return nil

	case "disconnect":
		if len(positional) != 2 {
			return process.WithExitCode(errors.New("usage: termuxwc-ctl disconnect <viewer-id>"), 2)
		}
		if err := client.Call(ctx, session.ActionDisconnect, map[string]any{"viewer": positional[1]}, nil); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "disconnected %s\n", positional[1])
		return nil

	default:
		return process.WithExitCode(fmt.Errorf("unknown command %q", command), 2)
	}
}

func defaultSocket(configPath string) (string, error) {
	if configPath == "" && os.Getenv("TERMUXWC_CONFIG") == "" {
		cfg := config.Default()
		cfg.ExpandPaths()
		return cfg.ControlSocket, nil
	}
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return "", err
	}
	if cfg.ControlSocket == "" {
		return "", errors.New("control socket disabled in the configuration")
	}
	return cfg.ControlSocket, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func printStatus(w io.Writer, status session.Status) {
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(table, "version\t%s\n", status.Version)
	fmt.Fprintf(table, "uptime\t%s\n", status.Uptime)
	fmt.Fprintf(table, "output\t%dx%d seq %d\n", status.Frames.Width, status.Frames.Height, status.Frames.Seq)
	fmt.Fprintf(table, "digest\t%s\n", status.Frames.Digest)
	fmt.Fprintf(table, "frames\t%d published, %d coalesced, %d unchanged\n",
		status.Frames.Published, status.Frames.Coalesced, status.Frames.Unchanged)
	fmt.Fprintf(table, "viewers\t%d connected, %d accepted, %d rejected\n",
		status.Viewers.Connected, status.Viewers.Accepted, status.Viewers.Rejected)
	fmt.Fprintf(table, "input\t%d queued, %d injected, %d dropped, %d discarded\n",
		status.Queue.Queued, status.Delivery.Injected, status.Queue.Dropped, status.Queue.Discarded)
	if status.Recording != nil {
		fmt.Fprintf(table, "recording\t%d records, %d rects\n", status.Recording.Records, status.Recording.Rects)
	}
	table.Flush()
}

func printViewers(w io.Writer, viewers []rfb.ViewerInfo) {
	if len(viewers) == 0 {
		fmt.Fprintln(w, "no viewers connected")
		return
	}
	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "ID\tADDRESS\tTRANSPORT\tVERSION\tENCODING\tSIZE\tSENT\tCONNECTED")
	for _, viewer := range viewers {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%dx%d\t%d\t%s\n",
			viewer.ID, viewer.RemoteAddr, viewer.Transport, viewer.Version, viewer.Encoding,
			viewer.Width, viewer.Height, viewer.BytesSent,
			viewer.Connected.Format(time.RFC3339))
	}
	table.Flush()
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage:
  termuxwc-ctl [flags] status
  termuxwc-ctl [flags] viewers
  termuxwc-ctl [flags] refresh
  termuxwc-ctl [flags] disconnect <viewer-id>

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
