// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/termuxwc/termuxwc/lib/codec"
	"github.com/termuxwc/termuxwc/lib/testutil"
)

func startServer(t *testing.T, register func(*Server)) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, served, testutil.Timeout, "Serve result"); err != nil {
			t.Errorf("Serve: %v", err)
		}
		if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
			t.Errorf("socket file left behind: %v", err)
		}
	})

	testutil.Eventually(t, testutil.Timeout, func() bool {
		info, err := os.Stat(socketPath)
		return err == nil && info.Mode().Perm() == 0o600
	}, "control socket ready")
	return socketPath
}

func TestCallReturnsData(t *testing.T) {
	t.Parallel()

	socketPath := startServer(t, func(server *Server) {
		server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
			return map[string]any{"seq": 42, "viewers": 2}, nil
		})
	})

	var status struct {
		Seq     uint64 `cbor:"seq"`
		Viewers int    `cbor:"viewers"`
	}
	if err := NewClient(socketPath).Call(context.Background(), "status", nil, &status); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if status.Seq != 42 || status.Viewers != 2 {
		t.Errorf("status: got %+v", status)
	}
}

func TestCallPassesFields(t *testing.T) {
	t.Parallel()

	socketPath := startServer(t, func(server *Server) {
		server.Handle("disconnect", func(ctx context.Context, raw []byte) (any, error) {
			var request struct {
				Viewer string `cbor:"viewer"`
			}
			if err := codec.Unmarshal(raw, &request); err != nil {
				return nil, err
			}
			if request.Viewer != "abc" {
				return nil, errors.New("no such viewer")
			}
			return nil, nil
		})
	})

	client := NewClient(socketPath)
	if err := client.Call(context.Background(), "disconnect", map[string]any{"viewer": "abc"}, nil); err != nil {
		t.Errorf("Call: %v", err)
	}

	err := client.Call(context.Background(), "disconnect", map[string]any{"viewer": "zzz"}, nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("Call with unknown viewer: got %v, want *ActionError", err)
	}
	if actionErr.Message != "no such viewer" || actionErr.Action != "disconnect" {
		t.Errorf("ActionError: got %+v", actionErr)
	}
}

func TestUnknownAction(t *testing.T) {
	t.Parallel()

	socketPath := startServer(t, func(*Server) {})
	err := NewClient(socketPath).Call(context.Background(), "reboot", nil, nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("Call: got %v, want *ActionError", err)
	}
	if actionErr.Message != `unknown action "reboot"` {
		t.Errorf("message: got %q", actionErr.Message)
	}
}

func TestSocketIsOwnerOnly(t *testing.T) {
	t.Parallel()

	socketPath := startServer(t, func(*Server) {})
	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket permissions: got %o, want 600", perm)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	t.Parallel()

	server := NewServer("/nonexistent", nil)
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("second Handle for the same action did not panic")
		}
	}()
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
}

func TestCallWithoutServer(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(testutil.SocketDir(t), "missing.sock")
	err := NewClient(socketPath).Call(context.Background(), "status", nil, nil)
	if err == nil {
		t.Fatal("Call succeeded without a server")
	}
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		t.Errorf("connection failure reported as ActionError: %v", err)
	}
}
