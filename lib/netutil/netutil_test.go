// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/termuxwc/termuxwc/lib/testutil"
)

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("reading header: %w", io.EOF), true},
		{"closed", net.ErrClosed, true},
		{"pipe", syscall.EPIPE, true},
		{"reset", &net.OpError{Op: "write", Err: syscall.ECONNRESET}, true},
		{"other", errors.New("protocol violation"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestRequireSameUser(t *testing.T) {
	t.Parallel()

	path := filepath.Join(testutil.SocketDir(t), "peer.sock")
	listener, err := ListenUnix(path)
	if err != nil {
		t.Fatalf("ListenUnix: %v", err)
	}
	defer listener.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := listener.AcceptUnix()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		accepted <- RequireSameUser(conn)
	}()

	client, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := testutil.RequireReceive(t, accepted, testutil.Timeout, "peer check"); err != nil {
		t.Errorf("RequireSameUser: %v", err)
	}
}
