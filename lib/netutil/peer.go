// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// PeerCredentials returns the kernel-reported credentials of the
// process on the other end of a unix socket connection.
func PeerCredentials(conn *net.UnixConn) (*unix.Ucred, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("accessing raw connection: %w", err)
	}
	var credentials *unix.Ucred
	var credentialErr error
	if err := raw.Control(func(fd uintptr) {
		credentials, credentialErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return nil, fmt.Errorf("reading peer credentials: %w", err)
	}
	if credentialErr != nil {
		return nil, fmt.Errorf("SO_PEERCRED: %w", credentialErr)
	}
	return credentials, nil
}

// RequireSameUser rejects a unix connection whose peer runs as a
// different uid than this process.
func RequireSameUser(conn *net.UnixConn) error {
	credentials, err := PeerCredentials(conn)
	if err != nil {
		return err
	}
	if int(credentials.Uid) != os.Getuid() {
		return fmt.Errorf("peer uid %d does not match server uid %d", credentials.Uid, os.Getuid())
	}
	return nil
}

// ListenUnix removes a stale socket file at path and listens on it
// with owner-only permissions.
func ListenUnix(path string) (*net.UnixListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket permissions on %s: %w", path, err)
	}
	return listener, nil
}
