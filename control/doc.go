// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the bridge's local control socket.
//
// The protocol is one CBOR request and one CBOR response per
// connection on a unix socket. A request is a map with an "action"
// field plus action-specific fields; the response is a [Response]
// envelope whose Data holds the action's result. Only processes
// running as the same user may connect (SO_PEERCRED).
//
// The session registers the actions: "status" (frame, viewer and
// input counters), "viewers", "refresh" (resend full frames to every
// viewer) and "disconnect" (drop one viewer by id). [Client] is the
// calling side, used by termuxwc-ctl.
package control
