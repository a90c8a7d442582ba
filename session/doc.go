// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package session wires one compositor output to its viewers.
//
// A [Session] owns the frame bridge, the RFB viewer server, the input
// queue and the input bridge, plus the optional surfaces around them:
// the HTTP endpoint (WebSocket viewers, /metrics, /healthz, /status),
// the control socket and the session recorder. [New] builds every
// component or none of them; [Session.Run] starts them and tears them
// down in a fixed order when the frame source closes or the context
// is cancelled:
//
//  1. the frame source is closed and the bridge stops, closing every
//     subscription;
//  2. the viewer server disconnects every viewer and waits for its
//     goroutines;
//  3. the input queue is closed, discarding undelivered events, and
//     the input bridge stops;
//  4. the HTTP server, control socket, recorder and stats logger stop.
//
// No goroutine started by Run outlives it.
package session
