// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package rfb serves the published frames to remote viewers over the
// RFB (VNC) protocol.
//
// The server speaks protocol 3.8 and accepts 3.3 and 3.7 clients.
// Security type None is the only one offered, and every session is
// shared: the ClientInit flag is read and ignored. Connections arrive
// either on a TCP listener ([Server.Serve]) or as WebSocket upgrades
// carrying the same byte stream ([Server.WebSocketHandler], the noVNC
// "binary" subprotocol).
//
// Each viewer runs two goroutines. The reader decodes client messages:
// pixel format and encoding negotiation, update requests, and pointer
// and key events, which are translated into [input.Event] values and
// pushed on the shared input queue without blocking. The writer
// answers update requests. RFB is pull based, so nothing is sent until
// the viewer asks; damage published in between accumulates in the
// viewer's [bridge.Subscription] and goes out as one update. A write
// that does not complete within the write timeout drops the viewer.
//
// When the output size changes, viewers that announced the
// DesktopSize pseudo-encoding receive the new size followed by a full
// frame. Viewers that did not are disconnected, since RFB has no other
// way to tell them.
//
// On disconnect the viewer's subscription is released, its queued but
// undelivered input is discarded, and any buttons or keys it still
// holds are released through the input bridge.
package rfb
