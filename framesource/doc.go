// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package framesource hands committed compositor frames to the frame
// bridge.
//
// A [Source] delivers frames through WaitForFrame, which blocks on a
// condition variable until a frame newer than the last one returned
// has been committed, and through Latest, which never blocks. Once the
// output is removed every waiter gets [ErrSourceClosed].
//
// [Slot] is the in-process implementation. The compositor calls
// [Slot.Commit] from its frame-completion callback with a buffer it
// will not touch again. Commit is O(1): the slot holds a single
// pending frame, and a frame committed before the previous one was
// collected replaces it and is counted as coalesced. The render loop
// is never blocked and never holds a lock the bridge waits on.
//
// [Listener] serves the same contract for a compositor running as a
// separate process. The compositor connects to a unix socket, sends a
// Hello describing its output, then Frame messages, and finally
// Goodbye. The same connection carries Input messages back, making the
// Listener an [input.Injector] as well. See protocol.go for the wire
// format.
package framesource
