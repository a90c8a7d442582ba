// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package input carries viewer input into the compositor.
//
// Viewer sessions translate RFB pointer and key messages into [Event]
// values and push them on a shared [Queue]. The queue is bounded and
// never blocks a producer: when full, the oldest event is dropped and
// counted. A single [Bridge] goroutine pops events in FIFO order and
// hands them to an [Injector], so a press is always delivered before
// the release that followed it from the same viewer.
//
// Pointer coordinates travel normalized to [0, 1] and are mapped to
// output pixels by the Bridge with the output size in effect when the
// event is delivered. Under a rapid resize an event may therefore land
// at the proportional position in the new geometry rather than the
// pixel the viewer clicked; this is accepted.
//
// The Bridge remembers which buttons and keys each viewer holds. When
// a viewer disconnects, its queued events are discarded and the
// Bridge injects releases for whatever it still held, so no key stays
// stuck in the session.
package input
