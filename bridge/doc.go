// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge turns committed compositor frames into published
// frames that any number of viewers can read without copying.
//
// [Bridge.Run] is the frame pump. Each cycle it waits for the next
// publish slot allowed by the configured frame rate, collects the
// newest frame from the [framesource.Source], converts it to
// [pixel.ServerFormat], computes damage against the previously
// published frame, and swaps the result in with an atomic pointer
// store. Frames committed while the pump waits coalesce in the
// source's single slot, so only the newest one is ever converted.
//
// A published [Frame] is never mutated. Readers call [Bridge.Current]
// or take an [Update] from their [Subscription] and may hold the frame
// for as long as they like; the next cycle allocates a new one.
//
// Each Subscription accumulates damage in a tile grid. Notifying a
// subscriber marks tiles and signals a capacity-1 channel: O(1) per
// subscriber and never blocking, so a slow viewer cannot stall the
// pump or any other viewer. A new subscription starts fully damaged,
// so its first update is a complete frame.
//
// When the output size changes, the published frame is reallocated,
// every subscriber is reset to full damage and flagged as resized.
// When the source closes, every subscription is closed and Run
// returns [framesource.ErrSourceClosed].
package bridge
