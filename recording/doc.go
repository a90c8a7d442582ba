// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package recording writes published frame damage to a file and
// replays it.
//
// A recording is the 8-byte magic "TWCREC1\n" followed by a CBOR
// stream: one [Header], then one [Record] per update the recorder
// took from its subscription. Each record carries the damaged
// rectangles' pixels in the server format, compressed with zstd unless
// the header says otherwise, and the BLAKE3 digest of the whole frame
// after the update.
//
// [Replay] applies the records in order to a blank framebuffer and
// checks each digest, so a recording started before the first frame
// reconstructs the final published frame bit for bit.
package recording
