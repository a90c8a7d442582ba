// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package damage computes and accumulates the changed areas of a frame.
//
// A [Region] is an ordered list of non-overlapping rectangles. [Diff]
// compares two frames of equal geometry tile by tile and returns the
// changed tiles merged into horizontal runs. A [Grid] accumulates
// regions for one consumer between two reads: marks are idempotent,
// so a slow consumer collects the union of everything it missed and
// never a backlog.
package damage
