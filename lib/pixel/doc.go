// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package pixel holds the in-memory image types shared by the frame
// source, the frame bridge, and the RFB viewer server.
//
// A [FrameBuffer] is a fixed-format image: width, height, row stride,
// a [PixelFormat] and the backing bytes. Pixel formats use the RFB
// true-colour description (bits per pixel, depth, endianness, and a
// max/shift pair per channel), which is also expressive enough to
// describe the compositor's native layouts (xrgb8888, xbgr8888,
// rgb565). [FormatByName] resolves the names used in configuration
// and on the compositor socket.
//
// [Convert] and [AppendRect] translate pixels between formats. The
// translation is a channel reorder with integer rescaling: it is
// deterministic, and bits outside the three channels are always zero
// in the output. The 32-bit server format ([ServerFormat]) is the
// layout every published frame uses; viewers that negotiate a
// different format get their rectangles converted on the way out.
//
// FrameBuffers are treated as immutable once handed to another
// component. Producers build a fresh buffer per frame; consumers never
// write into a buffer they did not allocate.
package pixel
