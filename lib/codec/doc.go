// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the shared CBOR configuration.
//
// CBOR is used for every internal binary structure that is not part of
// the RFB wire protocol: the compositor hello and input messages on the
// frame socket, requests and responses on the control socket, and the
// header and records of session recordings. RFB itself is a fixed
// big-endian layout and is encoded by hand in package rfb.
//
// Types serialized only as CBOR use `cbor` struct tags. Types that the
// control CLI also prints as JSON use `json` tags, which fxamacker/cbor
// honours when no `cbor` tag is present.
package codec
