// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short temporary directory for unix sockets,
// whose paths are limited to 108 bytes. [RequireReceive],
// [RequireSend] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never hang on a stuck goroutine. [Eventually] polls
// a condition for state that is only observable through counters.
//
// All helpers fail the test with t.Fatalf rather than returning errors.
package testutil
