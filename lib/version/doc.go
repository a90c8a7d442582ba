// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the termuxwc binaries.
//
// [GitCommit], [GitDirty] and [BuildTime] are injected with -ldflags -X;
// without injection they fall back to the module build info embedded
// by the Go toolchain. [Info] formats the --version line and [Full]
// adds the Go version and platform. The control socket's status
// response carries [Short].
package version
