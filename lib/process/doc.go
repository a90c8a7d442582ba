// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the termuxwc binaries:
// reporting a fatal error before or after the structured logger exists.
package process
