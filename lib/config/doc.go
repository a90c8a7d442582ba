// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration of the termuxwc bridge.
//
// The file is named by the TERMUXWC_CONFIG environment variable (via
// [Load]) or a --config flag (via [LoadFile]). A missing file is an
// error: there is no search path. Binaries that run without any file
// start from [Default].
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// binds the RFB listener to loopback unless the file says otherwise,
// since viewers authenticate with security type None.
//
// After loading, socket and recording paths are expanded: ${VAR} and
// ${VAR:-default} patterns resolve from the environment, so the
// default socket directory is ${XDG_RUNTIME_DIR} with the Termux
// temporary directory as fallback.
package config
