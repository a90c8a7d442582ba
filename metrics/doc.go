// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics renders component counters in the Prometheus text
// exposition format.
//
// Nothing is registered globally: an [Exporter] is given snapshot
// functions for the components a session runs and reads them on every
// scrape. Components without a provider are left out of the output.
package metrics
