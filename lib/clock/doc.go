// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that wait on time (the frame bridge's publish-rate
// limiter, the periodic stats logger) take a Clock instead of calling
// the time package. Tests pass a [FakeClock], wait for the component
// to register its timer with [FakeClock.WaitForTimers], and then
// [FakeClock.Advance] past the deadline:
//
//	fake := clock.Fake(time.Unix(0, 0))
//	go component.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second / 30)
package clock
