// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time so components that wait, tick, or
// stamp times can be driven deterministically in tests.
//
// Code that would call time.Now, time.After, time.NewTicker, or
// time.Sleep takes a Clock instead. Production wiring passes Real();
// tests pass Fake(start) and move time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	loop := NewLoop(Config{Clock: fake})
//	loop.Start()
//	fake.WaitForTimers(1)          // loop has parked on its interval
//	fake.Advance(45 * time.Second) // fire the wait without real delay
//
// WaitForTimers is the synchronization half of the fake: it blocks
// until the expected number of waits are registered, which removes
// the race between a goroutine reaching its clock call and the test
// advancing past it.
package clock
