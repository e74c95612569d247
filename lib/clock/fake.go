// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at start. Nothing fires until
// Advance moves time past a registered deadline.
//
// FakeClock is safe for concurrent use.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. Waits registered via
// After, NewTicker, and Sleep park until Advance carries the clock
// past their deadline, at which point they fire in deadline order.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*pendingTimer
	registered *sync.Cond
}

// pendingTimer is one registered wait: a one-shot for After and
// Sleep, recurring when interval is non-zero (tickers).
type pendingTimer struct {
	deadline time.Time
	channel  chan time.Time
	interval time.Duration

	// stopped marks a ticker whose Stop was called; it no longer
	// fires and drops out of the pending list on the next Advance.
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot wait. A d <= 0 delivers the current time
// immediately without registering anything.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}

	c.pending = append(c.pending, &pendingTimer{
		deadline: c.now.Add(d),
		channel:  channel,
	})
	c.registered.Broadcast()
	return channel
}

// NewTicker registers a recurring wait. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	timer := &pendingTimer{
		deadline: c.now.Add(d),
		channel:  channel,
		interval: d,
	}
	c.pending = append(c.pending, timer)
	c.registered.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.stopped = true
		},
		resetFunc: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.interval = d
			timer.deadline = c.now.Add(d)
			timer.stopped = false
		},
	}
}

// Sleep blocks until Advance moves the clock past the deadline. A
// d <= 0 returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every registered
// wait whose deadline now falls in the past, in deadline order. Tick
// deliveries are non-blocking: a full ticker channel drops the tick,
// matching time.Ticker. A ticker spanning several intervals fires
// once per interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		expired := c.takeExpired(target)
		if len(expired) == 0 {
			return
		}

		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})

		for _, timer := range expired {
			select {
			case timer.channel <- target:
			default:
			}
		}
	}
}

// takeExpired removes waits due at or before target from the pending
// list, reschedules tickers one interval out, and returns the batch
// to fire. Acquires c.mu itself.
func (c *FakeClock) takeExpired(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*pendingTimer
	var remaining []*pendingTimer
	for _, timer := range c.pending {
		switch {
		case timer.stopped:
		case !timer.deadline.After(target):
			expired = append(expired, timer)
		default:
			remaining = append(remaining, timer)
		}
	}

	for _, timer := range expired {
		if timer.interval > 0 {
			timer.deadline = timer.deadline.Add(timer.interval)
			remaining = append(remaining, timer)
		}
	}

	c.pending = remaining
	return expired
}

// WaitForTimers blocks until at least n waits are registered. Tests
// call this before Advance so a goroutine heading for its clock call
// cannot lose the race against the advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of registered, un-stopped waits.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}
