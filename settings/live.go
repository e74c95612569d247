// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import "sync"

// Live is the configuration snapshot shared between the orchestrator
// and the capture loop. The orchestrator is the only writer; the loop
// calls Snapshot at the top of each cycle, so an accepted change
// takes effect on the very next capture without a restart.
type Live struct {
	mu      sync.RWMutex
	current Config
}

// NewLive creates a live view starting from initial.
func NewLive(initial Config) *Live {
	return &Live{current: initial}
}

// Snapshot returns the current configuration by value.
func (l *Live) Snapshot() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Replace installs a new configuration value. Orchestrator only.
func (l *Live) Replace(config Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = config
}
