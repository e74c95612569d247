// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package capture

// State is the capture loop's lifecycle state. The String values are
// the exact strings the control protocol carries in CaptureState
// events.
type State int

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	default:
		return "Stopped"
	}
}
