// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings defines the tracker's capture configuration, its
// on-disk persistence, and the shared live view the capture loop
// reads while the orchestrator mutates.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the capture configuration. One mutable copy lives in the
// tracker, owned by the orchestrator; every accepted change is
// persisted and broadcast before the next one is processed.
type Config struct {
	// Folder is the base directory for captures. Images land in
	// per-day subfolders beneath it.
	Folder string `yaml:"folder"`

	// IntervalSeconds is the pause between capture cycles. Must be
	// positive.
	IntervalSeconds int `yaml:"interval_seconds"`

	// JPEGQuality is the encoder quality, 1 to 100 inclusive.
	JPEGQuality int `yaml:"jpeg_quality"`

	// StartAtLogin launches the tracker with the user session. On the
	// wire this travels as startWithWindows, the field name the
	// protocol has always used.
	StartAtLogin bool `yaml:"start_at_login"`

	// AutoStartCapture begins capturing as soon as the tracker
	// starts, without waiting for a StartCapture command.
	AutoStartCapture bool `yaml:"auto_start_capture"`
}

// Default returns the configuration used before any file exists: a
// capture every minute at quality 80 under ~/Pictures/lapse, with
// both autostart behaviors off.
func Default() Config {
	homeDir, _ := os.UserHomeDir()
	return Config{
		Folder:          filepath.Join(homeDir, "Pictures", "lapse"),
		IntervalSeconds: 60,
		JPEGQuality:     80,
	}
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error

	if c.Folder == "" {
		errs = append(errs, fmt.Errorf("folder is required"))
	}
	if c.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("interval_seconds must be positive, got %d", c.IntervalSeconds))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be within 1..100, got %d", c.JPEGQuality))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
