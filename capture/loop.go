// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lapse-project/lapse/lib/clock"
	"github.com/lapse-project/lapse/settings"
)

// minInterval is the floor on the capture cadence. Whatever the
// settings say, the loop never spins faster than this.
const minInterval = time.Second

// defaultLoopStopGrace bounds how long Stop waits for the loop
// goroutine after requesting cancellation.
const defaultLoopStopGrace = 5 * time.Second

// savedBuffer is the saved-frame channel capacity.
const savedBuffer = 8

// Artifact announces one image written to disk.
type Artifact struct {
	Path      string
	Surface   Surface
	Time      time.Time
	SizeBytes int64
	Hash      string
}

// LoopConfig holds the collaborators for NewLoop. Source, Writer, and
// Settings are required.
type LoopConfig struct {
	// Source produces frames.
	Source Source

	// Writer encodes and lands them.
	Writer *Writer

	// Settings is the live view the loop re-reads at the top of every
	// cycle, so folder, interval, and quality changes apply without a
	// restart.
	Settings *settings.Live

	// Clock paces the cycle. Nil means Real.
	Clock clock.Clock

	// Logger receives iteration errors. Nil discards them.
	Logger *slog.Logger

	// StopGrace bounds the wait inside Stop. Zero means
	// defaultLoopStopGrace.
	StopGrace time.Duration
}

// Loop captures every surface on the configured interval: grab,
// encode, write, announce, sleep, repeat. One frame failing is an
// iteration error, logged and survived; only Stop (or a lost race
// with process shutdown) ends the loop.
type Loop struct {
	source    Source
	writer    *Writer
	settings  *settings.Live
	clock     clock.Clock
	logger    *slog.Logger
	stopGrace time.Duration

	saved chan Artifact

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a stopped loop.
func NewLoop(cfg LoopConfig) *Loop {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	stopGrace := cfg.StopGrace
	if stopGrace <= 0 {
		stopGrace = defaultLoopStopGrace
	}
	return &Loop{
		source:    cfg.Source,
		writer:    cfg.Writer,
		settings:  cfg.Settings,
		clock:     clk,
		logger:    logger,
		stopGrace: stopGrace,
		saved:     make(chan Artifact, savedBuffer),
	}
}

// Saved returns the channel announcing written frames. The channel is
// never closed; it simply goes quiet while the loop is stopped.
func (l *Loop) Saved() <-chan Artifact {
	return l.saved
}

// State reports whether the loop is running.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return StateRunning
	}
	return StateStopped
}

// Start begins capturing. Returns false without side effects when the
// loop is already running. The first capture happens immediately, not
// one interval in.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.run(ctx, l.done)

	l.logger.Info("capture loop started")
	return true
}

// Stop requests cancellation and waits, bounded, for the loop
// goroutine to finish, so a true return means no further captures.
// Returns false without side effects when the loop is not running.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return false
	}
	cancel, done := l.cancel, l.done
	l.running = false
	l.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-l.clock.After(l.stopGrace):
		l.logger.Warn("capture loop still finishing its cycle", "grace", l.stopGrace)
	}

	l.logger.Info("capture loop stopped")
	return true
}

// run is the loop body: capture immediately, then sleep the
// configured interval and go again. The interval is re-read each
// cycle and the sleep aborts the moment cancellation lands.
func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		l.iterate(ctx)

		interval := time.Duration(l.settings.Snapshot().IntervalSeconds) * time.Second
		if interval < minInterval {
			interval = minInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-l.clock.After(interval):
		}
	}
}

// iterate captures every surface once. Failures are logged and the
// iteration moves on; nothing here ends the loop.
func (l *Loop) iterate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	snapshot := l.settings.Snapshot()

	surfaces, err := l.source.Surfaces(ctx)
	if err != nil {
		l.logger.Error("capture iteration failed, will retry next cycle", "error", err)
		return
	}

	for _, surface := range surfaces {
		if ctx.Err() != nil {
			return
		}

		frame, err := l.source.Grab(ctx, surface)
		if err != nil {
			l.logger.Error("grab failed", "surface", surface, "error", err)
			continue
		}

		result, err := l.writer.Write(snapshot.Folder, surface, frame, snapshot.JPEGQuality, l.clock.Now())
		if err != nil {
			l.logger.Error("save failed", "surface", surface, "error", err)
			continue
		}
		if result.Skipped {
			continue
		}

		select {
		case l.saved <- Artifact{
			Path:      result.Path,
			Surface:   surface,
			Time:      l.clock.Now(),
			SizeBytes: result.SizeBytes,
			Hash:      result.Hash,
		}:
		case <-ctx.Done():
			return
		}
	}
}
