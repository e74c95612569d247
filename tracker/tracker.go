// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker binds the pieces of the capture daemon together:
// commands arriving over the IPC server mutate settings and drive the
// capture loop, state changes fan out to every connected client, and
// saved frames are announced and cataloged. All of that happens on
// one control goroutine, so command handling never races with itself
// and no collaborator needs to be safe for concurrent mutation.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lapse-project/lapse/archive"
	"github.com/lapse-project/lapse/autostart"
	"github.com/lapse-project/lapse/capture"
	"github.com/lapse-project/lapse/index"
	"github.com/lapse-project/lapse/ipc"
	"github.com/lapse-project/lapse/lib/clock"
	"github.com/lapse-project/lapse/protocol"
	"github.com/lapse-project/lapse/settings"
)

// AutostartName is the name the tracker registers under in the
// user's autostart directory. Exported so the daemon entrypoint can
// reconcile an existing registration against the persisted flag at
// startup.
const AutostartName = "lapse-tracker"

// retentionInterval is how often the orchestrator looks for day
// folders old enough to archive.
const retentionInterval = time.Hour

// minRetentionWindow is the smallest accepted retention window. A
// day folder is only archived once the whole day is behind the
// cutoff, so anything shorter than a day could never archive
// correctly anyway.
const minRetentionWindow = 24 * time.Hour

// Config holds the collaborators for New. Server, Loop, Settings,
// and Store are required; the rest are optional features.
type Config struct {
	// Server is the IPC server whose notices the orchestrator
	// consumes. The caller runs Serve; the orchestrator only reads
	// Notices and sends events.
	Server *ipc.Server

	// Loop is the capture loop under the orchestrator's control.
	Loop *capture.Loop

	// Settings is the live configuration shared with the capture
	// loop. Only the orchestrator writes to it.
	Settings *settings.Live

	// Store persists configuration across restarts.
	Store settings.Store

	// Registrar applies the launch-at-login flag. Nil disables
	// registration; the flag is still tracked and persisted.
	Registrar autostart.Registrar

	// Executable is the binary path handed to the registrar.
	// Required when Registrar is set.
	Executable string

	// Index catalogs saved captures for history queries. Nil
	// disables the catalog and the QueryHistory command.
	Index *index.Store

	// Archiver packs expired day folders. Nil disables retention.
	Archiver *archive.Archiver

	// RetentionWindow is how far back captures are kept before the
	// archiver packs them away. Must be at least 24h when Archiver
	// is set.
	RetentionWindow time.Duration

	// Clock drives the retention ticker. Nil means the real clock.
	Clock clock.Clock

	// Logger receives orchestrator activity. Nil discards it.
	Logger *slog.Logger
}

// Orchestrator is the daemon's control goroutine. Run is the only
// entry point; everything else reacts to what arrives on the server
// notice channel, the capture loop's saved-frame channel, and the
// retention ticker.
type Orchestrator struct {
	server    *ipc.Server
	loop      *capture.Loop
	settings  *settings.Live
	store     settings.Store
	registrar autostart.Registrar
	exec      string
	index     *index.Store
	archiver  *archive.Archiver
	retention time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// New validates the collaborator set and builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Server == nil {
		return nil, errors.New("tracker: Server is required")
	}
	if cfg.Loop == nil {
		return nil, errors.New("tracker: Loop is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("tracker: Settings is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("tracker: Store is required")
	}
	if cfg.Registrar != nil && cfg.Executable == "" {
		return nil, errors.New("tracker: Executable is required with a Registrar")
	}
	if cfg.Archiver != nil && cfg.RetentionWindow < minRetentionWindow {
		return nil, errors.New("tracker: RetentionWindow must be at least 24h")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		server:    cfg.Server,
		loop:      cfg.Loop,
		settings:  cfg.Settings,
		store:     cfg.Store,
		registrar: cfg.Registrar,
		exec:      cfg.Executable,
		index:     cfg.Index,
		archiver:  cfg.Archiver,
		retention: cfg.RetentionWindow,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Run drives the orchestrator until ctx is cancelled or a Shutdown
// command arrives. On the way out it tells every client the tracker
// is exiting and stops the capture loop, so "Run returned" means no
// further captures or events.
func (o *Orchestrator) Run(ctx context.Context) error {
	config := o.settings.Snapshot()
	o.logger.Info("tracker ready",
		"folder", config.Folder,
		"interval_seconds", config.IntervalSeconds,
		"jpeg_quality", config.JPEGQuality,
		"capture_index", o.index != nil,
		"retention", o.archiver != nil,
	)
	if config.AutoStartCapture {
		o.loop.Start()
	}

	var retention <-chan time.Time
	if o.archiver != nil {
		ticker := o.clock.NewTicker(retentionInterval)
		defer ticker.Stop()
		retention = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("stopping on cancellation")
			o.farewell()
			return nil
		case notice := <-o.server.Notices():
			if o.handleNotice(ctx, notice) {
				o.farewell()
				return nil
			}
		case artifact := <-o.loop.Saved():
			o.handleArtifact(ctx, artifact)
		case <-retention:
			o.tickRetention(ctx)
		}
	}
}

// farewell announces the exit and stops the capture loop. The
// TrackerExiting broadcast goes out first so clients hear it before
// their connections start closing.
func (o *Orchestrator) farewell() {
	o.server.Broadcast(protocol.NewEvent(protocol.EventTrackerExiting))
	o.loop.Stop()
}

// handleNotice reacts to one server notice. Returns true when the
// notice asked the tracker to shut down.
func (o *Orchestrator) handleNotice(ctx context.Context, notice ipc.Notice) bool {
	switch notice.Kind {
	case ipc.NoticeConnected:
		// New clients get the current state unasked so they render
		// correctly before sending anything.
		o.sendSnapshot(notice.ClientID, "")
	case ipc.NoticeDisconnected:
		// The server already logged it.
	case ipc.NoticeMessage:
		return o.handleCommand(ctx, notice.ClientID, notice.Message)
	}
	return false
}

// sendSnapshot unicasts the full state, a SettingsSync followed by a
// CaptureState, to one client.
func (o *Orchestrator) sendSnapshot(clientID uint64, correlationID string) {
	if err := o.server.SendTo(clientID, o.settingsEvent(correlationID)); err != nil {
		o.logger.Debug("snapshot send failed", "client", clientID, "error", err)
		return
	}
	if err := o.server.SendTo(clientID, o.captureStateEvent(correlationID)); err != nil {
		o.logger.Debug("snapshot send failed", "client", clientID, "error", err)
	}
}

// settingsEvent builds a SettingsSync carrying the current
// configuration.
func (o *Orchestrator) settingsEvent(correlationID string) protocol.Message {
	config := o.settings.Snapshot()
	options := []protocol.Option{
		protocol.WithPath(config.Folder),
		protocol.WithInterval(config.IntervalSeconds),
		protocol.WithQuality(config.JPEGQuality),
		protocol.WithAutostartFlags(config.StartAtLogin, config.AutoStartCapture),
	}
	if correlationID != "" {
		options = append(options, protocol.WithCorrelationID(correlationID))
	}
	return protocol.NewEvent(protocol.EventSettingsSync, options...)
}

// captureStateEvent builds a CaptureState reflecting the loop's
// current state.
func (o *Orchestrator) captureStateEvent(correlationID string) protocol.Message {
	options := []protocol.Option{
		protocol.WithValue(o.loop.State().String()),
	}
	if correlationID != "" {
		options = append(options, protocol.WithCorrelationID(correlationID))
	}
	return protocol.NewEvent(protocol.EventCaptureState, options...)
}
