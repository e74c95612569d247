// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"os"
	"strconv"

	"github.com/lapse-project/lapse/protocol"
	"github.com/lapse-project/lapse/settings"
)

// handleCommand dispatches one inbound command. Unknown or malformed
// commands are logged and dropped without any state change or
// broadcast, which is what keeps old trackers compatible with newer
// clients. Returns true for Shutdown.
func (o *Orchestrator) handleCommand(ctx context.Context, clientID uint64, message protocol.Message) bool {
	if message.Command == "" {
		o.logger.Warn("ignoring message without a command", "client", clientID)
		return false
	}
	switch message.Command {
	case protocol.CommandQueryState:
		o.sendSnapshot(clientID, message.CorrelationID)
	case protocol.CommandStartCapture:
		o.startCapture(message)
	case protocol.CommandStopCapture:
		o.stopCapture(message)
	case protocol.CommandSetInterval:
		o.setInterval(message)
	case protocol.CommandSetQuality:
		o.setQuality(message)
	case protocol.CommandSetFolder:
		o.setFolder(message)
	case protocol.CommandSetStartWithWindows:
		o.setStartAtLogin(message)
	case protocol.CommandSetAutoStartCapture:
		o.setAutoStartCapture(message)
	case protocol.CommandQueryHistory:
		o.sendHistory(ctx, clientID, message)
	case protocol.CommandShutdown:
		o.logger.Info("shutdown requested", "client", clientID)
		return true
	default:
		o.logger.Warn("ignoring unknown command",
			"command", message.Command,
			"client", clientID,
		)
	}
	return false
}

// startCapture starts the loop and, on an actual transition,
// announces it. A StartCapture while already running changes nothing
// and stays silent.
func (o *Orchestrator) startCapture(message protocol.Message) {
	if !o.loop.Start() {
		o.logger.Debug("capture already running")
		return
	}
	o.server.Broadcast(protocol.NewEvent(protocol.EventCaptureStarted,
		protocol.WithCorrelationID(message.CorrelationID)))
	o.server.Broadcast(o.captureStateEvent(message.CorrelationID))
}

// stopCapture is the mirror of startCapture.
func (o *Orchestrator) stopCapture(message protocol.Message) {
	if !o.loop.Stop() {
		o.logger.Debug("capture already stopped")
		return
	}
	o.server.Broadcast(protocol.NewEvent(protocol.EventCaptureStopped,
		protocol.WithCorrelationID(message.CorrelationID)))
	o.server.Broadcast(o.captureStateEvent(message.CorrelationID))
}

func (o *Orchestrator) setInterval(message protocol.Message) {
	seconds, err := strconv.Atoi(message.Value)
	if err != nil || seconds <= 0 {
		o.logger.Warn("rejecting interval change", "value", message.Value)
		return
	}
	applied := o.applySettings(func(config *settings.Config) {
		config.IntervalSeconds = seconds
	})
	if applied {
		o.broadcastSettings(message.CorrelationID)
	}
}

func (o *Orchestrator) setQuality(message protocol.Message) {
	quality, err := strconv.Atoi(message.Value)
	if err != nil || quality < 1 || quality > 100 {
		o.logger.Warn("rejecting quality change", "value", message.Value)
		return
	}
	applied := o.applySettings(func(config *settings.Config) {
		config.JPEGQuality = quality
	})
	if applied {
		o.broadcastSettings(message.CorrelationID)
	}
}

// setFolder validates by actually creating the directory. A path the
// tracker cannot create is a rejected change, not a fault.
func (o *Orchestrator) setFolder(message protocol.Message) {
	folder := message.Path
	if folder == "" {
		o.logger.Warn("rejecting folder change, empty path")
		return
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		o.logger.Warn("rejecting folder change", "folder", folder, "error", err)
		return
	}
	applied := o.applySettings(func(config *settings.Config) {
		config.Folder = folder
	})
	if applied {
		o.broadcastSettings(message.CorrelationID)
	}
}

func (o *Orchestrator) setStartAtLogin(message protocol.Message) {
	enabled, ok := parseFlag(message.Value)
	if !ok {
		o.logger.Warn("rejecting login-start change", "value", message.Value)
		return
	}
	applied := o.applySettings(func(config *settings.Config) {
		config.StartAtLogin = enabled
	})
	if applied {
		o.applyRegistrar(enabled)
		o.broadcastSettings(message.CorrelationID)
	}
}

func (o *Orchestrator) setAutoStartCapture(message protocol.Message) {
	enabled, ok := parseFlag(message.Value)
	if !ok {
		o.logger.Warn("rejecting auto-capture change", "value", message.Value)
		return
	}
	applied := o.applySettings(func(config *settings.Config) {
		config.AutoStartCapture = enabled
	})
	if applied {
		o.broadcastSettings(message.CorrelationID)
	}
}

// parseFlag accepts exactly "true" or "false". Anything looser would
// let a typo silently flip a persisted setting.
func parseFlag(value string) (enabled, ok bool) {
	switch value {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// applySettings runs one validated mutation of the live
// configuration and persists the result. The capture loop picks the
// change up on its next cycle through the shared Live holder. A
// persist failure is logged but does not undo the mutation: clients
// follow the live state, and the file catches up on the next save
// that succeeds.
func (o *Orchestrator) applySettings(mutate func(*settings.Config)) bool {
	config := o.settings.Snapshot()
	mutate(&config)
	if err := config.Validate(); err != nil {
		o.logger.Warn("rejecting settings change", "error", err)
		return false
	}
	o.settings.Replace(config)
	if err := o.store.Save(config); err != nil {
		o.logger.Error("persisting settings failed", "error", err)
	}
	return true
}

// broadcastSettings tells every client, the sender included, what the
// configuration now is. Senders apply the broadcast like anyone else
// instead of special-casing their own changes.
func (o *Orchestrator) broadcastSettings(correlationID string) {
	o.server.Broadcast(o.settingsEvent(correlationID))
}

// applyRegistrar pushes the login-start flag into the autostart
// registrar. Best effort: a failure here never rejects the settings
// change that asked for it.
func (o *Orchestrator) applyRegistrar(enabled bool) {
	if o.registrar == nil {
		return
	}
	if err := o.registrar.Set(AutostartName, o.exec, enabled); err != nil {
		o.logger.Error("updating login registration failed",
			"enabled", enabled,
			"error", err,
		)
	}
}
