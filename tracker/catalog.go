// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"strconv"
	"time"

	"github.com/lapse-project/lapse/capture"
	"github.com/lapse-project/lapse/index"
	"github.com/lapse-project/lapse/protocol"
)

// History query limits. A query without a value gets
// defaultHistoryLimit records; nothing can ask for more than
// maxHistoryLimit in one response.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleArtifact announces one saved frame to every client and, when
// the index is enabled, catalogs it. Index trouble is contained here:
// capture and connections keep going.
func (o *Orchestrator) handleArtifact(ctx context.Context, artifact capture.Artifact) {
	o.server.Broadcast(protocol.NewEvent(protocol.EventScreenshotSaved,
		protocol.WithPath(artifact.Path)))
	if o.index == nil {
		return
	}
	entry := index.Entry{
		Path:       artifact.Path,
		Surface:    string(artifact.Surface),
		CapturedAt: artifact.Time,
		SizeBytes:  artifact.SizeBytes,
		FrameHash:  artifact.Hash,
	}
	if err := o.index.Record(ctx, entry); err != nil {
		o.logger.Error("recording capture failed",
			"path", artifact.Path,
			"error", err,
		)
	}
}

// sendHistory answers a QueryHistory with the most recent catalog
// entries, unicast to the requester. Without an index the command is
// ignored like any other the tracker does not serve.
func (o *Orchestrator) sendHistory(ctx context.Context, clientID uint64, message protocol.Message) {
	if o.index == nil {
		o.logger.Debug("ignoring history query, no capture index", "client", clientID)
		return
	}
	limit := defaultHistoryLimit
	if message.Value != "" {
		parsed, err := strconv.Atoi(message.Value)
		if err != nil || parsed <= 0 {
			o.logger.Warn("rejecting history query", "value", message.Value)
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := o.index.Recent(ctx, index.Filter{Limit: limit})
	if err != nil {
		o.logger.Error("querying capture index failed", "error", err)
		return
	}
	artifacts := make([]protocol.Artifact, 0, len(entries))
	for _, entry := range entries {
		artifacts = append(artifacts, protocol.Artifact{
			Path:         entry.Path,
			Surface:      entry.Surface,
			TimestampUTC: entry.CapturedAt.UTC().Format(time.RFC3339Nano),
			SizeBytes:    entry.SizeBytes,
		})
	}
	event := protocol.NewEvent(protocol.EventHistorySync,
		protocol.WithArtifacts(artifacts),
		protocol.WithCorrelationID(message.CorrelationID))
	if err := o.server.SendTo(clientID, event); err != nil {
		o.logger.Debug("history send failed", "client", clientID, "error", err)
	}
}

// tickRetention archives day folders older than the retention window
// and drops their index rows. The sweep works on whole elapsed days,
// so the folder currently being written is never touched.
func (o *Orchestrator) tickRetention(ctx context.Context) {
	cutoff := o.clock.Now().Add(-o.retention)
	folder := o.settings.Snapshot().Folder
	archived, err := o.archiver.Sweep(ctx, folder, cutoff)
	if err != nil {
		o.logger.Error("retention sweep failed", "error", err)
		return
	}
	if len(archived) == 0 || o.index == nil {
		return
	}
	if _, err := o.index.PruneDays(ctx, archived); err != nil {
		o.logger.Error("pruning capture index failed", "error", err)
	}
}
