// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/lapse-project/lapse/ipc"
	"github.com/lapse-project/lapse/protocol"
)

const defaultReplyTimeout = 5 * time.Second

var (
	errTrackerClosed = errors.New("the tracker closed the connection")
	errReplyTimeout  = errors.New("timed out waiting for the tracker")
)

// connectFlags is the connection flag pair every networked command
// carries.
type connectFlags struct {
	socket  string
	timeout time.Duration
}

func (f *connectFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.socket, "socket", ipc.DefaultSocketPath(), "tracker control socket")
	flags.DurationVar(&f.timeout, "timeout", defaultReplyTimeout, "wait limit for tracker replies")
}

func (f *connectFlags) dial() (*ipc.Client, error) {
	client, err := ipc.Dial(ipc.ClientConfig{
		SocketPath:  f.socket,
		DialTimeout: f.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to the tracker at %s: %w (is lapse-tracker running?)",
			f.socket, err)
	}
	return client, nil
}

// nextMessage reads one message, honoring cancellation, connection
// loss, and the reply deadline.
func nextMessage(ctx context.Context, client *ipc.Client, deadline <-chan time.Time) (protocol.Message, error) {
	select {
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case <-client.Done():
		if err := client.Err(); err != nil {
			return protocol.Message{}, fmt.Errorf("tracker connection failed: %w", err)
		}
		return protocol.Message{}, errTrackerClosed
	case message := <-client.Messages():
		return message, nil
	case <-deadline:
		return protocol.Message{}, errReplyTimeout
	}
}

// awaitEvent reads messages until one matches the named event (and
// correlation id, when given), skipping everything else.
func awaitEvent(ctx context.Context, client *ipc.Client, timeout time.Duration, event, correlationID string) (protocol.Message, error) {
	deadline := time.After(timeout)
	for {
		message, err := nextMessage(ctx, client, deadline)
		if err != nil {
			return protocol.Message{}, err
		}
		if message.Event != event {
			continue
		}
		if correlationID != "" && message.CorrelationID != correlationID {
			continue
		}
		return message, nil
	}
}

// awaitWelcome consumes the snapshot pair the tracker sends every new
// connection.
func awaitWelcome(ctx context.Context, client *ipc.Client, timeout time.Duration) (settingsSync, captureState protocol.Message, err error) {
	settingsSync, err = awaitEvent(ctx, client, timeout, protocol.EventSettingsSync, "")
	if err != nil {
		return protocol.Message{}, protocol.Message{}, err
	}
	captureState, err = awaitEvent(ctx, client, timeout, protocol.EventCaptureState, "")
	if err != nil {
		return protocol.Message{}, protocol.Message{}, err
	}
	return settingsSync, captureState, nil
}

// applyChange sends one settings command and reports whether the
// tracker accepted it. Acceptance shows up as a SettingsSync carrying
// the command's correlation id; a follow-up state query acts as the
// fence that proves no such broadcast happened.
func applyChange(ctx context.Context, out io.Writer, flags *connectFlags, change protocol.Message) error {
	client, err := flags.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if _, _, err := awaitWelcome(ctx, client, flags.timeout); err != nil {
		return err
	}
	if err := client.Send(change); err != nil {
		return fmt.Errorf("sending %s: %w", change.Command, err)
	}
	fence := protocol.NewCommand(protocol.CommandQueryState)
	if err := client.Send(fence); err != nil {
		return fmt.Errorf("sending %s: %w", fence.Command, err)
	}

	deadline := time.After(flags.timeout)
	for {
		message, err := nextMessage(ctx, client, deadline)
		if err != nil {
			return err
		}
		if message.Event != protocol.EventSettingsSync {
			continue
		}
		switch message.CorrelationID {
		case change.CorrelationID:
			fmt.Fprintf(out, "applied: %s\n", settingsLine(message))
			return nil
		case fence.CorrelationID:
			return errors.New("the tracker rejected the change (run 'lapse status' for current settings)")
		}
	}
}

// statusReport is the assembled tracker state for status output.
type statusReport struct {
	State            string `json:"state"`
	Folder           string `json:"folder"`
	IntervalSeconds  int    `json:"intervalSeconds"`
	JPEGQuality      int    `json:"jpegQuality"`
	StartAtLogin     bool   `json:"startAtLogin"`
	AutoStartCapture bool   `json:"autoStartCapture"`
}

func buildStatus(settingsSync, captureState protocol.Message) statusReport {
	report := statusReport{
		State:  captureState.Value,
		Folder: settingsSync.Path,
	}
	if settingsSync.IntervalSeconds != nil {
		report.IntervalSeconds = *settingsSync.IntervalSeconds
	}
	if settingsSync.JPEGQuality != nil {
		report.JPEGQuality = *settingsSync.JPEGQuality
	}
	if settingsSync.StartWithWindows != nil {
		report.StartAtLogin = *settingsSync.StartWithWindows
	}
	if settingsSync.AutoStartCapture != nil {
		report.AutoStartCapture = *settingsSync.AutoStartCapture
	}
	return report
}

func printStatus(w io.Writer, report statusReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "state:\t%s\n", report.State)
	fmt.Fprintf(tw, "folder:\t%s\n", report.Folder)
	fmt.Fprintf(tw, "interval:\t%ds\n", report.IntervalSeconds)
	fmt.Fprintf(tw, "quality:\t%d\n", report.JPEGQuality)
	fmt.Fprintf(tw, "login start:\t%s\n", onOff(report.StartAtLogin))
	fmt.Fprintf(tw, "auto capture:\t%s\n", onOff(report.AutoStartCapture))
	tw.Flush()
}

// settingsLine renders a SettingsSync as one line, for change
// confirmations and the watch stream.
func settingsLine(message protocol.Message) string {
	var parts []string
	if message.IntervalSeconds != nil {
		parts = append(parts, fmt.Sprintf("interval=%ds", *message.IntervalSeconds))
	}
	if message.JPEGQuality != nil {
		parts = append(parts, fmt.Sprintf("quality=%d", *message.JPEGQuality))
	}
	if message.Path != "" {
		parts = append(parts, "folder="+message.Path)
	}
	if message.StartWithWindows != nil {
		parts = append(parts, "login-start="+onOff(*message.StartWithWindows))
	}
	if message.AutoStartCapture != nil {
		parts = append(parts, "auto-capture="+onOff(*message.AutoStartCapture))
	}
	return strings.Join(parts, " ")
}

// eventLine renders one event for the watch stream.
func eventLine(message protocol.Message) string {
	line := message.Event
	switch message.Event {
	case protocol.EventSettingsSync:
		line = "settings: " + settingsLine(message)
	case protocol.EventCaptureState:
		line = "capture state: " + message.Value
	case protocol.EventCaptureStarted:
		line = "capture started"
	case protocol.EventCaptureStopped:
		line = "capture stopped"
	case protocol.EventScreenshotSaved:
		line = "saved " + message.Path
	case protocol.EventHistorySync:
		line = fmt.Sprintf("history: %d captures", len(message.Artifacts))
	case protocol.EventTrackerExiting:
		line = "tracker exiting"
	}
	if stamp, err := time.Parse(time.RFC3339Nano, message.TimestampUTC); err == nil {
		return stamp.Local().Format("15:04:05") + " " + line
	}
	return line
}

func printArtifacts(w io.Writer, artifacts []protocol.Artifact) {
	if len(artifacts) == 0 {
		fmt.Fprintln(w, "no captures recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\tSURFACE\tSIZE\tPATH\n")
	for _, artifact := range artifacts {
		stamp := artifact.TimestampUTC
		if parsed, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			stamp = parsed.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			stamp, artifact.Surface, formatSize(artifact.SizeBytes), artifact.Path)
	}
	tw.Flush()
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
