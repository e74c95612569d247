// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the control-channel wire format shared by
// the tracker daemon and its clients: a typed command/event envelope
// serialized as UTF-8 JSON, carried in length-prefixed frames over a
// local byte stream.
//
// The package is organized around the two protocol layers:
//
//   - message.go: the Message envelope, command/event names, and
//     construction helpers that stamp correlation ids and timestamps
//   - frame.go: length-prefixed framing over an io.Reader/io.Writer
//
// Decoders ignore unknown fields, so adding optional fields to
// Message does not break older peers.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Commands understood by the tracker. A client sends a command; the
// tracker answers with one or more events. Unrecognized commands are
// logged and ignored by the tracker, which is what makes adding new
// commands safe across protocol versions.
const (
	CommandQueryState          = "QueryState"
	CommandStartCapture        = "StartCapture"
	CommandStopCapture         = "StopCapture"
	CommandSetInterval         = "SetInterval"
	CommandSetQuality          = "SetQuality"
	CommandSetFolder           = "SetFolder"
	CommandSetStartWithWindows = "SetStartWithWindows"
	CommandSetAutoStartCapture = "SetAutoStartCapture"
	CommandQueryHistory        = "QueryHistory"
	CommandShutdown            = "Shutdown"
)

// Events emitted by the tracker. SettingsSync, CaptureStarted,
// CaptureStopped, CaptureState, ScreenshotSaved, and TrackerExiting
// are broadcast to every connected client; SettingsSync and
// CaptureState are additionally unicast to a client right after it
// connects, and HistorySync is always unicast to the requester.
const (
	EventSettingsSync    = "SettingsSync"
	EventCaptureStarted  = "CaptureStarted"
	EventCaptureStopped  = "CaptureStopped"
	EventCaptureState    = "CaptureState"
	EventScreenshotSaved = "ScreenshotSaved"
	EventHistorySync     = "HistorySync"
	EventTrackerExiting  = "TrackerExiting"
)

// Version is the protocol version stamped on every message that does
// not carry one explicitly.
const Version = "1.0"

// Message is one unit of the control protocol: either a command (a
// client instructing the tracker) or an event (the tracker announcing
// a state change). At most one of Command and Event is set. Messages
// are immutable once constructed: build them with NewCommand or
// NewEvent rather than mutating fields after the fact.
type Message struct {
	// Command is the command name, empty for events.
	Command string `json:"command,omitempty"`

	// Event is the event name, empty for commands.
	Event string `json:"event,omitempty"`

	// Value carries a command argument or a scalar event payload as a
	// string (for example "45" for SetInterval, "Running" for
	// CaptureState).
	Value string `json:"value,omitempty"`

	// Path carries a filesystem path where the message concerns one
	// (SetFolder, ScreenshotSaved, and the base folder in
	// SettingsSync).
	Path string `json:"path,omitempty"`

	// IntervalSeconds and JPEGQuality are the native settings fields
	// carried by SettingsSync. They replace the historical
	// "interval;quality" compound string, which is no longer emitted.
	IntervalSeconds *int `json:"intervalSeconds,omitempty"`
	JPEGQuality     *int `json:"jpegQuality,omitempty"`

	// StartWithWindows and AutoStartCapture are the autostart flags
	// carried by SettingsSync. The field names are wire-protocol
	// constants retained for compatibility with existing clients; on
	// this platform StartWithWindows means "launch the tracker at
	// login".
	StartWithWindows *bool `json:"startWithWindows,omitempty"`
	AutoStartCapture *bool `json:"autoStartCapture,omitempty"`

	// Artifacts is the record list carried by HistorySync.
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Version is the protocol version, default "1.0".
	Version string `json:"version"`

	// CorrelationID is an opaque token letting a sender associate a
	// later event with the command that caused it. Auto-generated
	// when the caller does not supply one.
	CorrelationID string `json:"correlationId"`

	// TimestampUTC is the construction time in RFC 3339 UTC form.
	TimestampUTC string `json:"timestampUtc"`
}

// Artifact describes one saved capture in a HistorySync event.
type Artifact struct {
	// Path is the absolute path of the saved image.
	Path string `json:"path"`

	// Surface identifies the capture surface the image came from.
	Surface string `json:"surface"`

	// TimestampUTC is the save time in RFC 3339 UTC form.
	TimestampUTC string `json:"timestampUtc"`

	// SizeBytes is the encoded image size on disk.
	SizeBytes int64 `json:"sizeBytes"`
}

// Option customizes a message built by NewCommand or NewEvent.
type Option func(*Message)

// WithValue sets the string value argument.
func WithValue(value string) Option {
	return func(m *Message) { m.Value = value }
}

// WithPath sets the path argument.
func WithPath(path string) Option {
	return func(m *Message) { m.Path = path }
}

// WithCorrelationID sets an explicit correlation id instead of the
// generated one. Use this when emitting an event caused by a specific
// command so the sender can match the two.
func WithCorrelationID(id string) Option {
	return func(m *Message) { m.CorrelationID = id }
}

// WithInterval sets the native interval field (seconds).
func WithInterval(seconds int) Option {
	return func(m *Message) { m.IntervalSeconds = &seconds }
}

// WithQuality sets the native JPEG quality field (1-100).
func WithQuality(quality int) Option {
	return func(m *Message) { m.JPEGQuality = &quality }
}

// WithAutostartFlags sets both autostart flags.
func WithAutostartFlags(startWithWindows, autoStartCapture bool) Option {
	return func(m *Message) {
		m.StartWithWindows = &startWithWindows
		m.AutoStartCapture = &autoStartCapture
	}
}

// WithArtifacts sets the artifact records for a HistorySync event.
func WithArtifacts(artifacts []Artifact) Option {
	return func(m *Message) { m.Artifacts = artifacts }
}

// WithTimestamp sets an explicit timestamp instead of the current
// time. Primarily for tests that need deterministic messages.
func WithTimestamp(t time.Time) Option {
	return func(m *Message) { m.TimestampUTC = t.UTC().Format(time.RFC3339Nano) }
}

// NewCommand builds a command message. A fresh correlation id and the
// current UTC timestamp are stamped unless overridden by options.
func NewCommand(name string, options ...Option) Message {
	return build(Message{Command: name}, options)
}

// NewEvent builds an event message. A fresh correlation id and the
// current UTC timestamp are stamped unless overridden by options.
func NewEvent(name string, options ...Option) Message {
	return build(Message{Event: name}, options)
}

func build(message Message, options []Option) Message {
	message.Version = Version
	for _, option := range options {
		option(&message)
	}
	if message.CorrelationID == "" {
		message.CorrelationID = uuid.NewString()
	}
	if message.TimestampUTC == "" {
		message.TimestampUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return message
}

// ErrEmptyPayload is returned by Decode for an empty payload. Like any
// Decode error it means "no message here": the caller logs and skips,
// it never tears down the connection.
var ErrEmptyPayload = errors.New("empty message payload")

// Encode serializes a message to its JSON wire form.
func Encode(message Message) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

// Decode parses a JSON payload into a Message. An empty or malformed
// payload returns an error for the caller to log and skip; decoding
// problems are never fatal to the connection that carried them.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return Message{}, ErrEmptyPayload
	}
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return message, nil
}
