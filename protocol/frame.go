// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength bounds the payload size of a single frame. Control
// messages are tiny; anything near this limit is a corrupt or hostile
// peer, and rejecting it keeps a bad length prefix from pinning an
// arbitrarily large allocation.
const MaxFrameLength = 32 * 1024 * 1024

// frameHeaderLength is the fixed size of the length prefix.
const frameHeaderLength = 4

// ErrFrameTooLarge reports a frame whose declared or actual payload
// exceeds MaxFrameLength.
var ErrFrameTooLarge = errors.New("frame exceeds maximum length")

// WriteFrame writes one frame: a 4-byte little-endian payload length
// followed by the payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return fmt.Errorf("writing %d byte frame: %w", len(payload), ErrFrameTooLarge)
	}
	var header [frameHeaderLength]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload.
//
// A stream that ends before a complete header arrives is a clean
// close, reported as io.EOF. A declared length of zero or less is
// treated the same way: the peer has stopped speaking the protocol
// and there is no message to return. A stream that ends after the
// header but before the full payload is a truncation and is reported
// as an error distinct from io.EOF, so callers can tell a clean
// disconnect from a torn write.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := int32(binary.LittleEndian.Uint32(header[:]))
	if length <= 0 {
		return nil, io.EOF
	}
	if length > MaxFrameLength {
		return nil, fmt.Errorf("reading %d byte frame: %w", length, ErrFrameTooLarge)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("frame truncated after %d byte header: %w", frameHeaderLength, io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteMessage encodes a message and writes it as one frame.
func WriteMessage(w io.Writer, message Message) error {
	payload, err := Encode(message)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame and decodes its payload. Framing errors
// (including io.EOF for a clean close) come back as the error from
// ReadFrame; payload decode errors come back from Decode and leave
// the stream positioned at the next frame.
func ReadMessage(r io.Reader) (Message, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(payload)
}
