// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrNotConnected reports a send addressed to a client id that is not
// currently connected.
var ErrNotConnected = errors.New("client not connected")

// isExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. A peer that closes without half-close shows up as ECONNRESET
// or EPIPE on the surviving side, so all four count as quiet
// disconnects rather than faults worth logging.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
