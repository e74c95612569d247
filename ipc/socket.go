// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// DefaultSocketPath returns the per-user control socket for the
// tracker daemon: $XDG_RUNTIME_DIR/lapse/tracker.sock when the
// runtime directory is set, otherwise a uid-scoped directory under
// the system temp dir.
func DefaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "lapse", "tracker.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("lapse-%d", os.Getuid()), "tracker.sock")
}

// listenSocket prepares the socket directory, replaces any stale
// socket file, and listens. The directory and socket are private to
// the user: the control protocol can start and stop capture and
// reveals capture paths, so nothing about it is other-user business.
func listenSocket(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket %s: %w", path, err)
	}
	return listener, nil
}
