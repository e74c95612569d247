// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile writes files so that readers never observe a
// partial write: the data lands in a temporary file in the target
// directory, is fsynced, and is renamed into place. Capture images
// and the settings file both go through this path, because both have
// concurrent readers (gallery tools, file watchers, other lapse
// processes) that must only ever see complete files.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces the file at path with data. The temporary
// file lives next to the target so the final rename stays on one
// filesystem. The parent directory must exist.
func Write(path string, data []byte, mode os.FileMode) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}

	// Write, sync, close, in that order; on any failure remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}

	return Commit(temporaryPath, path)
}

// Commit renames an already-written and synced temporary file into
// place. For payloads too large to pass through Write as one byte
// slice: the caller streams into its own temporary file, syncs and
// closes it, then commits.
func Commit(temporaryPath, path string) error {
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", temporaryPath, err)
	}

	// Sync the directory so the rename survives a power cut between
	// the rename and the OS flushing directory metadata.
	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}

	return nil
}
