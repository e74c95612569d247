// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lapse-project/lapse/lib/atomicfile"
)

// Skip reasons reported in Result.SkipReason.
const (
	SkipDuplicateFrame = "duplicate-frame"
	SkipLowDiskSpace   = "low-disk-space"
)

// Result describes the outcome of writing one frame. When Skipped is
// set, no file was produced and SkipReason says why; the remaining
// fields describe the written file otherwise.
type Result struct {
	Path       string
	SizeBytes  int64
	Hash       string
	Skipped    bool
	SkipReason string
}

// WriterConfig holds the parameters for NewWriter.
type WriterConfig struct {
	// MinFreeBytes skips captures when the target filesystem has less
	// than this much space available. Zero disables the guard.
	MinFreeBytes uint64

	// DedupeFrames skips a frame whose encoded bytes match the
	// previous frame from the same surface, so an idle screen does
	// not fill the disk with identical images.
	DedupeFrames bool

	// Logger receives skip messages. Nil discards them.
	Logger *slog.Logger
}

// Writer encodes frames to JPEG and lands them in per-day folders
// with atomic writes, so anything watching the capture folder only
// ever sees complete images.
type Writer struct {
	minFreeBytes uint64
	dedupe       bool
	logger       *slog.Logger

	mu       sync.Mutex
	lastHash map[Surface]frameHash
}

// NewWriter creates a Writer.
func NewWriter(cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		minFreeBytes: cfg.MinFreeBytes,
		dedupe:       cfg.DedupeFrames,
		logger:       logger,
		lastHash:     make(map[Surface]frameHash),
	}
}

// Write encodes frame at the given JPEG quality and saves it under
// folder's per-day subdirectory as <surface>-<HHMMSS>.jpg. The day
// subdirectory is created as needed.
func (w *Writer) Write(folder string, surface Surface, frame image.Image, quality int, now time.Time) (Result, error) {
	dayDirectory := filepath.Join(folder, now.Format("2006-01-02"))
	if err := os.MkdirAll(dayDirectory, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating capture directory: %w", err)
	}

	if skip, err := w.lowOnSpace(dayDirectory); err != nil {
		return Result{}, err
	} else if skip {
		w.logger.Warn("skipping capture, filesystem low on space",
			"folder", folder,
			"min_free_bytes", w.minFreeBytes,
		)
		return Result{Skipped: true, SkipReason: SkipLowDiskSpace}, nil
	}

	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, frame, &jpeg.Options{Quality: quality}); err != nil {
		return Result{}, fmt.Errorf("encoding %s frame: %w", surface, err)
	}

	hash := hashFrame(encoded.Bytes())
	if w.dedupe && w.isRepeat(surface, hash) {
		w.logger.Debug("skipping capture, frame unchanged", "surface", surface)
		return Result{Skipped: true, SkipReason: SkipDuplicateFrame}, nil
	}

	path := filepath.Join(dayDirectory, fmt.Sprintf("%s-%s.jpg", surface, now.Format("150405")))
	if err := atomicfile.Write(path, encoded.Bytes(), 0o644); err != nil {
		return Result{}, fmt.Errorf("saving %s frame: %w", surface, err)
	}

	w.remember(surface, hash)
	return Result{
		Path:      path,
		SizeBytes: int64(encoded.Len()),
		Hash:      hash.String(),
	}, nil
}

// lowOnSpace reports whether the filesystem holding directory is
// below the configured free-space floor.
func (w *Writer) lowOnSpace(directory string) (bool, error) {
	if w.minFreeBytes == 0 {
		return false, nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(directory, &stat); err != nil {
		return false, fmt.Errorf("statfs %s: %w", directory, err)
	}
	available := stat.Bavail * uint64(stat.Bsize)
	return available < w.minFreeBytes, nil
}

func (w *Writer) isRepeat(surface Surface, hash frameHash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	previous, ok := w.lastHash[surface]
	return ok && previous == hash
}

func (w *Writer) remember(surface Surface, hash frameHash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastHash[surface] = hash
}
