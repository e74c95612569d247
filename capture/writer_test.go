// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package capture_test

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lapse-project/lapse/capture"
)

// writeStamp is a fixed capture time so tests can assert exact day
// folders and file names.
var writeStamp = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// testFrame builds a gradient image. Different seeds produce frames
// that encode to different JPEG bytes.
func testFrame(seed uint8) image.Image {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			frame.Set(x, y, color.RGBA{
				R: uint8(x)*4 + seed,
				G: uint8(y) * 4,
				B: seed,
				A: 255,
			})
		}
	}
	return frame
}

func TestWriterLandsFrameInDayFolder(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{})

	result, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if result.Skipped {
		t.Fatalf("write was skipped: %s", result.SkipReason)
	}

	wantPath := filepath.Join(folder, "2026-03-14", "screen-092653.jpg")
	if result.Path != wantPath {
		t.Fatalf("path = %q, want %q", result.Path, wantPath)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("reading saved frame: %v", err)
	}
	if int64(len(data)) != result.SizeBytes {
		t.Fatalf("SizeBytes = %d, file holds %d bytes", result.SizeBytes, len(data))
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		t.Fatalf("saved file is not a decodable JPEG: %v", err)
	}
	if len(result.Hash) != 64 {
		t.Fatalf("hash %q is not 32 hex-encoded bytes", result.Hash)
	}
}

func TestWriterCreatesMissingFolders(t *testing.T) {
	t.Parallel()
	folder := filepath.Join(t.TempDir(), "shots", "laptop")
	writer := capture.NewWriter(capture.WriterConfig{})

	result, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("saved frame missing: %v", err)
	}
}

func TestWriterSeparatesDays(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{})

	first, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	second, err := writer.Write(folder, capture.SurfaceScreen, testFrame(1), 80, writeStamp.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	if got := filepath.Dir(first.Path); got != filepath.Join(folder, "2026-03-14") {
		t.Fatalf("first frame landed in %q", got)
	}
	if got := filepath.Dir(second.Path); got != filepath.Join(folder, "2026-03-15") {
		t.Fatalf("second frame landed in %q", got)
	}
}

func TestWriterSkipsConsecutiveDuplicates(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{DedupeFrames: true})

	first, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if first.Skipped {
		t.Fatal("first frame was skipped")
	}

	repeat, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp.Add(time.Second))
	if err != nil {
		t.Fatalf("repeat Write failed: %v", err)
	}
	if !repeat.Skipped || repeat.SkipReason != capture.SkipDuplicateFrame {
		t.Fatalf("repeat frame not skipped as duplicate: %+v", repeat)
	}
	skippedPath := filepath.Join(folder, "2026-03-14", "screen-092654.jpg")
	if _, err := os.Stat(skippedPath); !os.IsNotExist(err) {
		t.Fatalf("skipped frame left a file at %s", skippedPath)
	}

	changed, err := writer.Write(folder, capture.SurfaceScreen, testFrame(7), 80, writeStamp.Add(2*time.Second))
	if err != nil {
		t.Fatalf("changed Write failed: %v", err)
	}
	if changed.Skipped {
		t.Fatal("changed frame was skipped")
	}

	// Only consecutive repeats count. The original frame coming back
	// after a different one is a real change again.
	back, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp.Add(3*time.Second))
	if err != nil {
		t.Fatalf("returning Write failed: %v", err)
	}
	if back.Skipped {
		t.Fatal("frame returning after a change was skipped")
	}
}

func TestWriterTracksSurfacesIndependently(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{DedupeFrames: true})

	first, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("screen Write failed: %v", err)
	}
	if first.Skipped {
		t.Fatal("screen frame was skipped")
	}

	other, err := writer.Write(folder, capture.Surface("HDMI-1"), testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("HDMI-1 Write failed: %v", err)
	}
	if other.Skipped {
		t.Fatal("same frame on a different surface was treated as a duplicate")
	}
}

func TestWriterSkipsWhenDiskLow(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{MinFreeBytes: math.MaxUint64})

	result, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !result.Skipped || result.SkipReason != capture.SkipLowDiskSpace {
		t.Fatalf("write not skipped for low disk space: %+v", result)
	}

	entries, err := os.ReadDir(filepath.Join(folder, "2026-03-14"))
	if err != nil {
		t.Fatalf("reading day folder: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("skipped write left %d files behind", len(entries))
	}
}

func TestWriterQualityChangesEncoding(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{})

	rough, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 10, writeStamp)
	if err != nil {
		t.Fatalf("quality 10 Write failed: %v", err)
	}
	fine, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 95, writeStamp.Add(time.Second))
	if err != nil {
		t.Fatalf("quality 95 Write failed: %v", err)
	}

	if fine.SizeBytes <= rough.SizeBytes {
		t.Fatalf("quality 95 frame (%d bytes) not larger than quality 10 frame (%d bytes)",
			fine.SizeBytes, rough.SizeBytes)
	}
}

func TestWriterLeavesNoTemporaryFiles(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{})

	for i := 0; i < 3; i++ {
		stamp := writeStamp.Add(time.Duration(i) * time.Second)
		if _, err := writer.Write(folder, capture.SurfaceScreen, testFrame(uint8(i)), 80, stamp); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(folder, "2026-03-14"))
	if err != nil {
		t.Fatalf("reading day folder: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("day folder holds %d entries, want 3", len(entries))
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temporary file %s left behind", entry.Name())
		}
	}
}

func TestWriterHashIsStablePerFrame(t *testing.T) {
	t.Parallel()
	folder := t.TempDir()
	writer := capture.NewWriter(capture.WriterConfig{})

	first, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp)
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	again, err := writer.Write(folder, capture.SurfaceScreen, testFrame(0), 80, writeStamp.Add(time.Second))
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	different, err := writer.Write(folder, capture.SurfaceScreen, testFrame(9), 80, writeStamp.Add(2*time.Second))
	if err != nil {
		t.Fatalf("third Write failed: %v", err)
	}

	if first.Hash != again.Hash {
		t.Fatalf("identical frames hashed differently: %s vs %s", first.Hash, again.Hash)
	}
	if first.Hash == different.Hash {
		t.Fatal("different frames produced the same hash")
	}
}

func TestWriterRejectsUnusableFolder(t *testing.T) {
	t.Parallel()
	blocking := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(blocking, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("planting blocking file: %v", err)
	}
	writer := capture.NewWriter(capture.WriterConfig{})

	if _, err := writer.Write(blocking, capture.SurfaceScreen, testFrame(0), 80, writeStamp); err == nil {
		t.Fatal("Write into a file path succeeded")
	}
}
