// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packs capture day folders that have aged out of the
// retention window into compressed tar archives and removes the
// originals. Archives land in an "archive" subfolder beside the day
// folders and can optionally be encrypted to an age recipient, so a
// stolen backup disk does not leak months of screenshots.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/lapse-project/lapse/lib/atomicfile"
)

// dayFormat matches the capture writer's folder naming.
const dayFormat = "2006-01-02"

// archiveSubfolder is where finished archives land, inside the
// capture base folder. Its name never parses as a day, so the sweep
// skips it.
const archiveSubfolder = "archive"

// Compression identifies the stream compression applied to an
// archive. The value is baked into the archive's file extension.
type Compression uint8

const (
	// CompressionNone writes a plain tar. JPEG frames barely
	// compress, so this mostly costs disk rather than CPU.
	CompressionNone Compression = iota

	// CompressionLZ4 is fast with a modest ratio.
	CompressionLZ4

	// CompressionZstd gets the best ratio of the three and is the
	// default.
	CompressionZstd
)

// String returns the human-readable name of a compression choice.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression choice from its string form.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Config holds the parameters for New.
type Config struct {
	// Compression selects the archive stream compression.
	Compression Compression

	// Recipient is an age X25519 public key (age1... form). When
	// set, every archive is encrypted to it and gains an .age
	// extension. Empty writes plaintext archives.
	Recipient string

	// Logger receives sweep progress and per-day failures. Nil
	// discards them.
	Logger *slog.Logger
}

// Archiver packs day folders. Safe for use from a single goroutine;
// the tracker runs it from the retention tick.
type Archiver struct {
	compression Compression
	recipient   age.Recipient
	logger      *slog.Logger
}

// New creates an Archiver, validating the recipient key up front so a
// typo fails at startup rather than at the first sweep.
func New(cfg Config) (*Archiver, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	archiver := &Archiver{compression: cfg.Compression, logger: logger}
	if cfg.Recipient != "" {
		recipient, err := age.ParseX25519Recipient(cfg.Recipient)
		if err != nil {
			return nil, fmt.Errorf("archive recipient: %w", err)
		}
		archiver.recipient = recipient
	}
	return archiver, nil
}

// Sweep archives every day folder in folder whose day is strictly
// before cutoff's day, then removes the originals. Today's folder is
// never eligible: a day must be over before it is archived. Failures
// archiving one day are logged and the sweep moves on. Returns the
// day names archived.
func (a *Archiver) Sweep(ctx context.Context, folder string, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading capture folder: %w", err)
	}

	cutoffDay := cutoff.Format(dayFormat)

	var archived []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		if !entry.IsDir() {
			continue
		}
		day := entry.Name()
		if _, err := time.Parse(dayFormat, day); err != nil {
			continue
		}
		if day >= cutoffDay {
			continue
		}

		destination, err := a.ArchiveDay(ctx, folder, day)
		if err != nil {
			a.logger.Error("archiving day folder failed", "day", day, "error", err)
			continue
		}
		a.logger.Info("day folder archived", "day", day, "archive", destination)
		archived = append(archived, day)
	}
	return archived, nil
}

// ArchiveDay packs one day folder into an archive file and removes
// the folder on success. Returns the archive path. The archive is
// written to a temporary file and renamed into place, so a crash
// mid-pack leaves the day folder untouched and no half archive.
func (a *Archiver) ArchiveDay(ctx context.Context, folder, day string) (string, error) {
	dayDir := filepath.Join(folder, day)
	archiveDir := filepath.Join(folder, archiveSubfolder)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}

	destination := filepath.Join(archiveDir, day+a.suffix())
	temporaryPath := destination + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}

	if err := a.writeArchive(ctx, file, dayDir, day); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return "", err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("syncing archive: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return "", fmt.Errorf("closing archive: %w", err)
	}
	if err := atomicfile.Commit(temporaryPath, destination); err != nil {
		return "", err
	}

	if err := os.RemoveAll(dayDir); err != nil {
		return "", fmt.Errorf("removing archived day folder: %w", err)
	}
	return destination, nil
}

// suffix returns the archive file extension for the configured
// compression and encryption.
func (a *Archiver) suffix() string {
	suffix := ".tar"
	switch a.compression {
	case CompressionLZ4:
		suffix += ".lz4"
	case CompressionZstd:
		suffix += ".zst"
	}
	if a.recipient != nil {
		suffix += ".age"
	}
	return suffix
}

// writeArchive streams the day folder through tar, the configured
// compressor, and the optional encryptor, into file. Stream order on
// disk is file ← age ← compressor ← tar; teardown closes in the
// reverse of construction so every layer flushes its trailer.
func (a *Archiver) writeArchive(ctx context.Context, file *os.File, dayDir, day string) error {
	var sink io.Writer = file
	var finishers []io.Closer

	if a.recipient != nil {
		encryptor, err := age.Encrypt(file, a.recipient)
		if err != nil {
			return fmt.Errorf("starting encryption: %w", err)
		}
		sink = encryptor
		finishers = append(finishers, encryptor)
	}

	switch a.compression {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(sink)
		if err != nil {
			return fmt.Errorf("starting zstd stream: %w", err)
		}
		sink = encoder
		finishers = append(finishers, encoder)
	case CompressionLZ4:
		encoder := lz4.NewWriter(sink)
		sink = encoder
		finishers = append(finishers, encoder)
	}

	tarWriter := tar.NewWriter(sink)
	if err := a.addDayFiles(ctx, tarWriter, dayDir, day); err != nil {
		return err
	}
	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("finishing tar: %w", err)
	}

	for i := len(finishers) - 1; i >= 0; i-- {
		if err := finishers[i].Close(); err != nil {
			return fmt.Errorf("finishing archive stream: %w", err)
		}
	}
	return nil
}

// addDayFiles writes every regular file in dayDir into the tar,
// named <day>/<file> so extraction recreates the folder layout.
func (a *Archiver) addDayFiles(ctx context.Context, tarWriter *tar.Writer, dayDir, day string) error {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return fmt.Errorf("reading day folder: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", entry.Name(), err)
		}
		header.Name = path.Join(day, entry.Name())
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", entry.Name(), err)
		}
		if err := copyFileInto(tarWriter, filepath.Join(dayDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFileInto(w io.Writer, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer file.Close()

	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("archiving %s: %w", filePath, err)
	}
	return nil
}
