// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lapse-project/lapse/archive"
	"github.com/lapse-project/lapse/autostart"
	"github.com/lapse-project/lapse/capture"
	"github.com/lapse-project/lapse/index"
	"github.com/lapse-project/lapse/ipc"
	"github.com/lapse-project/lapse/lib/clock"
	"github.com/lapse-project/lapse/lib/process"
	"github.com/lapse-project/lapse/lib/version"
	"github.com/lapse-project/lapse/protocol"
	"github.com/lapse-project/lapse/settings"
	"github.com/lapse-project/lapse/tracker"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		showVersion  bool
		socketPath   string
		settingsPath string
		logLevel     string
		captureTool  string
		surfaceList  string
		minFreeBytes uint64
		dedupe       bool
		indexPath    string
		retention    time.Duration
		compression  string
		recipient    string
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&socketPath, "socket", ipc.DefaultSocketPath(), "control socket path")
	flag.StringVar(&settingsPath, "settings", settings.DefaultPath(), "settings file path")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&captureTool, "capture-tool", "", "screenshot tool to use (grim or maim; empty probes)")
	flag.StringVar(&surfaceList, "surfaces", "", "comma-separated outputs to capture (empty captures the whole screen)")
	flag.Uint64Var(&minFreeBytes, "min-free-bytes", 512<<20, "skip captures when the capture filesystem has less free space than this (0 disables)")
	flag.BoolVar(&dedupe, "dedupe", true, "skip frames identical to the previous capture of the same surface")
	flag.StringVar(&indexPath, "index", "", "capture index database path (empty disables history queries)")
	flag.DurationVar(&retention, "retention", 0, "archive day folders older than this window (0 disables, minimum 24h)")
	flag.StringVar(&compression, "archive-compression", "zstd", "archive compression (none, lz4, zstd)")
	flag.StringVar(&recipient, "archive-recipient", "", "age recipient public key for archive encryption")
	flag.Parse()

	if showVersion {
		version.Print("lapse-tracker")
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("parsing -log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := settings.NewFileStore(settingsPath)
	config, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	live := settings.NewLive(config)
	logger.Info("settings loaded",
		"path", settingsPath,
		"folder", config.Folder,
		"interval_seconds", config.IntervalSeconds,
		"jpeg_quality", config.JPEGQuality,
	)

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	registrar := autostart.NewXDG()
	// The desktop entry can drift from the settings file (deleted by
	// hand, or the binary moved). Make it match the persisted flag.
	if err := registrar.Set(tracker.AutostartName, executable, config.StartAtLogin); err != nil {
		logger.Error("reconciling login registration failed", "error", err)
	}

	var surfaces []capture.Surface
	if surfaceList != "" {
		for _, name := range strings.Split(surfaceList, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				surfaces = append(surfaces, capture.Surface(name))
			}
		}
	}
	source, err := capture.NewCommandSource(capture.CommandSourceConfig{
		Tool:     captureTool,
		Surfaces: surfaces,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("resolving capture source: %w", err)
	}

	loop := capture.NewLoop(capture.LoopConfig{
		Source: source,
		Writer: capture.NewWriter(capture.WriterConfig{
			MinFreeBytes: minFreeBytes,
			DedupeFrames: dedupe,
			Logger:       logger,
		}),
		Settings: live,
		Clock:    clock.Real(),
		Logger:   logger,
	})

	var catalog *index.Store
	if indexPath != "" {
		catalog, err = index.Open(index.Config{
			Path:   indexPath,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := catalog.Close(); err != nil {
				logger.Error("closing capture index failed", "error", err)
			}
		}()
		stats, err := catalog.Stats(ctx)
		if err != nil {
			return fmt.Errorf("reading capture index stats: %w", err)
		}
		logger.Info("capture index open",
			"path", indexPath,
			"captures", stats.Captures,
			"days", stats.Days,
			"content_bytes", stats.ContentBytes,
			"database_bytes", stats.DatabaseBytes,
		)
	}

	var archiver *archive.Archiver
	if retention > 0 {
		parsed, err := archive.ParseCompression(compression)
		if err != nil {
			return fmt.Errorf("parsing -archive-compression: %w", err)
		}
		archiver, err = archive.New(archive.Config{
			Compression: parsed,
			Recipient:   recipient,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		logger.Info("retention enabled",
			"window", retention,
			"compression", parsed,
			"encrypted", recipient != "",
		)
	}

	server := ipc.NewServer(ipc.ServerConfig{
		SocketPath: socketPath,
		Logger:     logger,
	})

	orchestrator, err := tracker.New(tracker.Config{
		Server:          server,
		Loop:            loop,
		Settings:        live,
		Store:           store,
		Registrar:       registrar,
		Executable:      executable,
		Index:           catalog,
		Archiver:        archiver,
		RetentionWindow: retention,
		Clock:           clock.Real(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	// The server gets its own cancellation so a Shutdown command,
	// which returns from Run without touching ctx, still tears it
	// down.
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(serveCtx)
	}()
	select {
	case <-server.Ready():
	case err := <-serveDone:
		return fmt.Errorf("control socket: %w", err)
	}
	logger.Info("lapse-tracker running",
		"socket", socketPath,
		"version", version.Short(),
		"protocol", protocol.Version,
	)

	runErr := orchestrator.Run(ctx)

	cancelServe()
	if err := <-serveDone; err != nil {
		logger.Error("control server error", "error", err)
	}
	return runErr
}
