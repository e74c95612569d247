// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lapse-project/lapse/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCommand().Execute(ctx, os.Args[1:])
	if errors.Is(err, context.Canceled) {
		// Interrupted by the user. Nothing left to report.
		return nil
	}
	return err
}
