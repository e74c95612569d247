// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. Fatal is the
// one place a lapse binary writes raw text to stderr: an
// unrecoverable error surfacing in main(), where the structured
// logger may not be initialized yet. Everything later goes through
// slog.
package process
