// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for lapse packages.
//
// [SocketDir] creates a short-pathed temporary directory in /tmp for
// Unix domain sockets. Socket paths are capped at 108 bytes (sun_path
// in sockaddr_un), and t.TempDir() can nest deeply enough to blow that
// limit, so socket tests get their own directory. It is removed when
// the test completes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap channel
// operations in a select with a wall-clock timeout so a broken test
// fails instead of hanging. They are the one place the test suite
// reaches for real time; everything else drives a clock.FakeClock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
