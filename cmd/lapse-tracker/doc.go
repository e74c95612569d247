// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// lapse-tracker is the capture daemon. It takes periodic screenshots
// of the user's displays, lands them in per-day folders, and serves
// the control protocol on a per-user Unix socket so any number of
// frontends (the lapse CLI, a tray applet, a timeline browser) can
// watch and steer it.
//
// Optional features, all off by default:
//
//   - a SQLite catalog of saved captures, enabling history queries
//     over the control socket (-index)
//   - retention, archiving day folders older than a window into tar
//     archives, optionally compressed and age-encrypted (-retention,
//     -archive-compression, -archive-recipient)
//
// The daemon exits on SIGINT, SIGTERM, or a Shutdown command from
// any connected client.
package main
