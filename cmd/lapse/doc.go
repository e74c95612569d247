// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// lapse is the command line client for the lapse-tracker daemon.
//
// It connects to the tracker's control socket and drives it over the
// control protocol:
//
//	lapse status                 show capture state and settings
//	lapse start                  start periodic capture
//	lapse stop                   stop periodic capture
//	lapse set interval 45        change a setting
//	lapse history --limit 20     list recent captures
//	lapse watch                  stream events until interrupted
//	lapse shutdown               ask the tracker to exit
//
// Every networked command accepts --socket to address a tracker on a
// non-default socket and --timeout to bound how long to wait for a
// reply. Run 'lapse --help' for the full command list.
package main
