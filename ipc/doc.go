// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc carries the tracker's control protocol over Unix domain
// sockets: a many-client [Server] embedded in the tracker daemon and
// a [Client] for anything that wants to talk to it.
//
// The server accepts any number of clients, tags each with a
// monotonically increasing id that is never reused, and surfaces
// everything that happens (connects, disconnects, decoded messages)
// as [Notice] values on one channel. The daemon's orchestrator owns
// the consuming end; the server itself attaches no meaning to message
// contents.
//
// Delivery is intentionally loose where the protocol allows it:
// Broadcast is best effort per client, a slow or dead client loses
// its connection rather than stalling the rest, and a malformed
// payload is dropped while the connection that sent it stays up. Only
// framing-level damage (a truncated or oversized frame) costs a
// client its connection.
package ipc
