// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture produces the tracker's screenshots: a Source grabs
// frames of the user's displays, a Writer encodes and lands them in
// per-day folders, and the Loop drives both on the configured
// interval until stopped.
package capture

import (
	"context"
	"image"
)

// Surface identifies one capturable display surface, such as a
// monitor output name or the composed virtual screen.
type Surface string

// SurfaceScreen is the composed virtual screen covering every
// monitor.
const SurfaceScreen Surface = "screen"

// Source produces still frames of display surfaces. Implementations
// must be safe for use from the single capture-loop goroutine;
// nothing else calls them.
type Source interface {
	// Surfaces enumerates the surfaces to capture this cycle. The
	// result may change between cycles as displays come and go.
	Surfaces(ctx context.Context) ([]Surface, error)

	// Grab captures one frame of the given surface.
	Grab(ctx context.Context, surface Surface) (image.Image, error)
}
