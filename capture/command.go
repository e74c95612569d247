// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// screenshotTool describes one supported external screenshot program
// and how to ask it for a PNG on stdout.
type screenshotTool struct {
	name string

	// args builds the argument list for grabbing one surface. The
	// SurfaceScreen surface means the whole virtual screen.
	args func(surface Surface) []string

	// perSurface reports whether the tool can target an individual
	// output. Tools that cannot only ever see SurfaceScreen.
	perSurface bool
}

// supportedTools lists the probe order: the Wayland grabber first,
// then the X11 one.
var supportedTools = []screenshotTool{
	{
		name: "grim",
		args: func(surface Surface) []string {
			if surface == SurfaceScreen {
				return []string{"-t", "png", "-"}
			}
			return []string{"-t", "png", "-o", string(surface), "-"}
		},
		perSurface: true,
	},
	{
		name: "maim",
		args: func(surface Surface) []string {
			return []string{"--format", "png", "/dev/stdout"}
		},
	},
}

// CommandSource grabs frames by running an external screenshot tool
// and decoding the PNG it writes to stdout. It is the production
// Source on Linux, where the compositor owns the pixels and the
// established way to read them back is grim (Wayland) or maim (X11).
type CommandSource struct {
	tool     screenshotTool
	binary   string
	surfaces []Surface
	logger   *slog.Logger
}

// CommandSourceConfig holds the parameters for NewCommandSource.
type CommandSourceConfig struct {
	// Tool forces a specific screenshot program ("grim" or "maim").
	// Empty probes for the first one present on PATH.
	Tool string

	// Surfaces lists the outputs to capture each cycle, e.g. eDP-1.
	// Empty captures the whole virtual screen as one frame.
	Surfaces []Surface

	// Logger receives probe results. Nil discards them.
	Logger *slog.Logger
}

// NewCommandSource resolves a screenshot tool and returns a Source
// using it. Fails when no supported tool is installed.
func NewCommandSource(cfg CommandSourceConfig) (*CommandSource, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var probed []string
	for _, tool := range supportedTools {
		if cfg.Tool != "" && cfg.Tool != tool.name {
			continue
		}
		binary, err := exec.LookPath(tool.name)
		if err != nil {
			probed = append(probed, tool.name)
			continue
		}
		if err := validateBinary(binary); err != nil {
			return nil, fmt.Errorf("screenshot tool %s: %w", tool.name, err)
		}

		surfaces := cfg.Surfaces
		if len(surfaces) > 0 && !tool.perSurface {
			logger.Warn("screenshot tool cannot target individual outputs, capturing the whole screen",
				"tool", tool.name,
				"requested", surfaces,
			)
			surfaces = nil
		}
		logger.Info("screenshot tool selected", "tool", tool.name, "binary", binary)
		return &CommandSource{
			tool:     tool,
			binary:   binary,
			surfaces: surfaces,
			logger:   logger,
		}, nil
	}

	if cfg.Tool != "" {
		return nil, fmt.Errorf("screenshot tool %q not found on PATH", cfg.Tool)
	}
	return nil, fmt.Errorf("no screenshot tool found on PATH (tried %s)", strings.Join(probed, ", "))
}

// Surfaces returns the configured output list, or the whole virtual
// screen when none was configured.
func (s *CommandSource) Surfaces(ctx context.Context) ([]Surface, error) {
	if len(s.surfaces) > 0 {
		return s.surfaces, nil
	}
	return []Surface{SurfaceScreen}, nil
}

// Grab runs the tool for one surface and decodes its PNG output.
func (s *CommandSource) Grab(ctx context.Context, surface Surface) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, s.binary, s.tool.args(surface)...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%s grabbing %s: %w (stderr: %s)",
			s.tool.name, surface, err, strings.TrimSpace(stderr.String()))
	}

	frame, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decoding %s output for %s: %w", s.tool.name, surface, err)
	}
	return frame, nil
}

// validateBinary checks that path is a regular, executable file.
func validateBinary(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
