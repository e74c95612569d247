// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/lapse-project/lapse/lib/version"
	"github.com/lapse-project/lapse/protocol"
)

func rootCommand() *Command {
	return &Command{
		Name:    "lapse",
		Summary: "Control the lapse capture tracker",
		Description: "lapse talks to a running lapse-tracker daemon over its local\n" +
			"control socket: inspect state, start and stop capture, change\n" +
			"settings, list saved captures, and follow the event stream.",
		Subcommands: []*Command{
			statusCommand(),
			startCommand(),
			stopCommand(),
			setCommand(),
			historyCommand(),
			watchCommand(),
			shutdownCommand(),
			versionCommand(),
		},
		Examples: []Example{
			{Description: "Show tracker state and settings", Command: "lapse status"},
			{Description: "Capture every two minutes", Command: "lapse set interval 120"},
			{Description: "Follow tracker events as they happen", Command: "lapse watch"},
		},
	}
}

// connectOnly builds a Flags func carrying just the connection pair,
// for commands with no flags of their own.
func connectOnly(connect *connectFlags, name string) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
		connect.register(flags)
		return flags
	}
}

func statusCommand() *Command {
	var connect connectFlags
	var asJSON bool
	return &Command{
		Name:    "status",
		Summary: "Show tracker state and settings",
		Description: "Status connects to the tracker and prints the capture state and\n" +
			"active settings from the connection snapshot.",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
			connect.register(flags)
			flags.BoolVar(&asJSON, "json", false, "print as JSON")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return errors.New("status takes no arguments")
			}
			client, err := connect.dial()
			if err != nil {
				return err
			}
			defer client.Close()

			settingsSync, captureState, err := awaitWelcome(ctx, client, connect.timeout)
			if err != nil {
				return err
			}
			report := buildStatus(settingsSync, captureState)
			if asJSON {
				return writeJSON(report)
			}
			printStatus(os.Stdout, report)
			return nil
		},
	}
}

func startCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "start",
		Summary: "Start periodic capture",
		Flags:   connectOnly(&connect, "start"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return errors.New("start takes no arguments")
			}
			return switchCapture(ctx, &connect, protocol.CommandStartCapture)
		},
	}
}

func stopCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "stop",
		Summary: "Stop periodic capture",
		Flags:   connectOnly(&connect, "stop"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return errors.New("stop takes no arguments")
			}
			return switchCapture(ctx, &connect, protocol.CommandStopCapture)
		},
	}
}

// switchCapture sends a start or stop command and prints the capture
// state the tracker settles on. The trailing state query pins the
// answer to this command rather than to an unrelated broadcast.
func switchCapture(ctx context.Context, connect *connectFlags, command string) error {
	client, err := connect.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if _, _, err := awaitWelcome(ctx, client, connect.timeout); err != nil {
		return err
	}
	if err := client.Send(protocol.NewCommand(command)); err != nil {
		return fmt.Errorf("sending %s: %w", command, err)
	}
	fence := protocol.NewCommand(protocol.CommandQueryState)
	if err := client.Send(fence); err != nil {
		return fmt.Errorf("sending %s: %w", fence.Command, err)
	}
	state, err := awaitEvent(ctx, client, connect.timeout, protocol.EventCaptureState, fence.CorrelationID)
	if err != nil {
		return err
	}
	fmt.Printf("capture: %s\n", state.Value)
	return nil
}

func setCommand() *Command {
	return &Command{
		Name:    "set",
		Summary: "Change a tracker setting",
		Description: "Set changes one tracker setting. The tracker validates the new\n" +
			"value, persists it, and broadcasts the updated settings to every\n" +
			"connected client.",
		Subcommands: []*Command{
			setIntervalCommand(),
			setQualityCommand(),
			setFolderCommand(),
			setLoginStartCommand(),
			setAutoCaptureCommand(),
		},
		Examples: []Example{
			{Description: "Capture every 45 seconds", Command: "lapse set interval 45"},
			{Description: "Store captures under a different folder", Command: "lapse set folder ~/captures"},
			{Description: "Start the tracker at login", Command: "lapse set login-start true"},
		},
	}
}

func setIntervalCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "interval",
		Summary: "Set seconds between captures",
		Usage:   "lapse set interval <seconds>",
		Flags:   connectOnly(&connect, "interval"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: lapse set interval <seconds>")
			}
			seconds, err := strconv.Atoi(args[0])
			if err != nil || seconds <= 0 {
				return fmt.Errorf("interval must be a positive number of seconds, got %q", args[0])
			}
			change := protocol.NewCommand(protocol.CommandSetInterval,
				protocol.WithValue(strconv.Itoa(seconds)))
			return applyChange(ctx, os.Stdout, &connect, change)
		},
	}
}

func setQualityCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "quality",
		Summary: "Set JPEG quality (1-100)",
		Usage:   "lapse set quality <1-100>",
		Flags:   connectOnly(&connect, "quality"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: lapse set quality <1-100>")
			}
			quality, err := strconv.Atoi(args[0])
			if err != nil || quality < 1 || quality > 100 {
				return fmt.Errorf("quality must be between 1 and 100, got %q", args[0])
			}
			change := protocol.NewCommand(protocol.CommandSetQuality,
				protocol.WithValue(strconv.Itoa(quality)))
			return applyChange(ctx, os.Stdout, &connect, change)
		},
	}
}

func setFolderCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "folder",
		Summary: "Set the capture folder",
		Usage:   "lapse set folder <path>",
		Flags:   connectOnly(&connect, "folder"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("usage: lapse set folder <path>")
			}
			// The tracker resolves relative paths against its own
			// working directory, so resolve here against the user's.
			folder, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving %q: %w", args[0], err)
			}
			change := protocol.NewCommand(protocol.CommandSetFolder,
				protocol.WithPath(folder))
			return applyChange(ctx, os.Stdout, &connect, change)
		},
	}
}

func setLoginStartCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "login-start",
		Summary: "Start the tracker at login",
		Usage:   "lapse set login-start <true|false>",
		Flags:   connectOnly(&connect, "login-start"),
		Run: func(ctx context.Context, args []string) error {
			enabled, err := flagArg("login-start", args)
			if err != nil {
				return err
			}
			change := protocol.NewCommand(protocol.CommandSetStartWithWindows,
				protocol.WithValue(strconv.FormatBool(enabled)))
			return applyChange(ctx, os.Stdout, &connect, change)
		},
	}
}

func setAutoCaptureCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "auto-capture",
		Summary: "Start capture when the tracker starts",
		Usage:   "lapse set auto-capture <true|false>",
		Flags:   connectOnly(&connect, "auto-capture"),
		Run: func(ctx context.Context, args []string) error {
			enabled, err := flagArg("auto-capture", args)
			if err != nil {
				return err
			}
			change := protocol.NewCommand(protocol.CommandSetAutoStartCapture,
				protocol.WithValue(strconv.FormatBool(enabled)))
			return applyChange(ctx, os.Stdout, &connect, change)
		},
	}
}

// flagArg parses the single boolean argument of a settings flag
// command, accepting the usual spellings and normalizing them to the
// strict true/false the tracker expects.
func flagArg(name string, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: lapse set %s <true|false>", name)
	}
	enabled, err := strconv.ParseBool(args[0])
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", name, args[0])
	}
	return enabled, nil
}

func historyCommand() *Command {
	var connect connectFlags
	var limit int
	var asJSON bool
	return &Command{
		Name:    "history",
		Summary: "List recent captures",
		Description: "History asks the tracker for its most recent saved captures,\n" +
			"newest first. Requires the tracker to run with a capture index.",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("history", pflag.ContinueOnError)
			connect.register(flags)
			flags.IntVar(&limit, "limit", 0, "number of captures to list (0 means the tracker default)")
			flags.BoolVar(&asJSON, "json", false, "print as JSON")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return errors.New("history takes no arguments")
			}
			if limit < 0 {
				return fmt.Errorf("limit must not be negative, got %d", limit)
			}
			client, err := connect.dial()
			if err != nil {
				return err
			}
			defer client.Close()

			if _, _, err := awaitWelcome(ctx, client, connect.timeout); err != nil {
				return err
			}
			options := []protocol.Option{}
			if limit > 0 {
				options = append(options, protocol.WithValue(strconv.Itoa(limit)))
			}
			query := protocol.NewCommand(protocol.CommandQueryHistory, options...)
			if err := client.Send(query); err != nil {
				return fmt.Errorf("sending %s: %w", query.Command, err)
			}
			sync, err := awaitEvent(ctx, client, connect.timeout, protocol.EventHistorySync, query.CorrelationID)
			if errors.Is(err, errReplyTimeout) {
				return errors.New("the tracker did not answer the history query (is it running with -index?)")
			}
			if err != nil {
				return err
			}
			if asJSON {
				artifacts := sync.Artifacts
				if artifacts == nil {
					artifacts = []protocol.Artifact{}
				}
				return writeJSON(artifacts)
			}
			printArtifacts(os.Stdout, sync.Artifacts)
			return nil
		},
	}
}

func watchCommand() *Command {
	var connect connectFlags
	var asJSON bool
	return &Command{
		Name:    "watch",
		Summary: "Stream tracker events until interrupted",
		Description: "Watch prints every event the tracker emits, starting with the\n" +
			"connection snapshot, until interrupted or the tracker exits.",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			connect.register(flags)
			flags.BoolVar(&asJSON, "json", false, "print one JSON object per event")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return errors.New("watch takes no arguments")
			}
			logger := newCommandLogger()
			client, err := connect.dial()
			if err != nil {
				return err
			}
			defer client.Close()
			logger.Info("watching tracker events", "socket", connect.socket)

			encoder := json.NewEncoder(os.Stdout)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-client.Done():
					if err := client.Err(); err != nil {
						return fmt.Errorf("tracker connection failed: %w", err)
					}
					return errTrackerClosed
				case message := <-client.Messages():
					if asJSON {
						if err := encoder.Encode(message); err != nil {
							return err
						}
					} else {
						fmt.Println(eventLine(message))
					}
					if message.Event == protocol.EventTrackerExiting {
						return nil
					}
				}
			}
		},
	}
}

func shutdownCommand() *Command {
	var connect connectFlags
	return &Command{
		Name:    "shutdown",
		Summary: "Ask the tracker to exit",
		Flags:   connectOnly(&connect, "shutdown"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return errors.New("shutdown takes no arguments")
			}
			client, err := connect.dial()
			if err != nil {
				return err
			}
			defer client.Close()

			if _, _, err := awaitWelcome(ctx, client, connect.timeout); err != nil {
				return err
			}
			if err := client.Send(protocol.NewCommand(protocol.CommandShutdown)); err != nil {
				return fmt.Errorf("sending %s: %w", protocol.CommandShutdown, err)
			}
			_, err = awaitEvent(ctx, client, connect.timeout, protocol.EventTrackerExiting, "")
			if errors.Is(err, errTrackerClosed) {
				// The tracker can tear the connection down before the
				// farewell is read. Either way it is going away.
				fmt.Println("tracker exited")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println("tracker exiting")
			return nil
		},
	}
}

func versionCommand() *Command {
	return &Command{
		Name:    "version",
		Summary: "Print the lapse version",
		Run: func(ctx context.Context, args []string) error {
			version.Print("lapse")
			return nil
		},
	}
}
