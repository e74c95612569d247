// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "lapse",
		Subcommands: []*Command{
			{
				Name: "status",
				Run: func(ctx context.Context, args []string) error {
					called = "status"
					return nil
				},
			},
			{
				Name: "watch",
				Run: func(ctx context.Context, args []string) error {
					called = "watch"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"watch"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "watch" {
		t.Errorf("dispatched to %q, want %q", called, "watch")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "lapse",
		Subcommands: []*Command{
			{
				Name: "set",
				Subcommands: []*Command{
					{
						Name: "interval",
						Run: func(ctx context.Context, args []string) error {
							called = "set interval"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"set", "interval", "45"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "set interval" {
		t.Errorf("dispatched to %q, want %q", called, "set interval")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "45" {
		t.Errorf("args = %v, want [45]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string
	var target string

	command := &Command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--socket", "/custom.sock", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socketPath = %q, want %q", socketPath, "/custom.sock")
	}
	if target != "extra" {
		t.Errorf("target = %q, want %q", target, "extra")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 0, "number of captures")
			flagSet.Bool("json", false, "print as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--limti", "5"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --limit") {
		t.Errorf("error = %q, want suggestion for '--limit'", errStr)
	}
	if !strings.Contains(errStr, "limti") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "history",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flagSet.Int("limit", 0, "number of captures")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	err := rootCommand().Execute(context.Background(), []string{"statsu"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"status\"") {
		t.Errorf("error = %q, want suggestion for 'status'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	err := rootCommand().Execute(context.Background(), []string{"zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			if err := rootCommand().Execute(context.Background(), []string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	err := rootCommand().Execute(context.Background(), []string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	var buffer bytes.Buffer
	rootCommand().PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Usage:",
		"lapse <command> [flags]",
		"Commands:",
		"status",
		"Show tracker state and settings",
		"watch",
		"Stream tracker events until interrupted",
		"Examples:",
		"lapse set interval 120",
		"Run 'lapse <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	var buffer bytes.Buffer
	historyCommand().PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Flags:",
		"socket",
		"timeout",
		"limit",
		"json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "lapse"}
	set := &Command{Name: "set", parent: root}
	interval := &Command{Name: "interval", parent: set}

	if got := root.fullName(); got != "lapse" {
		t.Errorf("root.fullName() = %q, want %q", got, "lapse")
	}
	if got := set.fullName(); got != "lapse set" {
		t.Errorf("set.fullName() = %q, want %q", got, "lapse set")
	}
	if got := interval.fullName(); got != "lapse set interval" {
		t.Errorf("interval.fullName() = %q, want %q", got, "lapse set interval")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1}, // substitution
		{"abc", "ab", 1},  // deletion
		{"ab", "abc", 1},  // insertion
		{"statsu", "status", 2},
		{"hsitory", "history", 2},
		{"wach", "watch", 1},
	}

	for _, test := range tests {
		got := levenshtein(test.a, test.b)
		if got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := rootCommand().Subcommands

	tests := []struct {
		input string
		want  string
	}{
		{"statsu", "status"},
		{"hsitory", "history"},
		{"shutdwon", "shutdown"},
		{"wach", "watch"},
		{"zzzzzzzzz", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got := suggestCommand(test.input, commands)
			if got != test.want {
				t.Errorf("suggestCommand(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}
