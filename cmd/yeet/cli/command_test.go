// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// testTree is a small yeet-shaped tree. Leaves record their path and
// arguments in calls.
func testTree(calls *[]string, help io.Writer) *Command {
	leaf := func(name string, aliases ...string) *Command {
		return &Command{
			Name:    name,
			Aliases: aliases,
			Summary: "The " + name + " command",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
				flagSet.String("file", "", "read the value from this file")
				flagSet.StringSlice("tag", nil, "tag names")
				flagSet.Bool("json", false, "output as JSON")
				return flagSet
			},
			Run: func(_ context.Context, args []string, logger *slog.Logger) error {
				if logger == nil {
					return errors.New("nil logger")
				}
				*calls = append(*calls, name+" "+strings.Join(args, ","))
				return nil
			},
		}
	}
	return &Command{
		Name:    "yeet",
		Summary: "Fleet deployment administration",
		Output:  help,
		Subcommands: []*Command{
			{
				Name:        "secret",
				Summary:     "Manage secrets",
				Subcommands: []*Command{leaf("put"), leaf("list", "ls"), leaf("remove", "rm")},
			},
			{Name: "policy", Summary: "Manage policies", Subcommands: []*Command{leaf("grant")}},
			leaf("version"),
		},
	}
}

func TestExecuteDispatch(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"leaf", []string{"version"}, "version "},
		{"nested", []string{"secret", "put", "netrc"}, "put netrc"},
		{"flags between arguments", []string{"secret", "put", "--file", "./netrc", "netrc", "--tag", "ci"}, "put netrc"},
		{"alias", []string{"secret", "rm", "netrc"}, "remove netrc"},
		{"terminator", []string{"secret", "put", "--", "--odd-name"}, "put --odd-name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var calls []string
			if err := testTree(&calls, io.Discard).Execute(context.Background(), test.args); err != nil {
				t.Fatalf("Execute(%v) error: %v", test.args, err)
			}
			if len(calls) != 1 || calls[0] != test.want {
				t.Errorf("calls = %q, want [%q]", calls, test.want)
			}
		})
	}
}

func TestExecuteUsageErrors(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		problem    string
		suggestion string
		command    string
	}{
		{"unknown command", []string{"polcy"}, `unknown command "polcy"`, `"policy"`, "yeet"},
		{"unknown nested command", []string{"secret", "lst"}, `unknown command "lst"`, `"list"`, "yeet secret"},
		{"suggests the name for an alias typo", []string{"secret", "rn"}, `unknown command "rn"`, `"remove"`, "yeet secret"},
		{"nothing close", []string{"zzzzzzzz"}, `unknown command "zzzzzzzz"`, "", "yeet"},
		{"missing subcommand", []string{"secret"}, "subcommand required", "", "yeet secret"},
		{"flag instead of subcommand", []string{"secret", "--json"}, `subcommand required (got flag "--json")`, "", "yeet secret"},
		{"unknown flag", []string{"secret", "list", "--jsno"}, "unknown flag: --jsno", "--json", "yeet secret list"},
		{"distant flag", []string{"secret", "list", "--zzzzzzzz"}, "unknown flag: --zzzzzzzz", "", "yeet secret list"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var calls []string
			err := testTree(&calls, io.Discard).Execute(context.Background(), test.args)
			var usage *UsageError
			if !errors.As(err, &usage) {
				t.Fatalf("Execute(%v) = %v, want a UsageError", test.args, err)
			}
			if usage.Problem != test.problem || usage.Suggestion != test.suggestion || usage.Command != test.command {
				t.Errorf("UsageError = %+v, want problem %q, suggestion %q, command %q",
					*usage, test.problem, test.suggestion, test.command)
			}
			if usage.ExitCode() != 2 {
				t.Errorf("ExitCode() = %d, want 2", usage.ExitCode())
			}
			if !strings.Contains(err.Error(), "Run '"+test.command+" --help'") {
				t.Errorf("error %q does not point at --help", err)
			}
			if len(calls) != 0 {
				t.Errorf("a command ran: %q", calls)
			}
		})
	}
}

func TestUsageErrorMessage(t *testing.T) {
	err := &UsageError{Command: "yeet secret", Problem: `unknown command "lst"`, Suggestion: `"list"`}
	want := "unknown command \"lst\" (did you mean \"list\"?)\n\nRun 'yeet secret --help' for usage."
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestExecuteHelp(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"--help"}, {"help"}, {"secret", "help"}, {"secret", "put", "--help"}} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			var calls []string
			var help bytes.Buffer
			if err := testTree(&calls, &help).Execute(context.Background(), args); err != nil {
				t.Fatalf("Execute(%v) error: %v", args, err)
			}
			if !strings.Contains(help.String(), "Usage:") {
				t.Errorf("help output = %q, want a usage section", help.String())
			}
			if len(calls) != 0 {
				t.Errorf("a command ran for help: %q", calls)
			}
		})
	}
}

func TestPrintHelp(t *testing.T) {
	var calls []string
	root := testTree(&calls, io.Discard)
	root.Description = "Administer a yeet deployment server."
	root.Examples = []Example{
		{Description: "Upload a secret from a file", Command: "yeet secret put netrc --file ./netrc --tag ci"},
		{Command: "yeet version"},
	}

	var buffer bytes.Buffer
	root.PrintHelp(&buffer)
	for _, want := range []string{
		"Administer a yeet deployment server.\n\nUsage:\n  yeet <command> [flags]\n",
		"Commands:",
		"Manage secrets",
		"# Upload a secret from a file\n  yeet secret put netrc --file ./netrc --tag ci\n\n  yeet version\n",
		"Run 'yeet <command> --help'",
	} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, buffer.String())
		}
	}

	secret := root.find("secret")
	secret.parent = root
	buffer.Reset()
	secret.PrintHelp(&buffer)
	if !strings.Contains(buffer.String(), "list (ls)") {
		t.Errorf("help output does not show aliases:\n%s", buffer.String())
	}

	put := secret.find("put")
	put.parent = secret
	buffer.Reset()
	put.PrintHelp(&buffer)
	for _, want := range []string{"The put command", "yeet secret put [flags]", "Flags:", "--file", "--tag"} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("leaf help missing %q:\n%s", want, buffer.String())
		}
	}
}

func TestCommandNames(t *testing.T) {
	root := &Command{Name: "yeet"}
	secret := &Command{Name: "secret", parent: root}
	put := &Command{Name: "put", parent: secret}

	tests := []struct {
		command    *Command
		full, path string
	}{
		{root, "yeet", "yeet"},
		{secret, "yeet secret", "secret"},
		{put, "yeet secret put", "secret/put"},
	}
	for _, test := range tests {
		if got := test.command.fullName(); got != test.full {
			t.Errorf("fullName() = %q, want %q", got, test.full)
		}
		if got := test.command.path(); got != test.path {
			t.Errorf("path() = %q, want %q", got, test.path)
		}
	}
}

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"", false, true},
		{"debug", true, true},
		{"error", false, false},
		{"nonsense", false, true},
	}
	for _, test := range tests {
		t.Run(test.level, func(t *testing.T) {
			var output bytes.Buffer
			logger := newLogger(&output, false, test.level)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != test.debug {
				t.Errorf("debug enabled = %v, want %v", got, test.debug)
			}
			if got := logger.Enabled(ctx, slog.LevelWarn); got != test.warn {
				t.Errorf("warn enabled = %v, want %v", got, test.warn)
			}
		})
	}

	var output bytes.Buffer
	newLogger(&output, false, "").Warn("slow server", "server", "localhost:4337")
	if !strings.HasPrefix(output.String(), "{") {
		t.Errorf("non-terminal output = %q, want JSON", output.String())
	}
}
