// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

// Command is a node of the command tree.
type Command struct {
	Name string

	// Aliases are alternative names, such as "ls" for "list".
	Aliases []string

	// Summary is the one-line description in the parent's listing.
	Summary string

	// Description is the longer text at the top of the command's own
	// help. Summary is used when it is empty.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	Examples []Example

	// Flags builds a fresh flag set for every parse. Nil means the
	// command takes no flags.
	Flags func() *pflag.FlagSet

	Subcommands []*Command

	// Run is called with the positional arguments left after flag
	// parsing and a logger carrying the command path.
	Run func(ctx context.Context, args []string, logger *slog.Logger) error

	// Output receives help text. Nil inherits the parent's, and stderr
	// at the root.
	Output io.Writer

	parent *Command
}

// Example is a command line shown in help.
type Example struct {
	Description string
	Command     string
}

// Execute walks args down the tree to a leaf, parses its flags, and
// runs it. Help requests print help and return nil.
func (c *Command) Execute(ctx context.Context, args []string) error {
	command := c
	for {
		if len(args) > 0 && isHelpFlag(args[0]) {
			command.PrintHelp(command.output())
			return nil
		}
		if len(command.Subcommands) == 0 || len(args) == 0 || strings.HasPrefix(args[0], "-") {
			break
		}
		sub := command.find(args[0])
		if sub == nil {
			return &UsageError{
				Command:    command.fullName(),
				Problem:    "unknown command " + quote(args[0]),
				Suggestion: quote(suggestCommand(args[0], command.Subcommands)),
			}
		}
		sub.parent = command
		command, args = sub, args[1:]
	}
	return command.run(ctx, args)
}

func (c *Command) run(ctx context.Context, args []string) error {
	if c.Run == nil {
		c.PrintHelp(c.output())
		problem := "subcommand required"
		if len(args) > 0 {
			problem += " (got flag " + quote(args[0]) + ")"
		}
		return &UsageError{Command: c.fullName(), Problem: problem}
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		flagSet.SetOutput(io.Discard)
		if err := flagSet.Parse(args); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				c.PrintHelp(c.output())
				return nil
			}
			usage := &UsageError{Command: c.fullName(), Problem: err.Error()}
			if strings.HasPrefix(usage.Problem, "unknown") {
				usage.Suggestion = suggestFlag(args, c.Flags())
			}
			return usage
		}
		args = flagSet.Args()
	}

	return c.Run(ctx, args, NewCommandLogger().With("command", c.path()))
}

// find returns the subcommand called name or one of its aliases.
func (c *Command) find(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name || slices.Contains(sub.Aliases, name) {
			return sub
		}
	}
	return nil
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

// fullName is the command line that reaches c, such as
// "yeet secret put".
func (c *Command) fullName() string {
	names := []string{c.Name}
	for command := c.parent; command != nil; command = command.parent {
		names = append(names, command.Name)
	}
	slices.Reverse(names)
	return strings.Join(names, " ")
}

// path is fullName without the root, slash separated, for log
// attributes: "secret/put".
func (c *Command) path() string {
	name := c.fullName()
	if _, rest, found := strings.Cut(name, " "); found {
		return strings.ReplaceAll(rest, " ", "/")
	}
	return name
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	}
	return false
}

func quote(s string) string {
	if s == "" {
		return ""
	}
	return `"` + s + `"`
}
