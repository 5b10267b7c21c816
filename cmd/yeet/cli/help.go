// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// PrintHelp writes c's help text to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	if text := firstNonEmpty(c.Description, c.Summary); text != "" {
		fmt.Fprintf(w, "%s\n\n", text)
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if len(c.Subcommands) > 0 {
			usage = name + " <command> [flags]"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			label := sub.Name
			if len(sub.Aliases) > 0 {
				label += " (" + strings.Join(sub.Aliases, ", ") + ")"
			}
			fmt.Fprintf(table, "  %s\t%s\n", label, sub.Summary)
		}
		table.Flush()
	}

	if c.Flags != nil {
		if flags := c.Flags().FlagUsages(); flags != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", flags)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for i, example := range c.Examples {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
		}
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for more information on a command.\n", name)
	}
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
