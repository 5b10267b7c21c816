// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"
)

// UsageError reports a command line that does not parse: an unknown
// command or flag, a missing subcommand. The CLI exits with status 2
// for it.
type UsageError struct {
	// Command is the command line that was reached, e.g. "yeet secret".
	Command string
	Problem string

	// Suggestion is the closest valid spelling, already formatted.
	Suggestion string
}

func (e *UsageError) Error() string {
	var builder strings.Builder
	builder.WriteString(e.Problem)
	if e.Suggestion != "" {
		fmt.Fprintf(&builder, " (did you mean %s?)", e.Suggestion)
	}
	fmt.Fprintf(&builder, "\n\nRun '%s --help' for usage.", e.Command)
	return builder.String()
}

// ExitCode is 2, the conventional status for bad usage.
func (e *UsageError) ExitCode() int { return 2 }

// ExitError ends the CLI with Code after the command has already
// written everything the user needs to see. "yeet host name-by-key"
// exits 1 this way when no host holds the key.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode returns Code.
func (e *ExitError) ExitCode() int { return e.Code }
