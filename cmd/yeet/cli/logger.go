// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// LogLevelEnv names the variable that overrides the CLI log level,
// for example YEET_LOG_LEVEL=debug.
const LogLevelEnv = "YEET_LOG_LEVEL"

// NewCommandLogger returns the logger handed to Run. It writes text to
// a terminal and JSON otherwise, at warn level unless LogLevelEnv
// says differently.
func NewCommandLogger() *slog.Logger {
	return newLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), os.Getenv(LogLevelEnv))
}

func newLogger(w io.Writer, terminal bool, level string) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelWarn}
	var parsed slog.Level
	if level != "" && parsed.UnmarshalText([]byte(level)) == nil {
		options.Level = parsed
	}
	if terminal {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
