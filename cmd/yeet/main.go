// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/process"
)

func main() {
	err := run()
	if err == nil {
		return
	}
	// The command already printed what the user needs.
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	var usage *cli.UsageError
	if errors.As(err, &usage) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(usage.ExitCode())
	}
	process.Fatal(err)
}

func run() error {
	ctx, stop := process.SignalContext()
	defer stop()
	return Root(defaultEnvironment()).Execute(ctx, os.Args[1:])
}
