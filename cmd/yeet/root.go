// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/version"
)

// Root builds the yeet command tree.
func Root(env *environment) *cli.Command {
	return &cli.Command{
		Name: "yeet",
		Description: `yeet: fleet deployment administration.

Manage the secrets, tags, access policies and hosts of a yeet-server.
Hosts run yeet-agent, which fetches the system assigned here and the
secrets its manifest names.`,
		Subcommands: []*cli.Command{
			secretCommand(env),
			tagCommand(env),
			policyCommand(env),
			hostCommand(env),
			identityCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(env.stdout, "yeet %s\n", version.Info())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Check who the server thinks you are",
				Command:     "yeet identity whoami --server yeet.example:4337 --server-key ./server.pub",
			},
			{
				Description: "Upload a secret from a file",
				Command:     "yeet secret put cache-netrc --file ./netrc --tag ci",
			},
			{
				Description: "Enroll a host by its SSH host key",
				Command:     "yeet host enroll web-1 --public-key /etc/ssh/ssh_host_ed25519_key.pub --tag production",
			},
			{
				Description: "Point a host at a new system",
				Command:     "yeet host update web-1 /nix/store/abc-nixos-system --substitutor https://cache.example",
			},
		},
	}
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, names ...string) error {
	if len(args) != len(names) {
		switch len(names) {
		case 0:
			return fmt.Errorf("unexpected arguments: %v", args)
		case 1:
			return fmt.Errorf("expected %s", names[0])
		}
		return fmt.Errorf("expected %d arguments: %s", len(names), strings.Join(names, " "))
	}
	return nil
}
