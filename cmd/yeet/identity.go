// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/session"
)

func identityCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "identity",
		Summary: "Show identities and keys",
		Subcommands: []*cli.Command{
			whoamiCommand(env),
			serverKeyCommand(env),
			identityOfCommand(env),
		},
	}
}

// whoamiView is the JSON shape of "identity whoami".
type whoamiView struct {
	Identity identity.Identity `json:"identity"`
	Policies []policyView      `json:"policies"`
}

func whoamiCommand(env *environment) *cli.Command {
	var conn connection
	output := cli.JSONOutput{Writer: env.stdout}
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show your identity and policies as the server sees them",
		Usage:   "yeet identity whoami [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				var response session.WhoamiResponse
				if err := client.Call(ctx, session.ActionWhoami, nil, &response); err != nil {
					return err
				}
				// Tag names are only visible to callers holding a policy.
				index := newTagIndex(nil)
				if len(response.Policies) > 0 {
					var err error
					if index, err = fetchTags(ctx, client); err != nil {
						return err
					}
				}

				view := whoamiView{Identity: response.Identity, Policies: make([]policyView, len(response.Policies))}
				for i, policy := range response.Policies {
					view.Policies[i] = newPolicyView(policy, index)
				}
				if done, err := output.EmitJSON(view); done {
					return err
				}
				fmt.Fprintln(env.stdout, view.Identity)
				if len(response.Policies) == 0 {
					fmt.Fprintln(env.stdout, "no policies")
					return nil
				}
				return env.printPolicies(&cli.JSONOutput{Writer: env.stdout}, response.Policies, index)
			})
		},
	}
}

func serverKeyCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "server-key",
		Summary: "Print the server's age key secrets are encrypted to",
		Usage:   "yeet identity server-key [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("server-key", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				var response session.ServerKeyResponse
				if err := client.Call(ctx, session.ActionServerKey, nil, &response); err != nil {
					return err
				}
				fmt.Fprintln(env.stdout, response.AgePublicKey)
				return nil
			})
		},
	}
}

func identityOfCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "of",
		Summary: "Print the identity of a public key without asking the server",
		Usage:   "yeet identity of KEY",
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "KEY"); err != nil {
				return err
			}
			who, err := parseIdentity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(env.stdout, who)
			return nil
		},
	}
}
