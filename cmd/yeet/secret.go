// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/session"
	"github.com/yeet-rs/yeet/lib/tag"
)

func secretCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "secret",
		Summary: "Manage secrets",
		Description: `Manage the secrets hosts receive at activation.

Values are encrypted to the server's age key before they leave this
machine. The server re-encrypts them to each requesting host's SSH key.`,
		Subcommands: []*cli.Command{
			secretPutCommand(env),
			secretRenameCommand(env),
			secretRemoveCommand(env),
			secretSetTagsCommand(env),
			secretListCommand(env),
		},
	}
}

func secretPutCommand(env *environment) *cli.Command {
	var conn connection
	var file string
	var tagNames []string
	return &cli.Command{
		Name:    "put",
		Summary: "Create or update a secret",
		Description: `Create a secret, or store a new version of an existing one.

The value is read from --file ("-" for stdin) or prompted for on the
terminal. A new secret takes the --tag tags; without --tag it takes
your only creatable tag, or you choose among several. Giving --tag for
an existing secret re-tags it.`,
		Usage: "yeet secret put NAME [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("put", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringVar(&file, "file", "", `read the value from this file ("-" for stdin)`)
			flagSet.StringSliceVar(&tagNames, "tag", nil, "tag names for the secret (repeatable)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				info, err := env.putSecret(ctx, client, args[0], file, tagNames)
				if err != nil {
					return err
				}
				logger.Info("secret stored", "secret", info.Name, "version", info.Version)
				fmt.Fprintf(env.stdout, "%s: version %d\n", info.Name, info.Version)
				return nil
			})
		},
	}
}

func (env *environment) putSecret(ctx context.Context, client caller, name, file string, tagNames []string) (session.SecretInfo, error) {
	var tags tag.Set
	if len(tagNames) > 0 {
		index, err := fetchTags(ctx, client)
		if err != nil {
			return session.SecretInfo{}, err
		}
		if tags, err = index.resolve(tagNames, false); err != nil {
			return session.SecretInfo{}, err
		}
	} else {
		var names []string
		if err := client.Call(ctx, session.ActionSecretList, nil, &names); err != nil {
			return session.SecretInfo{}, err
		}
		if !slices.Contains(names, name) {
			var err error
			if tags, err = env.creationTags(ctx, client, authorization.KindSecret); err != nil {
				return session.SecretInfo{}, err
			}
		}
	}

	var serverKey session.ServerKeyResponse
	if err := client.Call(ctx, session.ActionServerKey, nil, &serverKey); err != nil {
		return session.SecretInfo{}, err
	}
	recipient, err := sealed.ParseRecipient(serverKey.AgePublicKey)
	if err != nil {
		return session.SecretInfo{}, err
	}

	value, err := env.readValue(file, name)
	if err != nil {
		return session.SecretInfo{}, err
	}
	ciphertext, err := sealed.Encrypt(value.Bytes(), recipient)
	value.Close()
	if err != nil {
		return session.SecretInfo{}, err
	}

	var info session.SecretInfo
	request := session.SecretPutRequest{Name: name, Ciphertext: ciphertext, Tags: tags}
	if err := client.Call(ctx, session.ActionSecretPut, request, &info); err != nil {
		return session.SecretInfo{}, err
	}
	return info, nil
}

func secretRenameCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "rename",
		Summary: "Rename a secret",
		Usage:   "yeet secret rename NAME NEW-NAME [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rename", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "NAME", "NEW-NAME"); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				return client.Call(ctx, session.ActionSecretRename, session.RenameRequest{Name: args[0], NewName: args[1]}, nil)
			})
		},
	}
}

func secretRemoveCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "remove",
		Aliases: []string{"rm"},
		Summary: "Delete a secret",
		Usage:   "yeet secret remove NAME [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				return client.Call(ctx, session.ActionSecretRemove, session.NameRequest{Name: args[0]}, nil)
			})
		},
	}
}

func secretSetTagsCommand(env *environment) *cli.Command {
	var conn connection
	var tagNames []string
	return &cli.Command{
		Name:    "set-tags",
		Summary: "Replace a secret's tags",
		Usage:   "yeet secret set-tags NAME --tag TAG... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("set-tags", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringSliceVar(&tagNames, "tag", nil, "new tag names (repeatable, at least one)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			if len(tagNames) == 0 {
				return fmt.Errorf("at least one --tag is required")
			}
			return env.withClient(conn, func(client caller) error {
				return env.setTags(ctx, client, session.ActionSecretSetTags, args[0], tagNames)
			})
		},
	}
}

// setTags resolves tagNames and sends a set-tags request under action.
func (env *environment) setTags(ctx context.Context, client caller, action, name string, tagNames []string) error {
	index, err := fetchTags(ctx, client)
	if err != nil {
		return err
	}
	tags, err := index.resolve(tagNames, false)
	if err != nil {
		return err
	}
	return client.Call(ctx, action, session.SetTagsRequest{Name: name, Tags: tags}, nil)
}

func secretListCommand(env *environment) *cli.Command {
	var conn connection
	output := cli.JSONOutput{Writer: env.stdout}
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List the secrets you may see",
		Usage:   "yeet secret list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				var names []string
				if err := client.Call(ctx, session.ActionSecretList, nil, &names); err != nil {
					return err
				}
				if done, err := output.EmitJSON(names); done {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(env.stdout, name)
				}
				return nil
			})
		},
	}
}
