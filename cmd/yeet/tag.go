// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/session"
)

// tagView is the JSON shape of a tag definition.
type tagView struct {
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

func tagViews(definitions []authorization.Definition) []tagView {
	views := make([]tagView, len(definitions))
	for i, definition := range definitions {
		views[i] = tagView{Name: definition.Name, Token: definition.Tag.Token(), CreatedAt: definition.CreatedAt}
	}
	return views
}

func tagCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "tag",
		Summary: "Manage tags",
		Description: `Manage the tags that group secrets and hosts.

A policy grants actions over a set of tags; it applies to every resource
carrying one of them. Deleting a tag removes it from every resource and
policy scope, and deletes policies left with an empty scope.`,
		Subcommands: []*cli.Command{
			tagCreateCommand(env),
			tagDeleteCommand(env),
			tagListCommand(env),
			tagCreatableCommand(env),
		},
	}
}

func tagCreateCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "create",
		Summary: "Define a tag",
		Usage:   "yeet tag create NAME [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				var definition authorization.Definition
				if err := client.Call(ctx, session.ActionTagCreate, session.NameRequest{Name: args[0]}, &definition); err != nil {
					return err
				}
				logger.Info("tag created", "tag", definition.Name)
				fmt.Fprintf(env.stdout, "%s\t%s\n", definition.Name, definition.Tag.Token())
				return nil
			})
		},
	}
}

func tagDeleteCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "delete",
		Aliases: []string{"rm"},
		Summary: "Delete a tag everywhere",
		Usage:   "yeet tag delete NAME [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				return client.Call(ctx, session.ActionTagDelete, session.NameRequest{Name: args[0]}, nil)
			})
		},
	}
}

func tagListCommand(env *environment) *cli.Command {
	var conn connection
	output := cli.JSONOutput{Writer: env.stdout}
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List every tag",
		Usage:   "yeet tag list [flags]",
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
				var definitions []authorization.Definition
				if err := client.Call(ctx, session.ActionTagList, nil, &definitions); err != nil {
					return err
				}
				return env.printTags(&output, definitions)
			})
		},
	}
}

func tagCreatableCommand(env *environment) *cli.Command {
	var conn connection
	var kind string
	output := cli.JSONOutput{Writer: env.stdout}
	return &cli.Command{
		Name:    "creatable",
		Summary: "List the tags you may put on a new resource",
		Usage:   "yeet tag creatable [--kind secret|host] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("creatable", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringVar(&kind, "kind", string(authorization.KindSecret), "resource kind: secret or host")
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			resourceKind := authorization.ResourceKind(kind)
			if resourceKind != authorization.KindSecret && resourceKind != authorization.KindHost {
				return fmt.Errorf("--kind must be secret or host, not %q", kind)
			}
			return env.withClient(conn, func(client caller) error {
				var definitions []authorization.Definition
				if err := client.Call(ctx, session.ActionTagCreatable, session.CreatableRequest{Kind: resourceKind}, &definitions); err != nil {
					return err
				}
				return env.printTags(&output, definitions)
			})
		},
	}
}

func (env *environment) printTags(output *cli.JSONOutput, definitions []authorization.Definition) error {
	views := tagViews(definitions)
	if done, err := output.EmitJSON(views); done {
		return err
	}
	table := tabwriter.NewWriter(env.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(table, "NAME\tTOKEN\tCREATED")
	for _, view := range views {
		fmt.Fprintf(table, "%s\t%s\t%s\n", view.Name, view.Token, view.CreatedAt.Format(time.DateTime))
	}
	return table.Flush()
}
