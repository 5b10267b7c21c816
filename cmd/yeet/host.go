// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/session"
	"github.com/yeet-rs/yeet/lib/tag"
)

// hostView is the JSON shape of a host.
type hostView struct {
	Name        string            `json:"name"`
	Identity    identity.Identity `json:"identity"`
	PublicKey   string            `json:"public_key"`
	Tags        []string          `json:"tags"`
	StorePath   string            `json:"store_path,omitempty"`
	Substitutor string            `json:"substitutor,omitempty"`
	CacheKey    string            `json:"cache_public_key,omitempty"`
	Detached    bool              `json:"detached"`
	EnrolledAt  time.Time         `json:"enrolled_at"`
}

func newHostView(info session.HostInfo, index tagIndex) hostView {
	return hostView{
		Name:        info.Name,
		Identity:    info.Identity,
		PublicKey:   info.PublicKey,
		Tags:        index.display(info.Tags),
		StorePath:   info.Target.StorePath,
		Substitutor: info.Target.Substitutor,
		CacheKey:    info.Target.PublicKey,
		Detached:    info.Detached,
		EnrolledAt:  info.EnrolledAt,
	}
}

// authorizedKey normalizes a public key given inline or as a file path
// to authorized_keys form.
func authorizedKey(value string) (string, error) {
	publicKey, err := parsePublicKey(value)
	if err != nil {
		return "", err
	}
	return identity.AuthorizedKey(publicKey)
}

func hostCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "host",
		Summary: "Manage hosts",
		Description: `Enroll hosts and assign the systems they run.

A host is known by its SSH ed25519 host key. It polls the server, and
when its assigned store path differs from the one it runs, it fetches
the system from the substitutor and activates it.`,
		Subcommands: []*cli.Command{
			hostEnrollCommand(env),
			hostRenameCommand(env),
			hostSetTagsCommand(env),
			hostUpdateCommand(env),
			hostDetachCommand(env),
			hostRemoveCommand(env),
			hostListCommand(env),
			hostNameByKeyCommand(env),
		},
	}
}

func hostEnrollCommand(env *environment) *cli.Command {
	var conn connection
	var publicKey string
	var tagNames []string
	return &cli.Command{
		Name:    "enroll",
		Summary: "Accept a host into the fleet",
		Usage:   "yeet host enroll NAME --public-key KEY [flags]",
		Description: `Accept a host into the fleet.

--public-key is the host's SSH ed25519 public key, inline or as a file
such as a copy of /etc/ssh/ssh_host_ed25519_key.pub. Without --tag the
host takes your only creatable host tag, or you choose among several.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("enroll", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringVar(&publicKey, "public-key", "", "host SSH public key, inline or a file path")
			flagSet.StringSliceVar(&tagNames, "tag", nil, "tag names for the host (repeatable)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			if publicKey == "" {
				return fmt.Errorf("--public-key is required")
			}
			key, err := authorizedKey(publicKey)
			if err != nil {
				return fmt.Errorf("--public-key: %w", err)
			}
			return env.withClient(conn, func(client caller) error {
				index, err := fetchTags(ctx, client)
				if err != nil {
					return err
				}
				var tags tag.Set
				if len(tagNames) > 0 {
					tags, err = index.resolve(tagNames, false)
				} else {
					tags, err = env.creationTags(ctx, client, authorization.KindHost)
				}
				if err != nil {
					return err
				}

				var info session.HostInfo
				request := session.EnrollRequest{Name: args[0], PublicKey: key, Tags: tags}
				if err := client.Call(ctx, session.ActionHostEnroll, request, &info); err != nil {
					return err
				}
				logger.Info("host enrolled", "host", info.Name, "identity", info.Identity.Short())
				fmt.Fprintf(env.stdout, "%s\t%s\t%s\n", info.Name, info.Identity, strings.Join(index.display(info.Tags), ","))
				return nil
			})
		},
	}
}

func hostRenameCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "rename",
		Summary: "Rename a host",
		Usage:   "yeet host rename NAME NEW-NAME [flags]",
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
				return client.Call(ctx, session.ActionHostRename, session.RenameRequest{Name: args[0], NewName: args[1]}, nil)
			})
		},
	}
}

func hostSetTagsCommand(env *environment) *cli.Command {
	var conn connection
	var tagNames []string
	return &cli.Command{
		Name:    "set-tags",
		Summary: "Replace a host's tags",
		Usage:   "yeet host set-tags NAME --tag TAG... [flags]",
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
				return env.setTags(ctx, client, session.ActionHostSetTags, args[0], tagNames)
			})
		},
	}
}

func hostUpdateCommand(env *environment) *cli.Command {
	var conn connection
	var substitutor, cacheKey string
	return &cli.Command{
		Name:    "update",
		Summary: "Assign a system to a host",
		Usage:   "yeet host update NAME STORE-PATH [flags]",
		Description: `Assign a system to a host.

The host fetches STORE-PATH at its next poll, from --substitutor when
given, trusting --cache-key in addition to its own nix.conf keys.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("update", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringVar(&substitutor, "substitutor", "", "binary cache URL to fetch the system from")
			flagSet.StringVar(&cacheKey, "cache-key", "", "public key of the binary cache")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "NAME", "STORE-PATH"); err != nil {
				return err
			}
			if !strings.HasPrefix(args[1], "/nix/store/") {
				return fmt.Errorf("store path %q is not under /nix/store/", args[1])
			}
			request := session.HostUpdateRequest{
				Name: args[0],
				Target: session.RemoteStorePath{
					StorePath:   args[1],
					Substitutor: substitutor,
					PublicKey:   cacheKey,
				},
			}
			return env.withClient(conn, func(client caller) error {
				return client.Call(ctx, session.ActionHostUpdate, request, nil)
			})
		},
	}
}

func hostDetachCommand(env *environment) *cli.Command {
	var conn connection
	var attach bool
	return &cli.Command{
		Name:    "detach",
		Summary: "Stop or resume a host's updates",
		Usage:   "yeet host detach NAME [--attach] [flags]",
		Description: `Stop a host from converging, or resume it with --attach.

A detached host keeps running its current system and ignores its
assigned target until it is attached again.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("detach", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.BoolVar(&attach, "attach", false, "re-attach instead of detaching")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "NAME"); err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				return client.Call(ctx, session.ActionHostDetach, session.HostDetachRequest{Name: args[0], Detached: !attach}, nil)
			})
		},
	}
}

func hostRemoveCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "remove",
		Aliases: []string{"rm"},
		Summary: "Remove a host from the fleet",
		Usage:   "yeet host remove NAME [flags]",
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
				return client.Call(ctx, session.ActionHostRemove, session.NameRequest{Name: args[0]}, nil)
			})
		},
	}
}

func hostListCommand(env *environment) *cli.Command {
	var conn connection
	output := cli.JSONOutput{Writer: env.stdout}
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List the hosts you may see",
		Usage:   "yeet host list [flags]",
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
				index, err := fetchTags(ctx, client)
				if err != nil {
					return err
				}
				var hosts []session.HostInfo
				if err := client.Call(ctx, session.ActionHostList, nil, &hosts); err != nil {
					return err
				}
				views := make([]hostView, len(hosts))
				for i, host := range hosts {
					views[i] = newHostView(host, index)
				}
				if done, err := output.EmitJSON(views); done {
					return err
				}
				table := tabwriter.NewWriter(env.stdout, 2, 0, 3, ' ', 0)
				fmt.Fprintln(table, "NAME\tTAGS\tSTATE\tSYSTEM")
				for _, view := range views {
					state := "attached"
					if view.Detached {
						state = "detached"
					}
					system := view.StorePath
					if system == "" {
						system = "-"
					}
					fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", view.Name, strings.Join(view.Tags, ","), state, system)
				}
				return table.Flush()
			})
		},
	}
}

func hostNameByKeyCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "name-by-key",
		Summary: "Find the host holding a public key",
		Usage:   "yeet host name-by-key KEY [flags]",
		Description: `Print the name of the host enrolled with KEY, inline or a file path.
Exits with status 1 when no host you may see holds the key.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("name-by-key", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "KEY"); err != nil {
				return err
			}
			key, err := authorizedKey(args[0])
			if err != nil {
				return err
			}
			return env.withClient(conn, func(client caller) error {
				var name string
				err := client.Call(ctx, session.ActionHostnameByKey, session.HostnameByKeyRequest{PublicKey: key}, &name)
				if service.IsCode(err, service.CodeDenied) {
					fmt.Fprintln(env.stderr, "no host found for this key")
					return &cli.ExitError{Code: 1}
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(env.stdout, name)
				return nil
			})
		},
	}
}
