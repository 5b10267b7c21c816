// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/cmd/yeet/cli"
	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/session"
)

// policyView is the JSON shape of a policy.
type policyView struct {
	ID        uuid.UUID         `json:"id"`
	Identity  identity.Identity `json:"identity"`
	Actions   []string          `json:"actions"`
	Scope     []string          `json:"scope"`
	CreatedAt time.Time         `json:"created_at"`
}

func newPolicyView(policy authorization.Policy, index tagIndex) policyView {
	actions := make([]string, len(policy.Actions))
	for i, action := range policy.Actions {
		actions[i] = action.String()
	}
	return policyView{
		ID:        policy.ID,
		Identity:  policy.Identity,
		Actions:   actions,
		Scope:     index.display(policy.Scope),
		CreatedAt: policy.CreatedAt,
	}
}

func policyCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "policy",
		Summary: "Manage access policies",
		Description: `Grant and revoke access policies.

A policy lets an identity perform actions on resources carrying any tag
of its scope. "*" as an action means every action; "*" as a tag means
every resource. You can only grant or revoke within your own
policy.grant and policy.revoke scopes.

Actions:
  ` + actionList(),
		Subcommands: []*cli.Command{
			policyGrantCommand(env),
			policyRevokeCommand(env),
			policyListCommand(env),
		},
	}
}

func actionList() string {
	var names []string
	for _, action := range authorization.AllActions() {
		names = append(names, action.String())
	}
	return strings.Join(names, "\n  ")
}

// parseIdentity accepts an identity, an authorized_keys line, or the
// path of a public key file.
func parseIdentity(value string) (identity.Identity, error) {
	if strings.HasPrefix(value, "ssh-") {
		publicKey, err := identity.ParseAuthorizedKey(value)
		if err != nil {
			return "", err
		}
		return identity.FromPublicKey(publicKey), nil
	}
	if _, err := os.Stat(value); err == nil {
		publicKey, err := parsePublicKey(value)
		if err != nil {
			return "", err
		}
		return identity.FromPublicKey(publicKey), nil
	}
	return identity.Parse(value)
}

func policyGrantCommand(env *environment) *cli.Command {
	var conn connection
	var actionNames, tagNames []string
	return &cli.Command{
		Name:    "grant",
		Summary: "Grant actions over tags to an identity",
		Usage:   "yeet policy grant IDENTITY --action ACTION... --tag TAG... [flags]",
		Description: `Grant actions over tags to an identity.

IDENTITY is an identity as printed by "yeet identity whoami", an SSH
public key line, or the path of a public key file.`,
		Examples: []cli.Example{
			{
				Description: "Let an operator manage CI secrets",
				Command:     "yeet policy grant ~/alice.pub --action secret.create-or-update --action secret.list --tag ci",
			},
			{
				Description: "Let hosts tagged production fetch production secrets",
				Command:     "yeet policy grant ./web-1.pub --action secret.request --tag production",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("grant", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringSliceVar(&actionNames, "action", nil, `actions to grant ("*" for all; repeatable)`)
			flagSet.StringSliceVar(&tagNames, "tag", nil, `tags of the scope ("*" for all; repeatable)`)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := requireArgs(args, "IDENTITY"); err != nil {
				return err
			}
			who, err := parseIdentity(args[0])
			if err != nil {
				return err
			}
			if len(actionNames) == 0 || len(tagNames) == 0 {
				return fmt.Errorf("at least one --action and one --tag are required")
			}
			actions := make([]authorization.Action, len(actionNames))
			for i, name := range actionNames {
				if actions[i], err = authorization.ParseAction(name); err != nil {
					return err
				}
			}
			return env.withClient(conn, func(client caller) error {
				index, err := fetchTags(ctx, client)
				if err != nil {
					return err
				}
				scope, err := index.resolve(tagNames, true)
				if err != nil {
					return err
				}
				var policy authorization.Policy
				request := session.GrantRequest{Identity: who, Actions: actions, Scope: scope}
				if err := client.Call(ctx, session.ActionPolicyGrant, request, &policy); err != nil {
					return err
				}
				logger.Info("policy granted", "policy", policy.ID.String(), "identity", who.Short())
				fmt.Fprintln(env.stdout, policy.ID)
				return nil
			})
		},
	}
}

func policyRevokeCommand(env *environment) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke a policy by ID",
		Usage:   "yeet policy revoke ID [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args, "ID"); err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("policy ID: %w", err)
			}
			return env.withClient(conn, func(client caller) error {
				return client.Call(ctx, session.ActionPolicyRevoke, session.RevokeRequest{ID: id}, nil)
			})
		},
	}
}

func policyListCommand(env *environment) *cli.Command {
	var conn connection
	var who string
	output := cli.JSONOutput{Writer: env.stdout}
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Summary: "List the policies you may see",
		Usage:   "yeet policy list [--identity IDENTITY] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			flagSet.StringVar(&who, "identity", "", "only policies of this identity")
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			var request session.PolicyListRequest
			if who != "" {
				parsed, err := parseIdentity(who)
				if err != nil {
					return err
				}
				request.Identity = parsed
			}
			return env.withClient(conn, func(client caller) error {
				index, err := fetchTags(ctx, client)
				if err != nil {
					return err
				}
				var policies []authorization.Policy
				if err := client.Call(ctx, session.ActionPolicyList, request, &policies); err != nil {
					return err
				}
				return env.printPolicies(&output, policies, index)
			})
		},
	}
}

func (env *environment) printPolicies(output *cli.JSONOutput, policies []authorization.Policy, index tagIndex) error {
	views := make([]policyView, len(policies))
	for i, policy := range policies {
		views[i] = newPolicyView(policy, index)
	}
	if done, err := output.EmitJSON(views); done {
		return err
	}
	table := tabwriter.NewWriter(env.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(table, "ID\tIDENTITY\tACTIONS\tSCOPE")
	for _, view := range views {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", view.ID, view.Identity.Short(),
			strings.Join(view.Actions, ","), strings.Join(view.Scope, ","))
	}
	return table.Flush()
}
