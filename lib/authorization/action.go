// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"fmt"
	"sort"
	"strings"
)

// ResourceKind groups actions by the kind of resource they act on.
type ResourceKind string

const (
	KindHost     ResourceKind = "host"
	KindSettings ResourceKind = "settings"
	KindSecret   ResourceKind = "secret"
	KindStatus   ResourceKind = "status"
	KindTag      ResourceKind = "tag"
	KindPolicy   ResourceKind = "policy"
)

// Action identifies an operation subject to authorization. The zero
// value is invalid. Specific actions are the package variables below;
// [AnyAction] matches every action.
type Action struct {
	name     string
	wildcard bool
}

// anyActionText is the text form of AnyAction. Action names form a
// closed set defined in this file, so the text form cannot collide.
const anyActionText = "*"

var (
	// AnyAction is the action wildcard.
	AnyAction = Action{wildcard: true}

	HostRename           = Action{name: "host.rename"}
	HostRemove           = Action{name: "host.remove"}
	HostUpdate           = Action{name: "host.update"}
	HostAccept           = Action{name: "host.accept"}
	HostAttach           = Action{name: "host.attach"}
	HostDetachPermission = Action{name: "host.detach-permission"}

	SettingsDetachGlobal = Action{name: "settings.detach-global"}

	SecretCreateOrUpdate = Action{name: "secret.create-or-update"}
	SecretRename         = Action{name: "secret.rename"}
	SecretRemove         = Action{name: "secret.remove"}
	SecretACL            = Action{name: "secret.acl"}
	SecretList           = Action{name: "secret.list"}
	// SecretRequest is checked for a host asking for a secret's
	// per-host ciphertext.
	SecretRequest = Action{name: "secret.request"}

	StatusListHosts         = Action{name: "status.list-hosts"}
	StatusListHostnameByKey = Action{name: "status.list-hostname-by-key"}

	TagCreate = Action{name: "tag.create"}
	TagDelete = Action{name: "tag.delete"}

	PolicyGrant  = Action{name: "policy.grant"}
	PolicyRevoke = Action{name: "policy.revoke"}
	PolicyList   = Action{name: "policy.list"}
)

var knownActions = func() map[string]Action {
	actions := []Action{
		HostRename, HostRemove, HostUpdate, HostAccept, HostAttach, HostDetachPermission,
		SettingsDetachGlobal,
		SecretCreateOrUpdate, SecretRename, SecretRemove, SecretACL, SecretList, SecretRequest,
		StatusListHosts, StatusListHostnameByKey,
		TagCreate, TagDelete,
		PolicyGrant, PolicyRevoke, PolicyList,
	}
	known := make(map[string]Action, len(actions))
	for _, action := range actions {
		known[action.name] = action
	}
	return known
}()

var createActions = map[ResourceKind]Action{
	KindHost:   HostAccept,
	KindSecret: SecretCreateOrUpdate,
	KindTag:    TagCreate,
	KindPolicy: PolicyGrant,
}

// CreateActionFor returns the action that authorizes creating a
// resource of the given kind.
func CreateActionFor(kind ResourceKind) (Action, bool) {
	action, ok := createActions[kind]
	return action, ok
}

// ParseAction parses the text form of an action ("secret.request" or
// "*").
func ParseAction(text string) (Action, error) {
	if text == anyActionText {
		return AnyAction, nil
	}
	action, ok := knownActions[text]
	if !ok {
		return Action{}, fmt.Errorf("authorization: unknown action %q", text)
	}
	return action, nil
}

// AllActions returns every specific action sorted by name.
func AllActions() []Action {
	actions := make([]Action, 0, len(knownActions))
	for _, action := range knownActions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].name < actions[j].name })
	return actions
}

// IsAny reports whether a is the wildcard.
func (a Action) IsAny() bool { return a.wildcard }

// IsZero reports whether a is the invalid zero value.
func (a Action) IsZero() bool { return !a.wildcard && a.name == "" }

// Kind returns the resource kind of a specific action, or "" for the
// wildcard.
func (a Action) Kind() ResourceKind {
	kind, _, _ := strings.Cut(a.name, ".")
	return ResourceKind(kind)
}

func (a Action) String() string {
	if a.wildcard {
		return anyActionText
	}
	return a.name
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, fmt.Errorf("authorization: cannot encode zero action")
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
