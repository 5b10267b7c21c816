// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/hoststore"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/secretstore"
	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/tag"
)

// covers reports whether scope includes every tag of set. Only a scope
// holding the wildcard covers a set holding the wildcard.
func covers(scope, set tag.Set) bool {
	if scope.HasAny() {
		return true
	}
	for t := range set {
		if t.IsAny() || !scope.Contains(t) {
			return false
		}
	}
	return true
}

// creationTags settles the tags of a new resource. With no tags
// requested the caller's single creatable tag is used; with several to
// choose from the request is rejected and the choices listed.
func (h *Handler) creationTags(who identity.Identity, kind authorization.ResourceKind, requested tag.Set) (tag.Set, error) {
	creatable := h.policies.CreatableScope(who, kind)
	if creatable.Len() == 0 {
		return nil, service.Denied()
	}
	if requested.Len() == 0 {
		if creatable.Len() == 1 {
			return creatable, nil
		}
		return nil, service.Errorf(service.CodeInvalid, "choose tags for the new %s from: %s", kind, h.tagNames(creatable))
	}
	if err := tag.ValidateResourceTags(requested); err != nil {
		return nil, service.Errorf(service.CodeInvalid, "%v", err)
	}
	if err := h.policies.RequireDefined(requested); err != nil {
		return nil, service.Errorf(service.CodeInvalid, "%v", err)
	}
	if !covers(creatable, requested) {
		return nil, service.Denied()
	}
	return requested, nil
}

// retag validates new tags for an existing resource the caller may
// re-tag under action.
func (h *Handler) retag(who identity.Identity, action authorization.Action, tags tag.Set) error {
	if err := tag.ValidateResourceTags(tags); err != nil {
		return service.Errorf(service.CodeInvalid, "%v", err)
	}
	if err := h.policies.RequireDefined(tags); err != nil {
		return service.Errorf(service.CodeInvalid, "%v", err)
	}
	if !covers(h.policies.AuthorizedScope(who, action), tags) {
		return service.Denied()
	}
	return nil
}

func (h *Handler) tagNames(set tag.Set) []string {
	names := make(map[tag.Tag]string)
	for _, definition := range h.policies.Tags() {
		names[definition.Tag] = definition.Name
	}
	var result []string
	for _, t := range set.Tags() {
		if name, ok := names[t]; ok {
			result = append(result, name)
		} else {
			result = append(result, t.String())
		}
	}
	return result
}

// Whoami describes the caller and its policies.
func (h *Handler) Whoami(caller service.Caller) WhoamiResponse {
	return WhoamiResponse{Identity: caller.Identity, Policies: h.policies.Policies(caller.Identity)}
}

// ServerKey returns the age recipient secrets are uploaded to.
func (h *Handler) ServerKey(caller service.Caller) (ServerKeyResponse, error) {
	if len(h.policies.Policies(caller.Identity)) == 0 {
		return ServerKeyResponse{}, service.Denied()
	}
	return ServerKeyResponse{AgePublicKey: h.storeKey.PublicKey}, nil
}

// lookupSecret returns the secret if the caller may perform action on
// it. A missing secret and a denied one are indistinguishable.
func (h *Handler) lookupSecret(ctx context.Context, who identity.Identity, action authorization.Action, name string) (secretstore.Secret, error) {
	secret, err := h.secrets.Get(ctx, name)
	if errors.Is(err, secretstore.ErrNotFound) {
		return secretstore.Secret{}, service.Denied()
	}
	if err != nil {
		return secretstore.Secret{}, err
	}
	if !h.checker.Check(who, action, secret) {
		return secretstore.Secret{}, service.Denied()
	}
	return secret, nil
}

func secretInfo(secret secretstore.Secret) SecretInfo {
	return SecretInfo{Name: secret.Name, Tags: secret.Tags(), Version: secret.Version, UpdatedAt: secret.UpdatedAt}
}

// PutSecret creates or updates a secret from a ciphertext sealed to the
// server key. Tags on an update re-tag the secret and need secret.acl.
func (h *Handler) PutSecret(ctx context.Context, caller service.Caller, request SecretPutRequest) (SecretInfo, error) {
	who := caller.Identity
	if err := secretstore.ValidateName(request.Name); err != nil {
		return SecretInfo{}, service.Errorf(service.CodeInvalid, "%v", err)
	}

	tags := request.Tags
	existing, err := h.secrets.Get(ctx, request.Name)
	switch {
	case err == nil:
		if !h.checker.Check(who, authorization.SecretCreateOrUpdate, existing) {
			return SecretInfo{}, service.Denied()
		}
		if tags.Len() > 0 {
			if !h.checker.Check(who, authorization.SecretACL, existing) {
				return SecretInfo{}, service.Denied()
			}
			if err := h.retag(who, authorization.SecretACL, tags); err != nil {
				return SecretInfo{}, err
			}
		}
	case errors.Is(err, secretstore.ErrNotFound):
		tags, err = h.creationTags(who, authorization.KindSecret, tags)
		if err != nil {
			return SecretInfo{}, err
		}
	default:
		return SecretInfo{}, err
	}

	stored, err := h.secrets.PutSealed(ctx, request.Name, request.Ciphertext, tags)
	if err != nil {
		return SecretInfo{}, err
	}
	h.logger.Info("secret stored", "secret", stored.Name, "version", stored.Version, "by", who.Short())
	return secretInfo(stored), nil
}

// RenameSecret renames a secret the caller may rename.
func (h *Handler) RenameSecret(ctx context.Context, caller service.Caller, request RenameRequest) error {
	if _, err := h.lookupSecret(ctx, caller.Identity, authorization.SecretRename, request.Name); err != nil {
		return err
	}
	return h.secrets.Rename(ctx, request.Name, request.NewName)
}

// RemoveSecret deletes a secret the caller may remove.
func (h *Handler) RemoveSecret(ctx context.Context, caller service.Caller, request NameRequest) error {
	if _, err := h.lookupSecret(ctx, caller.Identity, authorization.SecretRemove, request.Name); err != nil {
		return err
	}
	return h.secrets.Remove(ctx, request.Name)
}

// SetSecretTags re-tags a secret. The caller needs secret.acl on the
// current tags and must cover every new tag.
func (h *Handler) SetSecretTags(ctx context.Context, caller service.Caller, request SetTagsRequest) error {
	if _, err := h.lookupSecret(ctx, caller.Identity, authorization.SecretACL, request.Name); err != nil {
		return err
	}
	if err := h.retag(caller.Identity, authorization.SecretACL, request.Tags); err != nil {
		return err
	}
	return h.secrets.SetTags(ctx, request.Name, request.Tags)
}

// ListSecrets returns the names of secrets the caller may list.
func (h *Handler) ListSecrets(ctx context.Context, caller service.Caller) ([]string, error) {
	secrets, err := h.secrets.All(ctx)
	if err != nil {
		return nil, err
	}
	visible := authorization.Filter(h.checker, caller.Identity, authorization.SecretList, secrets)
	names := make([]string, 0, len(visible))
	for _, secret := range visible {
		names = append(names, secret.Name)
	}
	return names, nil
}

// CreateTag defines a tag. Only a caller holding tag.create over the
// wildcard may mint tags.
func (h *Handler) CreateTag(ctx context.Context, caller service.Caller, request NameRequest) (authorization.Definition, error) {
	if !h.policies.AuthorizedScope(caller.Identity, authorization.TagCreate).HasAny() {
		return authorization.Definition{}, service.Denied()
	}
	definition, err := h.policies.CreateTag(ctx, request.Name)
	if errors.Is(err, authorization.ErrTagExists) {
		return authorization.Definition{}, service.Errorf(service.CodeConflict, "tag %q already exists", request.Name)
	}
	return definition, err
}

// DeleteTag removes a tag by name.
func (h *Handler) DeleteTag(ctx context.Context, caller service.Caller, request NameRequest) error {
	definition, ok := h.policies.TagByName(request.Name)
	if !ok || !h.checker.Check(caller.Identity, authorization.TagDelete, authorization.Tagged(tag.NewSet(definition.Tag))) {
		return service.Denied()
	}
	return h.policies.DeleteTag(ctx, definition.Tag)
}

// ListTags returns every tag definition to a caller holding any policy.
func (h *Handler) ListTags(caller service.Caller) ([]authorization.Definition, error) {
	if len(h.policies.Policies(caller.Identity)) == 0 {
		return nil, service.Denied()
	}
	return h.policies.Tags(), nil
}

// CreatableTags returns the tags the caller may stamp on a new resource
// of the requested kind.
func (h *Handler) CreatableTags(caller service.Caller, request CreatableRequest) []authorization.Definition {
	creatable := h.policies.CreatableScope(caller.Identity, request.Kind)
	var definitions []authorization.Definition
	for _, definition := range h.policies.Tags() {
		if creatable.Contains(definition.Tag) {
			definitions = append(definitions, definition)
		}
	}
	return definitions
}

// Grant creates a policy. The caller's policy.grant scope must cover
// the whole requested scope, so nobody hands out more than they hold.
func (h *Handler) Grant(ctx context.Context, caller service.Caller, request GrantRequest) (authorization.Policy, error) {
	if err := h.policies.RequireDefined(request.Scope); err != nil {
		return authorization.Policy{}, service.Errorf(service.CodeInvalid, "%v", err)
	}
	scope := h.policies.AuthorizedScope(caller.Identity, authorization.PolicyGrant)
	if scope.Len() == 0 || !covers(scope, request.Scope) {
		return authorization.Policy{}, service.Denied()
	}
	policy, err := h.policies.Grant(ctx, request.Identity, request.Actions, request.Scope)
	switch {
	case errors.Is(err, authorization.ErrEmptyScope), errors.Is(err, authorization.ErrNoActions):
		return authorization.Policy{}, service.Errorf(service.CodeInvalid, "%v", err)
	case err != nil:
		return authorization.Policy{}, err
	}
	return policy, nil
}

// Revoke deletes a policy whose whole scope the caller's policy.revoke
// scope covers.
func (h *Handler) Revoke(ctx context.Context, caller service.Caller, request RevokeRequest) error {
	policy, ok := h.policies.Policy(request.ID)
	if !ok {
		return service.Denied()
	}
	scope := h.policies.AuthorizedScope(caller.Identity, authorization.PolicyRevoke)
	if scope.Len() == 0 || !covers(scope, policy.Scope) {
		return service.Denied()
	}
	return h.policies.Revoke(ctx, request.ID)
}

// ListPolicies returns the policies whose scope intersects the caller's
// policy.list scope, optionally restricted to one identity.
func (h *Handler) ListPolicies(caller service.Caller, request PolicyListRequest) []authorization.Policy {
	var candidates []authorization.Policy
	if request.Identity != "" {
		candidates = h.policies.Policies(request.Identity)
	} else {
		candidates = h.policies.AllPolicies()
	}
	var visible []authorization.Policy
	for _, policy := range candidates {
		if h.checker.Check(caller.Identity, authorization.PolicyList, authorization.Tagged(policy.Scope)) {
			visible = append(visible, policy)
		}
	}
	return visible
}

func hostInfo(host hoststore.Host) (HostInfo, error) {
	authorized, err := identity.AuthorizedKey(host.PublicKey)
	if err != nil {
		return HostInfo{}, err
	}
	return HostInfo{
		Identity:  host.Identity,
		Name:      host.Name,
		PublicKey: authorized,
		Tags:      host.Tags(),
		Target: RemoteStorePath{
			StorePath:   host.Target.StorePath,
			Substitutor: host.Target.Substitutor,
			PublicKey:   host.Target.CachePublicKey,
		},
		Detached:   host.Detached,
		EnrolledAt: host.EnrolledAt,
	}, nil
}

// lookupHost returns the named host if the caller may perform action on
// it.
func (h *Handler) lookupHost(ctx context.Context, who identity.Identity, action authorization.Action, name string) (hoststore.Host, error) {
	host, err := h.hosts.GetByName(ctx, name)
	if errors.Is(err, hoststore.ErrNotFound) {
		return hoststore.Host{}, service.Denied()
	}
	if err != nil {
		return hoststore.Host{}, err
	}
	if !h.checker.Check(who, action, host) {
		return hoststore.Host{}, service.Denied()
	}
	return host, nil
}

// Enroll accepts a host into the fleet.
func (h *Handler) Enroll(ctx context.Context, caller service.Caller, request EnrollRequest) (HostInfo, error) {
	publicKey, err := identity.ParseAuthorizedKey(request.PublicKey)
	if err != nil {
		return HostInfo{}, service.Errorf(service.CodeInvalid, "host key: %v", err)
	}
	tags, err := h.creationTags(caller.Identity, authorization.KindHost, request.Tags)
	if err != nil {
		return HostInfo{}, err
	}
	host, err := h.hosts.Enroll(ctx, request.Name, publicKey, tags)
	switch {
	case errors.Is(err, hoststore.ErrExists):
		return HostInfo{}, service.Errorf(service.CodeConflict, "host key is already enrolled")
	case errors.Is(err, hoststore.ErrNameUsed):
		return HostInfo{}, service.Errorf(service.CodeConflict, "host name %q is in use", request.Name)
	case err != nil:
		return HostInfo{}, err
	}
	return hostInfo(host)
}

// RenameHost renames a host.
func (h *Handler) RenameHost(ctx context.Context, caller service.Caller, request RenameRequest) error {
	host, err := h.lookupHost(ctx, caller.Identity, authorization.HostRename, request.Name)
	if err != nil {
		return err
	}
	err = h.hosts.Rename(ctx, host.Identity, request.NewName)
	if errors.Is(err, hoststore.ErrNameUsed) {
		return service.Errorf(service.CodeConflict, "host name %q is in use", request.NewName)
	}
	return err
}

// SetHostTags re-tags a host; the new tags must lie within the caller's
// host.update scope.
func (h *Handler) SetHostTags(ctx context.Context, caller service.Caller, request SetTagsRequest) error {
	host, err := h.lookupHost(ctx, caller.Identity, authorization.HostUpdate, request.Name)
	if err != nil {
		return err
	}
	if err := h.retag(caller.Identity, authorization.HostUpdate, request.Tags); err != nil {
		return err
	}
	return h.hosts.SetTags(ctx, host.Identity, request.Tags)
}

// UpdateHost points a host at a new target.
func (h *Handler) UpdateHost(ctx context.Context, caller service.Caller, request HostUpdateRequest) error {
	if request.Target.StorePath == "" {
		return service.Errorf(service.CodeInvalid, "target store path is required")
	}
	host, err := h.lookupHost(ctx, caller.Identity, authorization.HostUpdate, request.Name)
	if err != nil {
		return err
	}
	return h.hosts.SetTarget(ctx, host.Identity, hoststore.Target{
		StorePath:      request.Target.StorePath,
		Substitutor:    request.Target.Substitutor,
		CachePublicKey: request.Target.PublicKey,
	})
}

// DetachHost sets or clears a host's detach flag. Detaching needs
// host.detach-permission; re-attaching needs host.attach.
func (h *Handler) DetachHost(ctx context.Context, caller service.Caller, request HostDetachRequest) error {
	action := authorization.HostAttach
	if request.Detached {
		action = authorization.HostDetachPermission
	}
	host, err := h.lookupHost(ctx, caller.Identity, action, request.Name)
	if err != nil {
		return err
	}
	return h.hosts.SetDetached(ctx, host.Identity, request.Detached)
}

// RemoveHost deletes a host.
func (h *Handler) RemoveHost(ctx context.Context, caller service.Caller, request NameRequest) error {
	host, err := h.lookupHost(ctx, caller.Identity, authorization.HostRemove, request.Name)
	if err != nil {
		return err
	}
	return h.hosts.Remove(ctx, host.Identity)
}

// ListHosts returns the hosts the caller may see, ordered by name.
func (h *Handler) ListHosts(ctx context.Context, caller service.Caller) ([]HostInfo, error) {
	hosts, err := h.hosts.List(ctx)
	if err != nil {
		return nil, err
	}
	visible := authorization.Filter(h.checker, caller.Identity, authorization.StatusListHosts, hosts)
	infos := make([]HostInfo, 0, len(visible))
	for _, host := range visible {
		info, err := hostInfo(host)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// HostnameByKey resolves an SSH public key to the host's name.
func (h *Handler) HostnameByKey(ctx context.Context, caller service.Caller, request HostnameByKeyRequest) (string, error) {
	publicKey, err := identity.ParseAuthorizedKey(request.PublicKey)
	if err != nil {
		return "", service.Errorf(service.CodeInvalid, "host key: %v", err)
	}
	host, err := h.hosts.Get(ctx, identity.FromPublicKey(publicKey))
	if errors.Is(err, hoststore.ErrNotFound) {
		return "", service.Denied()
	}
	if err != nil {
		return "", fmt.Errorf("looking up host: %w", err)
	}
	if !h.checker.Check(caller.Identity, authorization.StatusListHostnameByKey, host) {
		return "", service.Denied()
	}
	return host.Name, nil
}
