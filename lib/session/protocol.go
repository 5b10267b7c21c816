// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/tag"
)

// Wire action names.
const (
	ActionCheck         = "check"
	ActionSecretRequest = "secret.request"
	ActionWhoami        = "identity.whoami"
	ActionServerKey     = "server.key"
	ActionSecretPut     = "secret.put"
	ActionSecretRename  = "secret.rename"
	ActionSecretRemove  = "secret.remove"
	ActionSecretSetTags = "secret.set-tags"
	ActionSecretList    = "secret.list"
	ActionTagCreate     = "tag.create"
	ActionTagDelete     = "tag.delete"
	ActionTagList       = "tag.list"
	ActionTagCreatable  = "tag.creatable"
	ActionPolicyGrant   = "policy.grant"
	ActionPolicyRevoke  = "policy.revoke"
	ActionPolicyList    = "policy.list"
	ActionHostEnroll    = "host.enroll"
	ActionHostRename    = "host.rename"
	ActionHostSetTags   = "host.set-tags"
	ActionHostUpdate    = "host.update"
	ActionHostDetach    = "host.detach"
	ActionHostRemove    = "host.remove"
	ActionHostList      = "host.list"
	ActionHostnameByKey = "host.name-by-key"
)

// AgentActionKind says what the agent should do after a check.
type AgentActionKind uint8

const (
	// Nothing: the host already runs its target, or has none.
	Nothing AgentActionKind = iota + 1
	// Detach: stop converging until an administrator re-attaches.
	Detach
	// SwitchTo: fetch and activate Target.
	SwitchTo
)

func (k AgentActionKind) String() string {
	switch k {
	case Nothing:
		return "nothing"
	case Detach:
		return "detach"
	case SwitchTo:
		return "switch-to"
	}
	return "unknown"
}

// RemoteStorePath is a deployable system and where to fetch it from.
type RemoteStorePath struct {
	StorePath   string `cbor:"1,keyasint"`
	Substitutor string `cbor:"2,keyasint,omitempty"`
	PublicKey   string `cbor:"3,keyasint,omitempty"`
}

// AgentAction is the resolved instruction for a host.
type AgentAction struct {
	Kind   AgentActionKind  `cbor:"1,keyasint"`
	Target *RemoteStorePath `cbor:"2,keyasint,omitempty"`
}

// CheckRequest opens a session.
type CheckRequest struct {
	CurrentStorePath string `cbor:"1,keyasint"`
}

// CheckResponse carries the resolved action and, for SwitchTo, the
// ticket to present with the secret request.
type CheckResponse struct {
	Action AgentAction `cbor:"1,keyasint"`
	Ticket []byte      `cbor:"2,keyasint,omitempty"`
}

// SecretBatchRequest asks for per-host ciphertexts.
type SecretBatchRequest struct {
	Ticket []byte   `cbor:"1,keyasint"`
	Names  []string `cbor:"2,keyasint"`
}

// SecretBatchResponse maps every requested name to its sealed value.
type SecretBatchResponse struct {
	Secrets map[string][]byte `cbor:"1,keyasint"`
}

// WhoamiResponse describes the caller.
type WhoamiResponse struct {
	Identity identity.Identity      `cbor:"1,keyasint"`
	Policies []authorization.Policy `cbor:"2,keyasint,omitempty"`
}

// ServerKeyResponse carries the age recipient administrators encrypt
// secrets to.
type ServerKeyResponse struct {
	AgePublicKey string `cbor:"1,keyasint"`
}

// NameRequest addresses a resource by name.
type NameRequest struct {
	Name string `cbor:"1,keyasint"`
}

// RenameRequest renames a resource.
type RenameRequest struct {
	Name    string `cbor:"1,keyasint"`
	NewName string `cbor:"2,keyasint"`
}

// SetTagsRequest replaces a resource's tags.
type SetTagsRequest struct {
	Name string  `cbor:"1,keyasint"`
	Tags tag.Set `cbor:"2,keyasint"`
}

// SecretPutRequest uploads a ciphertext sealed to the server key. Tags
// may be empty for an update, or for a create when the caller can
// create with exactly one tag.
type SecretPutRequest struct {
	Name       string  `cbor:"1,keyasint"`
	Ciphertext []byte  `cbor:"2,keyasint"`
	Tags       tag.Set `cbor:"3,keyasint,omitempty"`
}

// SecretInfo is secret metadata.
type SecretInfo struct {
	Name      string    `cbor:"1,keyasint"`
	Tags      tag.Set   `cbor:"2,keyasint"`
	Version   int64     `cbor:"3,keyasint"`
	UpdatedAt time.Time `cbor:"4,keyasint"`
}

// CreatableRequest asks which tags the caller may put on a new
// resource of Kind.
type CreatableRequest struct {
	Kind authorization.ResourceKind `cbor:"1,keyasint"`
}

// GrantRequest creates a policy.
type GrantRequest struct {
	Identity identity.Identity      `cbor:"1,keyasint"`
	Actions  []authorization.Action `cbor:"2,keyasint"`
	Scope    tag.Set                `cbor:"3,keyasint"`
}

// RevokeRequest deletes a policy.
type RevokeRequest struct {
	ID uuid.UUID `cbor:"1,keyasint"`
}

// PolicyListRequest lists policies, optionally of one identity.
type PolicyListRequest struct {
	Identity identity.Identity `cbor:"1,keyasint,omitempty"`
}

// EnrollRequest registers a host by its SSH ed25519 public key in
// authorized_keys form.
type EnrollRequest struct {
	Name      string  `cbor:"1,keyasint"`
	PublicKey string  `cbor:"2,keyasint"`
	Tags      tag.Set `cbor:"3,keyasint,omitempty"`
}

// HostUpdateRequest sets a host's target.
type HostUpdateRequest struct {
	Name   string          `cbor:"1,keyasint"`
	Target RemoteStorePath `cbor:"2,keyasint"`
}

// HostDetachRequest sets or clears a host's detach flag.
type HostDetachRequest struct {
	Name     string `cbor:"1,keyasint"`
	Detached bool   `cbor:"2,keyasint"`
}

// HostnameByKeyRequest looks up a host by public key.
type HostnameByKeyRequest struct {
	PublicKey string `cbor:"1,keyasint"`
}

// HostInfo is host metadata.
type HostInfo struct {
	Identity   identity.Identity `cbor:"1,keyasint"`
	Name       string            `cbor:"2,keyasint"`
	PublicKey  string            `cbor:"3,keyasint"`
	Tags       tag.Set           `cbor:"4,keyasint"`
	Target     RemoteStorePath   `cbor:"5,keyasint"`
	Detached   bool              `cbor:"6,keyasint"`
	EnrolledAt time.Time         `cbor:"7,keyasint"`
}
