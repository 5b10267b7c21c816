// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"time"

	"github.com/google/uuid"

	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/tag"
)

// Policy grants Actions over Scope to Identity. Policies are immutable
// once granted; changing one means revoking it and granting another.
type Policy struct {
	ID        uuid.UUID         `cbor:"1,keyasint"`
	Identity  identity.Identity `cbor:"2,keyasint"`
	Actions   []Action          `cbor:"3,keyasint"`
	Scope     tag.Set           `cbor:"4,keyasint"`
	CreatedAt time.Time         `cbor:"5,keyasint"`
}

// Covers reports whether the policy applies to action, either by
// naming it or by holding AnyAction.
func (p Policy) Covers(action Action) bool {
	for _, granted := range p.Actions {
		if granted.IsAny() || granted == action {
			return true
		}
	}
	return false
}

// Definition is a tag minted by the store. The token is the opaque
// value used in scopes and resource tag sets; Name is for humans and
// may be shown to anyone allowed to list tags.
type Definition struct {
	Tag       tag.Tag   `cbor:"1,keyasint"`
	Name      string    `cbor:"2,keyasint"`
	CreatedAt time.Time `cbor:"3,keyasint"`
}
