// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"fmt"

	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/tag"
)

// ScopeSource answers which tags an identity may touch with an action.
// *Store implements it.
type ScopeSource interface {
	AuthorizedScope(who identity.Identity, action Action) tag.Set
}

// Resource is anything carrying a tag set: hosts and secrets.
type Resource interface {
	Tags() tag.Set
}

// Checker decides access against a ScopeSource. It holds no state of
// its own and is safe for concurrent use.
type Checker struct {
	scopes ScopeSource
}

// NewChecker returns a Checker reading scopes from source.
func NewChecker(source ScopeSource) *Checker {
	return &Checker{scopes: source}
}

// Check reports whether who may perform action on resource: the
// authorized scope for action intersects the resource's tags. Every
// access decision goes through here.
func (c *Checker) Check(who identity.Identity, action Action, resource Resource) bool {
	return tag.Intersects(c.scopes.AuthorizedScope(who, action), resource.Tags())
}

// Require is Check returning ErrUnauthorized on deny.
func (c *Checker) Require(who identity.Identity, action Action, resource Resource) error {
	if !c.Check(who, action, resource) {
		return fmt.Errorf("%w: %s may not %s", ErrUnauthorized, who.Short(), action)
	}
	return nil
}

// Filter returns the members of resources who may perform action on,
// preserving order.
func Filter[R Resource](c *Checker, who identity.Identity, action Action, resources []R) []R {
	var allowed []R
	for _, resource := range resources {
		if c.Check(who, action, resource) {
			allowed = append(allowed, resource)
		}
	}
	return allowed
}

// Tagged adapts a bare tag set into a Resource.
type Tagged tag.Set

// Tags implements Resource.
func (t Tagged) Tags() tag.Set { return tag.Set(t) }
