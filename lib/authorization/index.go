// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"sort"

	"github.com/google/uuid"

	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/tag"
)

// index is the in-memory view of the store. It has no lock of its own;
// Store guards it.
type index struct {
	byIdentity map[identity.Identity][]Policy
	byID       map[uuid.UUID]Policy
	tags       map[tag.Tag]Definition
}

func newIndex() *index {
	return &index{
		byIdentity: make(map[identity.Identity][]Policy),
		byID:       make(map[uuid.UUID]Policy),
		tags:       make(map[tag.Tag]Definition),
	}
}

func (idx *index) insert(policy Policy) {
	idx.byID[policy.ID] = policy
	idx.byIdentity[policy.Identity] = append(idx.byIdentity[policy.Identity], policy)
}

// remove deletes the policy with id and reports whether it existed.
func (idx *index) remove(id uuid.UUID) bool {
	policy, ok := idx.byID[id]
	if !ok {
		return false
	}
	delete(idx.byID, id)

	existing := idx.byIdentity[policy.Identity]
	kept := make([]Policy, 0, len(existing))
	for _, candidate := range existing {
		if candidate.ID != id {
			kept = append(kept, candidate)
		}
	}
	if len(kept) == 0 {
		delete(idx.byIdentity, policy.Identity)
	} else {
		idx.byIdentity[policy.Identity] = kept
	}
	return true
}

func (idx *index) scope(who identity.Identity, action Action) tag.Set {
	scope := tag.NewSet()
	for _, policy := range idx.byIdentity[who] {
		if !policy.Covers(action) {
			continue
		}
		for t := range policy.Scope {
			scope.Add(t)
		}
	}
	return scope
}

func (idx *index) policiesOf(who identity.Identity) []Policy {
	return clonePolicies(idx.byIdentity[who])
}

func (idx *index) allPolicies() []Policy {
	policies := make([]Policy, 0, len(idx.byID))
	for _, policy := range idx.byID {
		policies = append(policies, clonePolicy(policy))
	}
	sortPolicies(policies)
	return policies
}

func (idx *index) definitions() []Definition {
	definitions := make([]Definition, 0, len(idx.tags))
	for _, definition := range idx.tags {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].Name < definitions[j].Name
	})
	return definitions
}

// Policies handed out of the index are copies: callers must not be able
// to mutate a scope the index still uses.
func clonePolicy(policy Policy) Policy {
	policy.Actions = append([]Action(nil), policy.Actions...)
	policy.Scope = policy.Scope.Clone()
	return policy
}

func clonePolicies(policies []Policy) []Policy {
	cloned := make([]Policy, len(policies))
	for i, policy := range policies {
		cloned[i] = clonePolicy(policy)
	}
	sortPolicies(cloned)
	return cloned
}

func sortPolicies(policies []Policy) {
	sort.Slice(policies, func(i, j int) bool {
		if !policies[i].CreatedAt.Equal(policies[j].CreatedAt) {
			return policies[i].CreatedAt.Before(policies[j].CreatedAt)
		}
		return policies[i].ID.String() < policies[j].ID.String()
	})
}
