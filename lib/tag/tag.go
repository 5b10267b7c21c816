// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yeet-rs/yeet/lib/codec"
)

// Tag is an authorization label. The zero value is not a valid tag;
// construct tags with [Specific] or [Any].
type Tag struct {
	token    string
	wildcard bool
}

// Specific returns the ordinary tag with the given token.
func Specific(token string) Tag {
	return Tag{token: token}
}

// Any returns the wildcard tag, which intersects every set.
func Any() Tag {
	return Tag{wildcard: true}
}

// IsAny reports whether t is the wildcard.
func (t Tag) IsAny() bool { return t.wildcard }

// IsZero reports whether t is the zero Tag (neither a token nor the
// wildcard).
func (t Tag) IsZero() bool { return !t.wildcard && t.token == "" }

// Token returns the token of a specific tag, or "" for the wildcard.
func (t Tag) Token() string { return t.token }

// String renders the tag for display. The wildcard renders as "<any>",
// which is not a valid token produced by the policy store.
func (t Tag) String() string {
	if t.wildcard {
		return "<any>"
	}
	return t.token
}

// wireTag is the CBOR shape of a Tag. The wildcard travels as a
// boolean so it never shares a namespace with tokens.
type wireTag struct {
	Any   bool   `cbor:"1,keyasint,omitempty"`
	Token string `cbor:"2,keyasint,omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (t Tag) MarshalCBOR() ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("tag: cannot encode zero tag")
	}
	return codec.Marshal(wireTag{Any: t.wildcard, Token: t.token})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (t *Tag) UnmarshalCBOR(data []byte) error {
	var wire wireTag
	if err := codec.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("tag: decoding: %w", err)
	}
	switch {
	case wire.Any && wire.Token != "":
		return fmt.Errorf("tag: wildcard must not carry a token")
	case wire.Any:
		*t = Any()
	case wire.Token == "":
		return fmt.Errorf("tag: empty token")
	default:
		*t = Specific(wire.Token)
	}
	return nil
}

// Set is an unordered collection of tags. A nil Set is empty and safe
// to read; use [NewSet] before calling Add.
type Set map[Tag]struct{}

// NewSet returns a set holding the given tags.
func NewSet(tags ...Tag) Set {
	set := make(Set, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

// Add inserts t into s.
func (s Set) Add(t Tag) { s[t] = struct{}{} }

// Remove deletes t from s. Removing an absent tag is a no-op.
func (s Set) Remove(t Tag) { delete(s, t) }

// Contains reports whether t is a member of s. Membership is exact: a
// set holding the wildcard does not "contain" specific tokens.
func (s Set) Contains(t Tag) bool {
	_, ok := s[t]
	return ok
}

// HasAny reports whether s holds the wildcard.
func (s Set) HasAny() bool { return s.Contains(Any()) }

// Len returns the number of tags in s.
func (s Set) Len() int { return len(s) }

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	clone := make(Set, len(s))
	for t := range s {
		clone[t] = struct{}{}
	}
	return clone
}

// Union returns a new set containing every tag of s and other.
func (s Set) Union(other Set) Set {
	union := make(Set, len(s)+len(other))
	for t := range s {
		union[t] = struct{}{}
	}
	for t := range other {
		union[t] = struct{}{}
	}
	return union
}

// Specifics returns a new set with the wildcard removed.
func (s Set) Specifics() Set {
	result := make(Set, len(s))
	for t := range s {
		if !t.wildcard {
			result[t] = struct{}{}
		}
	}
	return result
}

// Tags returns the members of s in a stable order: the wildcard first,
// then specific tags sorted by token.
func (s Set) Tags() []Tag {
	tags := make([]Tag, 0, len(s))
	for t := range s {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].wildcard != tags[j].wildcard {
			return tags[i].wildcard
		}
		return tags[i].token < tags[j].token
	})
	return tags
}

// Equal reports whether s and other hold exactly the same tags.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if _, ok := other[t]; !ok {
			return false
		}
	}
	return true
}

// MarshalCBOR encodes the set as a sorted array of tags, so the same
// set always produces the same bytes.
func (s Set) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(s.Tags())
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Set) UnmarshalCBOR(data []byte) error {
	var tags []Tag
	if err := codec.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewSet(tags...)
	return nil
}

// Intersects reports whether a and b overlap: either side holds the
// wildcard, or both hold at least one common specific tag.
func Intersects(a, b Set) bool {
	if a.HasAny() || b.HasAny() {
		return true
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

// ErrWildcardOnResource is returned by [ValidateResourceTags] when a
// resource would carry the wildcard. A wildcard on the resource side
// would intersect every caller scope.
var ErrWildcardOnResource = errors.New("tag: the wildcard cannot be assigned to a resource")

// ErrNoTags is returned by [ValidateResourceTags] for an empty set.
var ErrNoTags = errors.New("tag: a resource needs at least one tag")

// ValidateResourceTags checks a tag set about to be stamped onto a host
// or secret.
func ValidateResourceTags(set Set) error {
	if set.Len() == 0 {
		return ErrNoTags
	}
	if set.HasAny() {
		return ErrWildcardOnResource
	}
	for t := range set {
		if t.IsZero() {
			return fmt.Errorf("tag: zero tag in resource set")
		}
	}
	return nil
}
