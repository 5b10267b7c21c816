// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package tag

import (
	"errors"
	"testing"

	"github.com/yeet-rs/yeet/lib/codec"
)

func TestIntersects(t *testing.T) {
	t1, t2, t3 := Specific("t1"), Specific("t2"), Specific("t3")

	tests := []struct {
		name string
		a, b Set
		want bool
	}{
		{"both empty", nil, nil, false},
		{"shared token", NewSet(t1, t2), NewSet(t2, t3), true},
		{"disjoint", NewSet(t1), NewSet(t2, t3), false},
		{"wildcard left", NewSet(Any()), NewSet(t3), true},
		{"wildcard right", NewSet(t1), NewSet(Any()), true},
		{"wildcard against empty", NewSet(Any()), nil, true},
		{"empty against tokens", nil, NewSet(t1), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Intersects(test.a, test.b); got != test.want {
				t.Errorf("Intersects(a, b) = %v, want %v", got, test.want)
			}
			if got := Intersects(test.b, test.a); got != test.want {
				t.Errorf("Intersects(b, a) = %v, want %v (not symmetric)", got, test.want)
			}
		})
	}
}

func TestWildcardDoesNotCollideWithToken(t *testing.T) {
	// A token spelled like the display form of the wildcard is still an
	// ordinary token.
	lookalike := Specific("<any>")
	if lookalike.IsAny() {
		t.Fatal("Specific(\"<any>\").IsAny() = true")
	}
	if Intersects(NewSet(lookalike), NewSet(Specific("other"))) {
		t.Error("lookalike token intersected an unrelated set")
	}
	if NewSet(Any()).Contains(lookalike) {
		t.Error("wildcard set reports exact membership of a token")
	}
}

func TestTagsOrder(t *testing.T) {
	set := NewSet(Specific("b"), Any(), Specific("a"))
	tags := set.Tags()
	if len(tags) != 3 {
		t.Fatalf("Tags() returned %d tags, want 3", len(tags))
	}
	if !tags[0].IsAny() {
		t.Errorf("Tags()[0] = %s, want wildcard first", tags[0])
	}
	if tags[1].Token() != "a" || tags[2].Token() != "b" {
		t.Errorf("Tags() = %v, want [<any> a b]", tags)
	}
}

func TestSpecifics(t *testing.T) {
	set := NewSet(Any(), Specific("a"))
	specifics := set.Specifics()
	if specifics.HasAny() {
		t.Error("Specifics() kept the wildcard")
	}
	if !specifics.Contains(Specific("a")) || specifics.Len() != 1 {
		t.Errorf("Specifics() = %v, want {a}", specifics.Tags())
	}
	if !set.HasAny() {
		t.Error("Specifics() mutated the receiver")
	}
}

func TestSetCBOR(t *testing.T) {
	original := NewSet(Any(), Specific("prod"), Specific("db"))
	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded Set
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !decoded.Equal(original) {
		t.Errorf("decoded = %v, want %v", decoded.Tags(), original.Tags())
	}

	again, err := codec.Marshal(decoded)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(again) != string(data) {
		t.Error("encoding is not deterministic across equal sets")
	}
}

func TestUnmarshalRejectsMalformedTags(t *testing.T) {
	for _, wire := range []wireTag{
		{},
		{Any: true, Token: "x"},
	} {
		data, err := codec.Marshal(wire)
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		var decoded Tag
		if err := codec.Unmarshal(data, &decoded); err == nil {
			t.Errorf("Unmarshal(%+v) succeeded, want error", wire)
		}
	}
}

func TestValidateResourceTags(t *testing.T) {
	if err := ValidateResourceTags(NewSet(Specific("a"))); err != nil {
		t.Errorf("ValidateResourceTags({a}) error: %v", err)
	}
	if err := ValidateResourceTags(nil); !errors.Is(err, ErrNoTags) {
		t.Errorf("ValidateResourceTags(nil) error = %v, want ErrNoTags", err)
	}
	if err := ValidateResourceTags(NewSet(Specific("a"), Any())); !errors.Is(err, ErrWildcardOnResource) {
		t.Errorf("ValidateResourceTags({<any> a}) error = %v, want ErrWildcardOnResource", err)
	}
}
