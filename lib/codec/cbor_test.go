// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

func TestMarshalDeterministicMapOrder(t *testing.T) {
	first, err := Marshal(map[string]int{"b": 2, "a": 1, "c": 3})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal() produced different bytes for equal maps")
		}
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	data := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	var decoded map[string]int
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatalf("Unmarshal() accepted duplicate map keys: %v", decoded)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "x"}})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["outer"])
	}
}

func TestTimePrecision(t *testing.T) {
	type record struct {
		At time.Time `cbor:"1,keyasint"`
	}
	original := record{At: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !decoded.At.Equal(original.At) {
		t.Errorf("At = %v, want %v", decoded.At, original.At)
	}
}
