// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the shared CBOR configuration for yeet.
//
// CBOR is used for everything that crosses a process boundary inside
// the system: the server protocol (requests, responses, signed
// envelopes and session tickets), tag sets stored in SQLite columns,
// and the agent's on-disk generation metadata and activation record.
// JSON is reserved for human-authored or human-read formats (the
// secrets manifest and CLI output).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical value always produces the same bytes. This matters for
// anything that is signed: the signature covers the encoded form.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever CBOR. A `json` tag marks
// a type that is serialized as both JSON and CBOR (fxamacker/cbor falls
// back to `json` tags). Never put both on one field.
package codec
