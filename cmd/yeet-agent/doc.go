// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// yeet-agent keeps a NixOS host on the system its yeet-server assigns.
//
// Usage:
//
//	yeet-agent [--config FILE] [run]
//	yeet-agent [--config FILE] status
//
// "run" settles any activation interrupted by a crash or reboot, then
// polls the server and converges the host. It authenticates with the
// SSH host key, which also opens the secrets sealed to the host.
// "status" prints the current secret generation and any activation in
// flight.
package main
