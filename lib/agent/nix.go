// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"

	"github.com/yeet-rs/yeet/lib/nix"
	"github.com/yeet-rs/yeet/lib/session"
)

// SecretsDirEnv names the environment variable that tells the system
// activation where the new generation's secrets are.
const SecretsDirEnv = "YEET_SECRETS_DIR"

// FetchRequest is what a Fetcher needs to fetch a target.
type FetchRequest struct {
	Target session.RemoteStorePath

	// NetrcFile is the current generation's substituter credential.
	// Empty when the host has none yet.
	NetrcFile string
}

// Fetcher makes a store path available locally.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) error
}

// Activation is what an Activator activates.
type Activation struct {
	StorePath string

	// SecretsDir is the pending generation directory.
	SecretsDir string
}

// Activator switches the host to a system.
type Activator interface {
	Activate(ctx context.Context, activation Activation) error
}

// NixFetcher realises targets with nix-store.
type NixFetcher struct {
	// TrustedPublicKeys are trusted next to the target's own cache key.
	TrustedPublicKeys []string
}

func (f NixFetcher) Fetch(ctx context.Context, request FetchRequest) error {
	keys := f.TrustedPublicKeys
	if request.Target.PublicKey != "" {
		keys = nix.MergeKeys(keys, []string{request.Target.PublicKey})
	}
	return nix.Realise(ctx, nix.RealiseOptions{
		StorePath:         request.Target.StorePath,
		Substituter:       request.Target.Substitutor,
		TrustedPublicKeys: keys,
		NetrcFile:         request.NetrcFile,
	})
}

// NixActivator points the system profile at the store path and runs
// its switch-to-configuration.
type NixActivator struct {
	// Profile defaults to nix.SystemProfile.
	Profile string
}

func (a NixActivator) Activate(ctx context.Context, activation Activation) error {
	profile := a.Profile
	if profile == "" {
		profile = nix.SystemProfile
	}
	if err := nix.SetProfile(ctx, profile, activation.StorePath); err != nil {
		return fmt.Errorf("setting profile: %w", err)
	}
	env := []string{SecretsDirEnv + "=" + activation.SecretsDir}
	return nix.SwitchToConfiguration(ctx, activation.StorePath, env)
}
