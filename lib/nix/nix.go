// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

// Package nix wraps the Nix commands the agent needs to converge a host:
// realising a system closure from a binary cache, pointing the system
// profile at it, and running its activation script.
//
// Binaries are resolved on PATH first, then in the Determinate Nix
// profile directory, so the agent works on NixOS and on hosts with a
// standalone Nix installation.
package nix

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// determinateProfileBin is where Determinate Nix installs its
	// binaries, outside PATH by default.
	determinateProfileBin = "/nix/var/nix/profiles/default/bin"

	// SystemProfile is the profile NixOS boots from.
	SystemProfile = "/nix/var/nix/profiles/system"

	// CurrentSystem links to the running system.
	CurrentSystem = "/run/current-system"

	// DefaultNixConf is read for the trusted public keys.
	DefaultNixConf = "/etc/nix/nix.conf"

	// defaultTrustedKey is the key of cache.nixos.org, used when
	// nix.conf names none.
	defaultTrustedKey = "cache.nixos.org-1:6NCHdD59X431o0gWypbMrAURkbJ16ZPMQFGspcDShjY="
)

// FindBinary resolves a Nix binary by name, checking PATH first and then
// the Determinate Nix installation directory.
func FindBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	determinatePath := filepath.Join(determinateProfileBin, name)
	if _, err := os.Stat(determinatePath); err == nil {
		return determinatePath, nil
	}

	return "", fmt.Errorf("%s not found on PATH or at %s", name, determinatePath)
}

// run resolves binaryName (or uses it as is when absolute), executes it
// and returns stdout. Stderr is captured for error messages.
func run(ctx context.Context, binaryName string, args []string, env []string) (string, error) {
	binaryPath := binaryName
	if !filepath.IsAbs(binaryName) {
		resolved, err := FindBinary(binaryName)
		if err != nil {
			return "", err
		}
		binaryPath = resolved
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binaryPath, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	if len(env) > 0 {
		command.Env = append(os.Environ(), env...)
	}

	if err := command.Run(); err != nil {
		return "", formatError(binaryName, args, &stderr, err)
	}
	return stdout.String(), nil
}

// RealiseOptions describe where a closure comes from.
type RealiseOptions struct {
	StorePath         string
	Substituter       string
	TrustedPublicKeys []string

	// NetrcFile holds credentials for the substituter. Optional.
	NetrcFile string
}

// Args returns the nix-store arguments for opts.
func (opts RealiseOptions) Args() []string {
	args := []string{"--realise", opts.StorePath}
	if opts.Substituter != "" {
		args = append(args, "--option", "extra-substituters", opts.Substituter)
	}
	if len(opts.TrustedPublicKeys) > 0 {
		args = append(args, "--option", "trusted-public-keys", strings.Join(opts.TrustedPublicKeys, " "))
	}
	args = append(args, "--option", "narinfo-cache-negative-ttl", "0")
	if opts.NetrcFile != "" {
		args = append(args, "--option", "netrc-file", opts.NetrcFile)
	}
	return args
}

// Realise fetches a store path and its closure.
func Realise(ctx context.Context, opts RealiseOptions) error {
	if _, err := StoreDirectory(opts.StorePath); err != nil {
		return err
	}
	_, err := run(ctx, "nix-store", opts.Args(), nil)
	return err
}

// SetProfile points profile at storePath.
func SetProfile(ctx context.Context, profile, storePath string) error {
	_, err := run(ctx, "nix-env", []string{"--profile", profile, "--set", storePath}, nil)
	return err
}

// SwitchToConfiguration runs the system's activation script. env is
// appended to the agent's environment.
func SwitchToConfiguration(ctx context.Context, storePath string, env []string) error {
	script := filepath.Join(storePath, "bin", "switch-to-configuration")
	_, err := run(ctx, script, []string{"switch"}, env)
	return err
}

// RunningSystem returns the store path of the running system.
func RunningSystem() (string, error) {
	target, err := filepath.EvalSymlinks(CurrentSystem)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", CurrentSystem, err)
	}
	return target, nil
}

// TrustedPublicKeys reads the trusted-public-keys setting from a
// nix.conf. A missing file or setting yields the cache.nixos.org key.
func TrustedPublicKeys(nixConf string) ([]string, error) {
	file, err := os.Open(nixConf)
	if errors.Is(err, os.ErrNotExist) {
		return []string{defaultTrustedKey}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", nixConf, err)
	}
	defer file.Close()
	return parseTrustedKeys(file)
}

func parseTrustedKeys(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "=")
		if !found || strings.TrimSpace(key) != "trusted-public-keys" {
			continue
		}
		if keys := strings.Fields(value); len(keys) > 0 {
			return keys, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading nix.conf: %w", err)
	}
	return []string{defaultTrustedKey}, nil
}

// MergeKeys returns the sorted union of key lists.
func MergeKeys(lists ...[]string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range lists {
		for _, key := range list {
			if key != "" && !seen[key] {
				seen[key] = true
				merged = append(merged, key)
			}
		}
	}
	sort.Strings(merged)
	return merged
}

const nixStorePrefix = "/nix/store/"

// StoreDirectory extracts the store directory from a path within it:
//
//	"/nix/store/abc-nixos-system/bin/switch-to-configuration" -> "/nix/store/abc-nixos-system"
func StoreDirectory(path string) (string, error) {
	if !strings.HasPrefix(path, nixStorePrefix) {
		return "", fmt.Errorf("path %q is not under /nix/store/", path)
	}
	remainder := path[len(nixStorePrefix):]
	if remainder == "" {
		return "", fmt.Errorf("path %q has no store entry name", path)
	}
	slashIndex := strings.IndexByte(remainder, '/')
	if slashIndex == -1 {
		return path, nil
	}
	return path[:len(nixStorePrefix)+slashIndex], nil
}

// formatError prefers stderr (which carries the actual nix error) over
// the generic exec error.
func formatError(binaryName string, args []string, stderr *bytes.Buffer, err error) error {
	commandString := binaryName + " " + strings.Join(args, " ")
	stderrText := strings.TrimSpace(stderr.String())
	if stderrText != "" {
		return fmt.Errorf("%s: %s", commandString, stderrText)
	}
	return fmt.Errorf("%s: %w", commandString, err)
}
