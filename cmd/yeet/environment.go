// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/yeet-rs/yeet/cmd/yeet/tagpick"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/secret"
	"github.com/yeet-rs/yeet/lib/service"
)

// Environment variables backing the connection flags.
const (
	envServer    = "YEET_SERVER"
	envServerKey = "YEET_SERVER_KEY"
	envKey       = "YEET_KEY"

	defaultServer = "localhost:4337"
)

// caller is the part of *service.Client the commands use.
type caller interface {
	Call(ctx context.Context, action string, body any, result any) error
}

// environment holds what commands need from the outside world.
type environment struct {
	stdout io.Writer
	stderr io.Writer

	// dial opens a client for the connection flags. The returned
	// function releases the private key.
	dial func(connection) (caller, func(), error)

	// choose asks the user to pick tags. Nil when there is no
	// terminal to ask on.
	choose func(title string, options []tagpick.Option) ([]tagpick.Option, error)

	// readValue reads a secret value from path ("-" for stdin), or
	// prompts for it when path is empty.
	readValue func(path, name string) (*secret.Buffer, error)
}

func defaultEnvironment() *environment {
	env := &environment{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		dial:      connection.dial,
		readValue: readValue,
	}
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd())) {
		env.choose = func(title string, options []tagpick.Option) ([]tagpick.Option, error) {
			return tagpick.Choose(title, options, os.Stdin, os.Stderr)
		}
	}
	return env
}

// connection holds the flags every server command takes.
type connection struct {
	server    string
	serverKey string
	key       string
}

func (c *connection) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.server, "server", envOr(envServer, defaultServer),
		"server address, host:port or unix:PATH ($"+envServer+")")
	flagSet.StringVar(&c.serverKey, "server-key", os.Getenv(envServerKey),
		"server public key as an authorized_keys line, or a file holding one ($"+envServerKey+")")
	flagSet.StringVar(&c.key, "key", envOr(envKey, defaultKeyPath()),
		"SSH ed25519 private key to sign requests with ($"+envKey+")")
}

func (c connection) dial() (caller, func(), error) {
	if c.serverKey == "" {
		return nil, nil, fmt.Errorf("the server key is required (--server-key or $%s; print it with \"yeet-server key\")", envServerKey)
	}
	serverKey, err := parsePublicKey(c.serverKey)
	if err != nil {
		return nil, nil, fmt.Errorf("--server-key: %w", err)
	}
	key, err := identity.LoadKey(c.key)
	if err != nil {
		return nil, nil, err
	}
	release := func() { key.Close() }
	return service.NewClient(c.server, key, serverKey), release, nil
}

// parsePublicKey accepts an authorized_keys line, or the path of a file
// whose first line is one.
func parsePublicKey(value string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(value, "ssh-") {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, err
		}
		value, _, _ = strings.Cut(string(data), "\n")
	}
	return identity.ParseAuthorizedKey(strings.TrimSpace(value))
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id_ed25519"
	}
	return filepath.Join(home, ".ssh", "id_ed25519")
}

func readValue(path, name string) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}
	value, err := secret.ReadFromTerminal(int(os.Stdin.Fd()), fmt.Sprintf("value for %s: ", name))
	if err != nil {
		return nil, fmt.Errorf("%w (use --file - to read stdin)", err)
	}
	return value, nil
}

// withClient dials, runs fn and releases the key.
func (env *environment) withClient(conn connection, fn func(client caller) error) error {
	client, release, err := env.dial(conn)
	if err != nil {
		return err
	}
	defer release()
	return fn(client)
}
