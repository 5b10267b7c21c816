// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/config"
	"github.com/yeet-rs/yeet/lib/identity"
)

func testState(t *testing.T) (*config.Config, *state) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.State = filepath.Join(t.TempDir(), "state")
	opened, err := openState(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openState() error: %v", err)
	}
	t.Cleanup(func() { opened.Close() })
	return cfg, opened
}

func TestBootstrap(t *testing.T) {
	_, opened := testState(t)
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	if err := bootstrap(ctx, opened.policies, "", logger); err == nil {
		t.Error("bootstrap() without an init key succeeded on an empty store")
	}

	admin, err := identity.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer admin.Close()
	authorized, err := identity.AuthorizedKey(admin.Public())
	if err != nil {
		t.Fatalf("AuthorizedKey() error: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "admin.pub")
	if err := os.WriteFile(keyPath, []byte(authorized+"\n"), 0o644); err != nil {
		t.Fatalf("writing init key: %v", err)
	}

	if err := bootstrap(ctx, opened.policies, keyPath, logger); err != nil {
		t.Fatalf("bootstrap() error: %v", err)
	}
	policies := opened.policies.Policies(admin.Identity())
	if len(policies) != 1 {
		t.Fatalf("administrator policies = %d, want 1", len(policies))
	}
	if !opened.policies.AuthorizedScope(admin.Identity(), authorization.SecretCreateOrUpdate).HasAny() {
		t.Error("administrator lacks the wildcard scope")
	}

	// Once an administrator exists the init key is not needed.
	if err := bootstrap(ctx, opened.policies, "", logger); err != nil {
		t.Errorf("second bootstrap() error: %v", err)
	}
}

func TestResolveTags(t *testing.T) {
	_, opened := testState(t)
	definition, err := opened.policies.CreateTag(context.Background(), "prod")
	if err != nil {
		t.Fatalf("CreateTag() error: %v", err)
	}

	set, err := resolveTags(opened.policies, []string{"prod"})
	if err != nil {
		t.Fatalf("resolveTags() error: %v", err)
	}
	if set.Len() != 1 || !set.Contains(definition.Tag) {
		t.Errorf("resolveTags() = %v, want {prod}", set.Tags())
	}
	if _, err := resolveTags(opened.policies, []string{"staging"}); err == nil {
		t.Error("resolveTags() accepted an unknown tag")
	}
	if _, err := resolveTags(opened.policies, nil); err == nil {
		t.Error("resolveTags() accepted no tags")
	}
}

func TestOpenStateReusesKeys(t *testing.T) {
	cfg := config.Default()
	cfg.Server.State = filepath.Join(t.TempDir(), "state")
	opened, err := openState(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openState() error: %v", err)
	}
	recipient := opened.storeKey.PublicKey
	if err := opened.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := openState(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("openState() error: %v", err)
	}
	defer reopened.Close()
	if reopened.storeKey.PublicKey != recipient {
		t.Error("reopening the state generated a new store key")
	}
}
