// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "yeet.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Agent.HostKey != "/etc/ssh/ssh_host_ed25519_key" {
		t.Errorf("expected host_key=/etc/ssh/ssh_host_ed25519_key, got %s", cfg.Agent.HostKey)
	}
	if !cfg.Agent.Chown {
		t.Error("expected chown=true")
	}
	if cfg.Server.TicketTTL != 10*time.Minute {
		t.Errorf("expected ticket_ttl=10m, got %s", cfg.Server.TicketTTL)
	}
}

func TestLoad_WithoutConfig(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv("YEET_HOST", "")
	t.Setenv("YEET_PORT", "9000")
	t.Setenv("YEET_STATE", "/srv/yeet")
	t.Setenv("YEET_INIT_KEY", "/etc/yeet/admin.pub")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Listen != "localhost:9000" {
		t.Errorf("expected listen=localhost:9000, got %s", cfg.Server.Listen)
	}
	if cfg.Server.State != "/srv/yeet" {
		t.Errorf("expected state=/srv/yeet, got %s", cfg.Server.State)
	}
	if cfg.Server.InitKey != "/etc/yeet/admin.pub" {
		t.Errorf("expected init_key=/etc/yeet/admin.pub, got %s", cfg.Server.InitKey)
	}
}

func TestLoad_WithYeetConfig(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
server:
  state: /test/state
`)
	t.Setenv(EnvConfig, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Server.State != "/test/state" {
		t.Errorf("expected state=/test/state, got %s", cfg.Server.State)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging

server:
  listen: unix:/run/yeet/yeet.sock
  ticket_ttl: 2m

agent:
  server: yeet.example:4337
  server_key: ssh-ed25519 AAAA
  state: ${HOME}/agent
  chown: false
  poll_interval: 30s
`)
	t.Setenv("HOME", "/home/ops")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Listen != "unix:/run/yeet/yeet.sock" {
		t.Errorf("expected listen=unix:/run/yeet/yeet.sock, got %s", cfg.Server.Listen)
	}
	if cfg.Server.TicketTTL != 2*time.Minute {
		t.Errorf("expected ticket_ttl=2m, got %s", cfg.Server.TicketTTL)
	}
	if cfg.Agent.State != "/home/ops/agent" {
		t.Errorf("expected state=/home/ops/agent, got %s", cfg.Agent.State)
	}
	if cfg.Agent.Chown {
		t.Error("expected chown=false from file")
	}
	if cfg.Agent.PollInterval != 30*time.Second {
		t.Errorf("expected poll_interval=30s, got %s", cfg.Agent.PollInterval)
	}
	// Unset fields keep their defaults.
	if cfg.Agent.FetchTimeout != 30*time.Minute {
		t.Errorf("expected fetch_timeout=30m, got %s", cfg.Agent.FetchTimeout)
	}
	if err := cfg.ValidateAgent(); err != nil {
		t.Errorf("ValidateAgent() error: %v", err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "server: [unterminated")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
environment: production

server:
  state: /default/state

agent:
  poll_interval: 1m

production:
  server:
    state: /prod/state
  agent:
    poll_interval: 5m
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.State != "/prod/state" {
		t.Errorf("expected state=/prod/state, got %s", cfg.Server.State)
	}
	if cfg.Agent.PollInterval != 5*time.Minute {
		t.Errorf("expected poll_interval=5m, got %s", cfg.Agent.PollInterval)
	}
}

func TestProductionListenDefault(t *testing.T) {
	t.Setenv("YEET_HOST", "")
	t.Setenv("YEET_PORT", "")

	cfg, err := LoadFile(writeConfig(t, "environment: production\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:4337" {
		t.Errorf("expected listen=127.0.0.1:4337, got %s", cfg.Server.Listen)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/yeet",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/yeet",
		},
		{
			input:    "${YEET_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}:${B}",
			vars:     map[string]string{"A": "localhost", "B": "4337"},
			expected: "localhost:4337",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unix listener", func(c *Config) { c.Server.Listen = "unix:/run/yeet.sock" }, false},
		{"invalid environment", func(c *Config) { c.Environment = "invalid" }, true},
		{"listen without port", func(c *Config) { c.Server.Listen = "localhost" }, true},
		{"empty state", func(c *Config) { c.Server.State = "" }, true},
		{"zero ticket ttl", func(c *Config) { c.Server.TicketTTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.Listen = "localhost:4337"
			cfg.Server.State = "/var/lib/yeet"
			tt.modify(cfg)

			err := cfg.ValidateServer()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAgent(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing server", func(c *Config) { c.Agent.Server = "" }, true},
		{"missing server key", func(c *Config) { c.Agent.ServerKey = "" }, true},
		{"relative state", func(c *Config) { c.Agent.State = "state" }, true},
		{"zero fetch timeout", func(c *Config) { c.Agent.FetchTimeout = 0 }, true},
		{"negative poll interval", func(c *Config) { c.Agent.PollInterval = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Agent.Server = "yeet.example:4337"
			cfg.Agent.ServerKey = "ssh-ed25519 AAAA"
			tt.modify(cfg)

			err := cfg.ValidateAgent()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsureState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "yeet", "state")
	if err := EnsureState(dir); err != nil {
		t.Fatalf("EnsureState failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("state dir not created: %v", err)
	}
	if !info.IsDir() || info.Mode().Perm() != 0o700 {
		t.Errorf("state dir mode = %v, want a 0700 directory", info.Mode())
	}
}
