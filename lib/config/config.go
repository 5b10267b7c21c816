// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "YEET_CONFIG"

// Config is the configuration shared by yeet-server and yeet-agent.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Server ServerConfig `yaml:"server"`
	Agent  AgentConfig  `yaml:"agent"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server *ServerConfig `yaml:"server,omitempty"`
	Agent  *AgentConfig  `yaml:"agent,omitempty"`
}

// ServerConfig configures yeet-server.
type ServerConfig struct {
	// Listen is "host:port" or "unix:/path".
	// Default: ${YEET_HOST:-localhost}:${YEET_PORT:-4337}
	Listen string `yaml:"listen"`

	// State is the directory holding the database and server keys.
	// Default: ${YEET_STATE:-/var/lib/yeet}
	State string `yaml:"state"`

	// InitKey is an SSH ed25519 public key file. Its identity becomes
	// the first administrator when no policy exists yet.
	// Default: ${YEET_INIT_KEY}
	InitKey string `yaml:"init_key"`

	// TicketTTL bounds the time between a check and the secret request
	// that follows it.
	// Default: 10m
	TicketTTL time.Duration `yaml:"ticket_ttl"`
}

// AgentConfig configures yeet-agent.
type AgentConfig struct {
	// Server is the yeet-server address.
	Server string `yaml:"server"`

	// ServerKey is the server's signing key in authorized_keys form.
	ServerKey string `yaml:"server_key"`

	// HostKey is the SSH host key the agent authenticates and opens
	// secrets with.
	// Default: /etc/ssh/ssh_host_ed25519_key
	HostKey string `yaml:"host_key"`

	// State holds the secret generations.
	// Default: /var/lib/yeet-agent
	State string `yaml:"state"`

	// NixConf is read for the trusted public keys.
	// Default: /etc/nix/nix.conf
	NixConf string `yaml:"nix_conf"`

	// Chown applies the manifest's owner and group to secret files.
	// Default: true
	Chown bool `yaml:"chown"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Default returns the default configuration. Variables are expanded
// once loading is complete, so the YEET_* variables apply without a
// config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Listen:    "${YEET_HOST:-localhost}:${YEET_PORT:-4337}",
			State:     "${YEET_STATE:-/var/lib/yeet}",
			InitKey:   "${YEET_INIT_KEY}",
			TicketTTL: 10 * time.Minute,
		},
		Agent: AgentConfig{
			HostKey:        "/etc/ssh/ssh_host_ed25519_key",
			State:          "/var/lib/yeet-agent",
			NixConf:        "/etc/nix/nix.conf",
			Chown:          true,
			PollInterval:   time.Minute,
			RetryInterval:  15 * time.Second,
			FetchTimeout:   30 * time.Minute,
			RequestTimeout: time.Minute,
		},
	}
}

// Load loads the file named by YEET_CONFIG, or the defaults when it is
// not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production never binds beyond loopback by default.
		if overrides == nil && c.Server.Listen == Default().Server.Listen {
			overrides = &ConfigOverrides{
				Server: &ServerConfig{Listen: "${YEET_HOST:-127.0.0.1}:${YEET_PORT:-4337}"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if server := overrides.Server; server != nil {
		if server.Listen != "" {
			c.Server.Listen = server.Listen
		}
		if server.State != "" {
			c.Server.State = server.State
		}
		if server.InitKey != "" {
			c.Server.InitKey = server.InitKey
		}
		if server.TicketTTL != 0 {
			c.Server.TicketTTL = server.TicketTTL
		}
	}

	if agent := overrides.Agent; agent != nil {
		if agent.Server != "" {
			c.Agent.Server = agent.Server
		}
		if agent.ServerKey != "" {
			c.Agent.ServerKey = agent.ServerKey
		}
		if agent.HostKey != "" {
			c.Agent.HostKey = agent.HostKey
		}
		if agent.State != "" {
			c.Agent.State = agent.State
		}
		if agent.NixConf != "" {
			c.Agent.NixConf = agent.NixConf
		}
		if agent.PollInterval != 0 {
			c.Agent.PollInterval = agent.PollInterval
		}
		if agent.RetryInterval != 0 {
			c.Agent.RetryInterval = agent.RetryInterval
		}
		if agent.FetchTimeout != 0 {
			c.Agent.FetchTimeout = agent.FetchTimeout
		}
		if agent.RequestTimeout != 0 {
			c.Agent.RequestTimeout = agent.RequestTimeout
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// addresses and paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Server.Listen = expandVars(c.Server.Listen, vars)
	c.Server.State = expandVars(c.Server.State, vars)
	c.Server.InitKey = expandVars(c.Server.InitKey, vars)
	c.Agent.Server = expandVars(c.Agent.Server, vars)
	c.Agent.HostKey = expandVars(c.Agent.HostKey, vars)
	c.Agent.State = expandVars(c.Agent.State, vars)
	c.Agent.NixConf = expandVars(c.Agent.NixConf, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ValidateServer checks the fields yeet-server needs.
func (c *Config) ValidateServer() error {
	errs := c.validateEnvironment()

	if c.Server.Listen == "" || (!strings.HasPrefix(c.Server.Listen, "unix:") && !strings.Contains(c.Server.Listen, ":")) {
		errs = append(errs, fmt.Errorf("server.listen must be host:port or unix:/path, got %q", c.Server.Listen))
	}
	if c.Server.State == "" {
		errs = append(errs, fmt.Errorf("server.state is required"))
	}
	if c.Server.TicketTTL <= 0 {
		errs = append(errs, fmt.Errorf("server.ticket_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateAgent checks the fields yeet-agent needs.
func (c *Config) ValidateAgent() error {
	errs := c.validateEnvironment()

	if c.Agent.Server == "" {
		errs = append(errs, fmt.Errorf("agent.server is required"))
	}
	if c.Agent.ServerKey == "" {
		errs = append(errs, fmt.Errorf("agent.server_key is required"))
	}
	if c.Agent.HostKey == "" {
		errs = append(errs, fmt.Errorf("agent.host_key is required"))
	}
	if c.Agent.State == "" || !filepath.IsAbs(c.Agent.State) {
		errs = append(errs, fmt.Errorf("agent.state must be an absolute path, got %q", c.Agent.State))
	}
	for _, duration := range []struct {
		name  string
		value time.Duration
	}{
		{"agent.poll_interval", c.Agent.PollInterval},
		{"agent.retry_interval", c.Agent.RetryInterval},
		{"agent.fetch_timeout", c.Agent.FetchTimeout},
		{"agent.request_timeout", c.Agent.RequestTimeout},
	} {
		if duration.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", duration.name))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) validateEnvironment() []error {
	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		return []error{fmt.Errorf("invalid environment: %s", c.Environment)}
	}
	return nil
}

// EnsureState creates dir with mode 0700 if it does not exist.
func EnsureState(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
