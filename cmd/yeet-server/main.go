// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/lib/authorization"
	"github.com/yeet-rs/yeet/lib/clock"
	"github.com/yeet-rs/yeet/lib/config"
	"github.com/yeet-rs/yeet/lib/hoststore"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/process"
	"github.com/yeet-rs/yeet/lib/sealed"
	"github.com/yeet-rs/yeet/lib/secret"
	"github.com/yeet-rs/yeet/lib/secretstore"
	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/servicetoken"
	"github.com/yeet-rs/yeet/lib/session"
	"github.com/yeet-rs/yeet/lib/sqlitepool"
	"github.com/yeet-rs/yeet/lib/tag"
	"github.com/yeet-rs/yeet/lib/version"
)

const (
	databaseFile = "yeet.db"
	storeKeyFile = "age.key"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("yeet-server", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "configuration file (default $"+config.EnvConfig+")")
	tags := flagSet.StringSlice("tag", nil, "tag name for put-secret (repeatable)")
	file := flagSet.String("file", "", "read the put-secret value from a file, - for stdin")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("yeet-server %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := process.SignalContext()
	defer stop()

	switch command := flagSet.Arg(0); command {
	case "", "serve":
		return serve(ctx, cfg, logger)
	case "key":
		return printKey(cfg)
	case "put-secret":
		if flagSet.NArg() != 2 {
			return fmt.Errorf("usage: yeet-server put-secret NAME --tag TAG [--file PATH]")
		}
		return putSecret(ctx, cfg, logger, flagSet.Arg(1), *tags, *file)
	default:
		return fmt.Errorf("unknown command %q (want serve, key or put-secret)", command)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// state is everything opened from the state directory.
type state struct {
	pool     *sqlitepool.Pool
	policies *authorization.Store
	secrets  *secretstore.Store
	hosts    *hoststore.Store
	storeKey *sealed.Keypair
}

func openState(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*state, error) {
	if err := config.EnsureState(cfg.Server.State); err != nil {
		return nil, err
	}

	storeKey, generated, err := sealed.LoadOrGenerateKeypair(filepath.Join(cfg.Server.State, storeKeyFile))
	if err != nil {
		return nil, fmt.Errorf("loading secret store key: %w", err)
	}
	if generated {
		logger.Info("generated secret store key", "recipient", storeKey.PublicKey)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:    filepath.Join(cfg.Server.State, databaseFile),
		Logger:  logger,
		Schemas: []string{authorization.Schema, secretstore.Schema, hoststore.Schema},
	})
	if err != nil {
		storeKey.Close()
		return nil, err
	}

	fail := func(err error) (*state, error) {
		pool.Close()
		storeKey.Close()
		return nil, err
	}
	policies, err := authorization.NewStore(ctx, pool, logger)
	if err != nil {
		return fail(err)
	}
	secrets, err := secretstore.NewStore(pool, storeKey, logger)
	if err != nil {
		return fail(err)
	}
	return &state{
		pool:     pool,
		policies: policies,
		secrets:  secrets,
		hosts:    hoststore.NewStore(pool, logger),
		storeKey: storeKey,
	}, nil
}

func (s *state) Close() error {
	return errors.Join(s.pool.Close(), s.storeKey.Close())
}

// bootstrap makes the init key's identity the first administrator. An
// empty policy store without an init key is an error: nobody could
// administer the server.
func bootstrap(ctx context.Context, policies *authorization.Store, initKey string, logger *slog.Logger) error {
	if len(policies.AllPolicies()) > 0 {
		return nil
	}
	if initKey == "" {
		return fmt.Errorf("no administrator exists; set server.init_key or YEET_INIT_KEY to an SSH public key file")
	}
	data, err := os.ReadFile(initKey)
	if err != nil {
		return fmt.Errorf("reading init key: %w", err)
	}
	publicKey, err := identity.ParseAuthorizedKey(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("init key %s: %w", initKey, err)
	}
	admin := identity.FromPublicKey(publicKey)
	granted, err := policies.Bootstrap(ctx, admin)
	if err != nil {
		return err
	}
	if granted {
		logger.Info("initial administrator created", "identity", admin.String())
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opened, err := openState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer opened.Close()

	if err := bootstrap(ctx, opened.policies, cfg.Server.InitKey, logger); err != nil {
		return err
	}

	signingKey, generated, err := servicetoken.LoadOrGenerateKeypair(cfg.Server.State)
	if err != nil {
		return err
	}
	if generated {
		logger.Info("generated server signing key")
	}

	clk := clock.Real()
	handler := session.NewHandler(session.Config{
		Hosts:     opened.hosts,
		Secrets:   opened.secrets,
		Policies:  opened.policies,
		Sealer:    sealed.NewService(opened.secrets, opened.storeKey, logger),
		StoreKey:  opened.storeKey,
		TicketKey: signingKey,
		TicketTTL: cfg.Server.TicketTTL,
		Clock:     clk,
		Logger:    logger,
	})
	server := service.NewServer(service.ServerConfig{
		SigningKey: signingKey,
		Clock:      clk,
		Logger:     logger,
	})
	handler.Register(server)

	listener, err := service.Listen(cfg.Server.Listen)
	if err != nil {
		return err
	}
	logger.Info("yeet-server running",
		"listen", cfg.Server.Listen,
		"state", cfg.Server.State,
		"version", version.Info(),
	)
	err = server.Serve(ctx, listener)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func printKey(cfg *config.Config) error {
	signingKey, err := servicetoken.LoadKeypair(cfg.Server.State)
	if err != nil {
		return err
	}
	authorized, err := identity.AuthorizedKey(signingKey.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	fmt.Println(authorized)
	return nil
}

// putSecret stores a secret without going through the protocol. It is
// how the first secrets get in before any administrator tooling is set
// up.
func putSecret(ctx context.Context, cfg *config.Config, logger *slog.Logger, name string, tagNames []string, path string) error {
	if err := secretstore.ValidateName(name); err != nil {
		return err
	}
	opened, err := openState(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer opened.Close()

	tags, err := resolveTags(opened.policies, tagNames)
	if err != nil {
		return err
	}

	plaintext, err := readPlaintext(path, name)
	if err != nil {
		return err
	}
	defer plaintext.Close()

	stored, err := opened.secrets.Put(ctx, name, plaintext, tags)
	if err != nil {
		return err
	}
	logger.Info("secret stored", "name", stored.Name, "version", stored.Version)
	return nil
}

// resolveTags maps tag names to tags. At least one is required.
func resolveTags(policies *authorization.Store, names []string) (tag.Set, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one --tag is required")
	}
	set := tag.NewSet()
	for _, name := range names {
		definition, ok := policies.TagByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown tag %q", name)
		}
		set.Add(definition.Tag)
	}
	return set, nil
}

// readPlaintext reads path ("-" for stdin), or prompts on the
// terminal when path is empty.
func readPlaintext(path, name string) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}
	plaintext, err := secret.ReadFromTerminal(int(os.Stdin.Fd()), fmt.Sprintf("value for %s: ", name))
	if err != nil {
		return nil, fmt.Errorf("%w (use --file - to read stdin)", err)
	}
	return plaintext, nil
}
