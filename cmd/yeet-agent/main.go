// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/yeet-rs/yeet/lib/agent"
	"github.com/yeet-rs/yeet/lib/config"
	"github.com/yeet-rs/yeet/lib/generation"
	"github.com/yeet-rs/yeet/lib/identity"
	"github.com/yeet-rs/yeet/lib/nix"
	"github.com/yeet-rs/yeet/lib/process"
	"github.com/yeet-rs/yeet/lib/service"
	"github.com/yeet-rs/yeet/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("yeet-agent", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "configuration file (default $"+config.EnvConfig+")")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("yeet-agent %s\n", version.Info())
		return nil
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	switch command := flagSet.Arg(0); command {
	case "", "run":
		if err := cfg.ValidateAgent(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		ctx, stop := process.SignalContext()
		defer stop()
		return runAgent(ctx, cfg, logger)
	case "status":
		generations, err := generation.Open(generation.Config{Root: cfg.Agent.State, Logger: logger})
		if err != nil {
			return err
		}
		return printStatus(os.Stdout, generations)
	default:
		return fmt.Errorf("unknown command %q (want run or status)", command)
	}
}

func runAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hostKey, err := identity.LoadKey(cfg.Agent.HostKey)
	if err != nil {
		return fmt.Errorf("loading host key: %w", err)
	}
	defer hostKey.Close()

	serverKey, err := identity.ParseAuthorizedKey(cfg.Agent.ServerKey)
	if err != nil {
		return fmt.Errorf("agent.server_key: %w", err)
	}

	if err := config.EnsureState(cfg.Agent.State); err != nil {
		return err
	}
	generations, err := generation.Open(generation.Config{
		Root:   cfg.Agent.State,
		Sink:   generation.FileSink{Chown: cfg.Agent.Chown},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	trustedKeys, err := nix.TrustedPublicKeys(cfg.Agent.NixConf)
	if err != nil {
		return err
	}

	client := service.NewClient(cfg.Agent.Server, hostKey, serverKey)
	updater := agent.New(agent.Config{
		Server:         agent.NewServerClient(client),
		Generations:    generations,
		HostKey:        hostKey,
		Fetcher:        agent.NixFetcher{TrustedPublicKeys: trustedKeys},
		Activator:      agent.NixActivator{},
		FetchTimeout:   cfg.Agent.FetchTimeout,
		RequestTimeout: cfg.Agent.RequestTimeout,
		PollInterval:   cfg.Agent.PollInterval,
		RetryInterval:  cfg.Agent.RetryInterval,
		Logger:         logger,
	})

	logger.Info("yeet-agent running",
		"identity", hostKey.Identity().String(),
		"server", cfg.Agent.Server,
		"state", cfg.Agent.State,
		"version", version.Info(),
	)
	err = updater.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func printStatus(w io.Writer, generations *generation.Store) error {
	current, ok, err := generations.Current()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "no generation committed")
	} else {
		fmt.Fprintf(w, "generation %d\n  system:  %s\n  created: %s\n  secrets: %d\n",
			current.Sequence, current.StorePath, current.CreatedAt.Format(time.RFC3339), len(current.Files))
	}

	record, inFlight, err := generations.ReadRecord()
	if err != nil {
		return err
	}
	if inFlight {
		fmt.Fprintf(w, "activation in flight since %s\n  generation: %d\n  system:     %s\n",
			record.StartedAt.Format(time.RFC3339), record.Sequence, record.StorePath)
	}
	return nil
}
