// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Command zimi is the process entry point: flag/config parsing and log
// setup (spec.md §1's "process CLI", explicitly peripheral) followed by a
// call into internal/server for the actual engineering.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/epheterson/zimi/internal/buildinfo"
	"github.com/epheterson/zimi/internal/config"
	"github.com/epheterson/zimi/internal/logger"
	"github.com/epheterson/zimi/internal/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("zimi exited with error")
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "zimi",
		Short:   "Offline knowledge server for ZIM archives",
		Version: buildinfo.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.toml")
	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newConfigCommand(&configPath))

	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the zimi HTTP server (default when no subcommand is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(buildinfo.String())
			return nil
		},
	}
}

func runServe(configPath string) error {
	appCfg, err := config.New(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Configure(logger.Config{
		Level:      appCfg.Config.LogLevel,
		Path:       appCfg.Config.LogPath,
		MaxSizeMB:  appCfg.Config.LogMaxSize,
		MaxBackups: appCfg.Config.LogMaxBackups,
	})

	log.Info().Str("version", buildinfo.Version).Str("config", configPath).Msg("starting zimi")

	srv, err := server.New(appCfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// defaultConfigPath mirrors qui's convention of a platform-appropriate
// config directory, defaulting to ./config.toml when $HOME is unknown.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "zimi", "config.toml")
}
