// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epheterson/zimi/internal/config"
	"github.com/epheterson/zimi/internal/domain"
)

// newConfigCommand prints the effective configuration so an operator can
// confirm what a deployment actually resolved to (file + ZIMI__ env
// overrides), with the management password redacted rather than echoed.
func newConfigCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect zimi's effective configuration",
	}
	cmd.AddCommand(newConfigPrintCommand(configPath))
	return cmd
}

func newConfigPrintCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the loaded config with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := config.New(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			c := *appCfg.Config
			if c.ManagePassword != "" {
				if domain.IsRedactedValue(c.ManagePassword) {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: managePassword looks already redacted; check config.toml wasn't saved from this command's own output")
				}
				c.ManagePassword = domain.RedactString(c.ManagePassword)
			}

			fmt.Printf("host            = %s\n", c.Host)
			fmt.Printf("port            = %d\n", c.Port)
			fmt.Printf("archiveDir      = %s\n", c.ArchiveDir)
			fmt.Printf("dataDir         = %s\n", c.DataDir)
			fmt.Printf("baseUrl         = %s\n", c.BaseURL)
			fmt.Printf("managePassword  = %s\n", c.ManagePassword)
			fmt.Printf("manageEnabled   = %t\n", c.ManageEnabled)
			fmt.Printf("rateLimit       = %d\n", c.RateLimit)
			fmt.Printf("autoUpdate      = %t\n", c.AutoUpdate)
			fmt.Printf("autoUpdateFreq  = %s\n", c.AutoUpdateFreq)
			fmt.Printf("logLevel        = %s\n", c.LogLevel)
			fmt.Printf("logPath         = %s\n", c.LogPath)
			return nil
		},
	}
}
