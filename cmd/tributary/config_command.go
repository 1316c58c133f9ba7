// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tributary/tributary/internal/config"
)

func RunConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration inspection and updates",
	}

	cmd.AddCommand(runConfigShowCommand())
	cmd.AddCommand(runConfigSetLogLevelCommand())
	return cmd
}

func runConfigShowCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configPath)
			if err != nil {
				return err
			}

			c := cfg.Config
			cmd.Printf("Config file: %s\n", cfg.GetConfigPath())
			cmd.Printf("Listen: %s:%d (base URL %s)\n", c.Host, c.Port, c.NormalizedBaseURL())
			cmd.Printf("Log level: %s\n", c.LogLevel)
			if c.LogPath != "" {
				cmd.Printf("Log file: %s (max %d MB, %d backups)\n", c.LogPath, c.LogMaxSize, c.LogMaxBackups)
			}
			cmd.Printf("Data dir: %s\n", cfg.GetDataDir())
			cmd.Printf("TMDB API key: %s\n", maskSecret(c.TMDBAPIKey))

			cmd.Printf("Cache: %s (ttl %s)\n", c.Cache.Backend, c.Cache.TTL)
			if strings.ToLower(c.Cache.Backend) == "sqlite" {
				cmd.Printf("Cache file: %s\n", cfg.GetCachePath())
			}

			cmd.Printf("Anime DB: enabled=%v detail=%s tieBreak=%v refresh=%s\n",
				c.AnimeDB.Enabled, c.AnimeDB.DetailLevel, c.AnimeDB.EpisodeTieBreak, c.AnimeDB.RefreshInterval)

			if c.MetricsEnabled {
				cmd.Printf("Metrics: %s:%d\n", c.MetricsHost, c.MetricsPort)
			}

			cmd.Printf("Addons: %d\n", len(c.Addons))
			for _, addon := range c.Addons {
				timeout := c.AddonTimeout
				if addon.Timeout > 0 {
					timeout = addon.Timeout
				}
				cmd.Printf("  - %s: %s (timeout %s)\n", addon.Name, addon.URL, timeout)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}

func runConfigSetLogLevelCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "set-log-level [TRACE|DEBUG|INFO|WARN|ERROR]",
		Short: "Persist a new log level into the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configPath)
			if err != nil {
				return err
			}

			level := strings.ToUpper(strings.TrimSpace(args[0]))
			switch level {
			case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
			default:
				return fmt.Errorf("invalid log level %q (valid: TRACE, DEBUG, INFO, WARN, ERROR)", args[0])
			}

			c := cfg.Config
			if err := cfg.UpdateLogSettings(level, c.LogPath, c.LogMaxSize, c.LogMaxBackups); err != nil {
				return fmt.Errorf("update log settings: %w", err)
			}

			cmd.Printf("Log level set to %s\n", level)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")

	return cmd
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
