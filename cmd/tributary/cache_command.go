// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tributary/tributary/internal/cache"
	"github.com/tributary/tributary/internal/config"
)

func RunCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache maintenance",
	}

	cmd.AddCommand(runCachePurgeCommand())
	cmd.AddCommand(runCacheKeysCommand())
	return cmd
}

// openPersistentCache opens the configured sqlite cache for offline
// maintenance. The memory backend holds no state outside a running server.
func openPersistentCache(configPath string) (*cache.SQLite, error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, err
	}

	if strings.ToLower(cfg.Config.Cache.Backend) != "sqlite" {
		return nil, errors.New("cache maintenance requires the sqlite backend; the memory cache holds no persistent state")
	}

	store, err := cache.NewSQLite(cfg.GetCachePath(), cfg.Config.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	return store, nil
}

func runCachePurgeCommand() *cobra.Command {
	var (
		configPath string
		pattern    string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached entries matching a pattern",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openPersistentCache(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			keys, err := store.Keys(ctx, pattern)
			if err != nil {
				return err
			}

			for _, key := range keys {
				if err := store.Delete(ctx, key); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
			}

			cmd.Printf("Purged %d cached entries matching %q\n", len(keys), pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")
	cmd.Flags().StringVar(&pattern, "pattern", "*", "path.Match pattern of keys to purge")

	return cmd
}

func runCacheKeysCommand() *cobra.Command {
	var (
		configPath string
		pattern    string
	)

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List cached keys matching a pattern",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openPersistentCache(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			keys, err := store.Keys(cmd.Context(), pattern)
			if err != nil {
				return err
			}

			for _, key := range keys {
				cmd.Println(key)
			}
			cmd.Printf("%d keys\n", len(keys))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")
	cmd.Flags().StringVar(&pattern, "pattern", "*", "path.Match pattern of keys to list")

	return cmd
}
