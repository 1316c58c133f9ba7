// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/cache"
	"github.com/tributary/tributary/internal/config"
)

func runCommand(cmd *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func mustRunCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()

	output, err := runCommand(cmd, args...)
	require.NoError(t, err)
	return output
}

func TestConfigShowCommand(t *testing.T) {
	configDir := t.TempDir()

	output := mustRunCommand(t, RunConfigCommand(), "show", "--config", configDir)

	assert.Contains(t, output, "Config file: "+filepath.Join(configDir, "config.toml"))
	assert.Contains(t, output, "Listen: 0.0.0.0:7080")
	assert.Contains(t, output, "TMDB API key: (not set)")
	assert.Contains(t, output, "Cache: memory")
	assert.Contains(t, output, "Addons: 0")
}

func TestConfigShowCommandMasksAPIKey(t *testing.T) {
	configDir := t.TempDir()
	writeConfig(t, configDir, `
host = "127.0.0.1"
port = 7080
logLevel = "INFO"
tmdbApiKey = "supersecretapikey"
`)

	output := mustRunCommand(t, RunConfigCommand(), "show", "--config", configDir)

	assert.NotContains(t, output, "supersecretapikey")
	assert.Contains(t, output, "su*************ey")
}

func TestConfigSetLogLevelCommand(t *testing.T) {
	configDir := t.TempDir()

	output := mustRunCommand(t, RunConfigCommand(), "set-log-level", "debug", "--config", configDir)
	assert.Contains(t, output, "Log level set to DEBUG")

	content, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "DEBUG"`)

	cfg, err := config.New(configDir)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Config.LogLevel)
}

func TestConfigSetLogLevelCommandRejectsUnknownLevel(t *testing.T) {
	configDir := t.TempDir()

	_, err := runCommand(RunConfigCommand(), "set-log-level", "verbose", "--config", configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestCachePurgeCommand(t *testing.T) {
	ctx := context.Background()
	configDir := t.TempDir()
	writeConfig(t, configDir, `
host = "127.0.0.1"
port = 7080
logLevel = "INFO"

[cache]
backend = "sqlite"
ttl = "1h"
`)

	cachePath := filepath.Join(configDir, "tributary-cache.db")
	seedCache(t, ctx, cachePath)

	output := mustRunCommand(t, RunCacheCommand(), "purge", "--config", configDir, "--pattern", "tmdb:*")
	assert.Contains(t, output, `Purged 2 cached entries matching "tmdb:*"`)

	store, err := cache.NewSQLite(cachePath, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	keys, err := store.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"seadex:frieren"}, keys)
}

func TestCachePurgeCommandRequiresSQLiteBackend(t *testing.T) {
	configDir := t.TempDir()

	_, err := runCommand(RunCacheCommand(), "purge", "--config", configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite backend")
}

func TestCacheKeysCommand(t *testing.T) {
	ctx := context.Background()
	configDir := t.TempDir()
	writeConfig(t, configDir, `
host = "127.0.0.1"
port = 7080
logLevel = "INFO"

[cache]
backend = "sqlite"
ttl = "1h"
`)

	seedCache(t, ctx, filepath.Join(configDir, "tributary-cache.db"))

	output := mustRunCommand(t, RunCacheCommand(), "keys", "--config", configDir, "--pattern", "tmdb:*")
	assert.Contains(t, output, "tmdb:movie:603")
	assert.Contains(t, output, "tmdb:tv:1396")
	assert.NotContains(t, output, "seadex:frieren")
	assert.Contains(t, output, "2 keys")
}

func writeConfig(t *testing.T, configDir, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0644))
}

func seedCache(t *testing.T, ctx context.Context, cachePath string) {
	t.Helper()

	store, err := cache.NewSQLite(cachePath, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "tmdb:movie:603", "The Matrix", time.Hour))
	require.NoError(t, store.Set(ctx, "tmdb:tv:1396", "Breaking Bad", time.Hour))
	require.NoError(t, store.Set(ctx, "seadex:frieren", "listing", time.Hour))
	require.NoError(t, store.Close())
}
