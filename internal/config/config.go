// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads config.toml with viper, applies TRIBUTARY__ env
// overrides and keeps log settings live across file edits.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/tributary/tributary/internal/domain"
	"github.com/tributary/tributary/pkg/debounce"
)

// envKeys lists every config key overridable through the environment,
// in the casing used by the config file. TRIBUTARY__LOG_LEVEL overrides
// logLevel, TRIBUTARY__ANIME_DB_DETAIL_LEVEL overrides
// animeDB.detailLevel, and so on.
var envKeys = []string{
	"host",
	"port",
	"baseUrl",
	"logLevel",
	"logPath",
	"logMaxSize",
	"logMaxBackups",
	"dataDir",
	"pprofEnabled",
	"pprofHost",
	"pprofPort",
	"metricsEnabled",
	"metricsHost",
	"metricsPort",
	"metricsBasicAuthUsers",
	"tmdbApiKey",
	"addonTimeout",
	"animeDB.enabled",
	"animeDB.detailLevel",
	"animeDB.episodeTieBreak",
	"animeDB.refreshInterval",
	"cache.backend",
	"cache.ttl",
	"cache.path",
}

// AppConfig owns the loaded configuration and the viper instance
// watching the file behind it.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	configDir  string

	m              sync.Mutex
	reloadHandlers []func(*domain.Config)
}

// New loads the configuration. configPath may be a config.toml path, a
// directory to place one in, or empty for the default config directory.
// A commented default file is written on first run.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.defaults()

	if err := c.resolvePaths(configPath); err != nil {
		return nil, err
	}

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		log.Info().Str("path", c.configPath).Msg("Created default config file")
	}

	c.viper.SetConfigFile(c.configPath)
	c.bindEnv()

	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	v := c.viper
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 7080)
	v.SetDefault("baseUrl", "")
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logPath", "")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("dataDir", "")
	v.SetDefault("pprofEnabled", false)
	v.SetDefault("pprofHost", "127.0.0.1")
	v.SetDefault("pprofPort", 6060)
	v.SetDefault("metricsEnabled", false)
	v.SetDefault("metricsHost", "127.0.0.1")
	v.SetDefault("metricsPort", 9074)
	v.SetDefault("metricsBasicAuthUsers", "")
	v.SetDefault("tmdbApiKey", "")
	v.SetDefault("addonTimeout", "15s")
	v.SetDefault("animeDB.enabled", true)
	v.SetDefault("animeDB.detailLevel", "required")
	v.SetDefault("animeDB.episodeTieBreak", true)
	v.SetDefault("animeDB.refreshInterval", "24h")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.path", "")
}

func (c *AppConfig) bindEnv() {
	for _, key := range envKeys {
		// errors only on empty input, which the fixed list never has
		_ = c.viper.BindEnv(key, EnvVarName(key))
	}
}

func (c *AppConfig) resolvePaths(configPath string) error {
	switch {
	case configPath == "":
		c.configDir = getDefaultConfigDir()
	case filepath.Ext(configPath) == ".toml":
		c.configPath = configPath
		c.configDir = filepath.Dir(configPath)
		return nil
	default:
		// anything else is a directory, existing or not
		c.configDir = configPath
	}

	c.configPath = filepath.Join(c.configDir, "config.toml")
	return nil
}

// getDefaultConfigDir returns the per-user config directory. Docker
// images set XDG_CONFIG_HOME=/config, which is used directly.
func getDefaultConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		if xdgConfigHome == "/config" {
			return xdgConfigHome
		}
		return filepath.Join(xdgConfigHome, "tributary")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tributary")
}

// GetConfigPath returns the path of the loaded config file.
func (c *AppConfig) GetConfigPath() string {
	return c.configPath
}

// GetDataDir returns the corpus data directory, defaulting to data/
// next to the config file.
func (c *AppConfig) GetDataDir() string {
	if c.Config.DataDir != "" {
		return c.Config.DataDir
	}
	return filepath.Join(c.configDir, "data")
}

// GetCachePath returns the sqlite cache location, defaulting to next to
// the config file.
func (c *AppConfig) GetCachePath() string {
	if c.Config.Cache.Path != "" {
		return c.Config.Cache.Path
	}
	return filepath.Join(c.configDir, "tributary-cache.db")
}

// OnReload registers a handler invoked after the config file changes on
// disk and the dynamic settings have been applied.
func (c *AppConfig) OnReload(fn func(*domain.Config)) {
	c.m.Lock()
	defer c.m.Unlock()
	c.reloadHandlers = append(c.reloadHandlers, fn)
}

// watchConfig applies log setting changes from file edits at runtime.
// Everything else requires a restart. Editors fire several write events
// per save, so the reload is debounced.
func (c *AppConfig) watchConfig() {
	reload := debounce.New(500 * time.Millisecond)
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		reload.Do(func() {
			log.Debug().Str("file", e.Name).Msg("Config file changed, reloading log settings")

			var fresh domain.Config
			if err := c.viper.Unmarshal(&fresh); err != nil {
				log.Error().Err(err).Msg("Failed to reload config file, keeping current settings")
				return
			}
			if err := fresh.Validate(); err != nil {
				log.Error().Err(err).Msg("Reloaded config is invalid, keeping current settings")
				return
			}

			c.m.Lock()
			c.Config.LogLevel = fresh.LogLevel
			c.Config.LogPath = fresh.LogPath
			c.Config.LogMaxSize = fresh.LogMaxSize
			c.Config.LogMaxBackups = fresh.LogMaxBackups
			handlers := append([]func(*domain.Config){}, c.reloadHandlers...)
			cfg := c.Config
			c.m.Unlock()

			for _, fn := range handlers {
				fn(cfg)
			}
		})
	})
	c.viper.WatchConfig()
}

// EnvVarName converts a config key to its environment override name:
// animeDB.detailLevel becomes TRIBUTARY__ANIME_DB_DETAIL_LEVEL.
func EnvVarName(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		parts[i] = camelToSnakeUpper(part)
	}
	return "TRIBUTARY__" + strings.Join(parts, "_")
}

func camelToSnakeUpper(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
