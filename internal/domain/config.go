// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	PprofEnabled  bool   `toml:"pprofEnabled" mapstructure:"pprofEnabled"`
	PprofHost     string `toml:"pprofHost" mapstructure:"pprofHost"`
	PprofPort     int    `toml:"pprofPort" mapstructure:"pprofPort"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	TMDBAPIKey string `toml:"tmdbApiKey" mapstructure:"tmdbApiKey"`

	// AddonTimeout bounds each upstream addon request unless the addon
	// sets its own. Go duration string, for example "15s".
	AddonTimeout time.Duration `toml:"addonTimeout" mapstructure:"addonTimeout"`

	Addons []AddonConfig `toml:"addons" mapstructure:"addons"`

	AnimeDB AnimeDBConfig `toml:"animeDB" mapstructure:"animeDB"`
	Cache   CacheConfig   `toml:"cache" mapstructure:"cache"`
}

// AddonConfig describes one upstream Stremio addon to aggregate.
type AddonConfig struct {
	Name string `toml:"name" mapstructure:"name"`
	URL  string `toml:"url" mapstructure:"url"`

	// Timeout overrides the global addonTimeout for this addon.
	Timeout time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// AnimeDBConfig controls the anime identity database.
type AnimeDBConfig struct {
	Enabled         bool   `toml:"enabled" mapstructure:"enabled"`
	DetailLevel     string `toml:"detailLevel" mapstructure:"detailLevel"`
	EpisodeTieBreak bool   `toml:"episodeTieBreak" mapstructure:"episodeTieBreak"`

	// RefreshInterval applies to every corpus without a per-source override.
	RefreshInterval time.Duration `toml:"refreshInterval" mapstructure:"refreshInterval"`

	// RefreshIntervals overrides the cadence for individual corpora by
	// source name, for example mappings = "6h".
	RefreshIntervals map[string]time.Duration `toml:"refreshIntervals" mapstructure:"refreshIntervals"`
}

// CacheConfig selects and tunes the shared cache backend.
type CacheConfig struct {
	Backend string        `toml:"backend" mapstructure:"backend"`
	TTL     time.Duration `toml:"ttl" mapstructure:"ttl"`

	// Path is the sqlite database location. Defaults next to the config
	// file when the sqlite backend is selected and no path is set.
	Path string `toml:"path" mapstructure:"path"`
}

var (
	validLogLevels    = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}
	validDetailLevels = []string{"none", "required", "full"}
	validBackends     = []string{"memory", "sqlite"}
)

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if !contains(validLogLevels, strings.ToUpper(c.LogLevel)) {
		return fmt.Errorf("invalid logLevel %q (valid: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !contains(validDetailLevels, strings.ToLower(c.AnimeDB.DetailLevel)) {
		return fmt.Errorf("invalid animeDB.detailLevel %q (valid: %s)", c.AnimeDB.DetailLevel, strings.Join(validDetailLevels, ", "))
	}
	if !contains(validBackends, strings.ToLower(c.Cache.Backend)) {
		return fmt.Errorf("invalid cache.backend %q (valid: %s)", c.Cache.Backend, strings.Join(validBackends, ", "))
	}
	if c.MetricsEnabled && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		return fmt.Errorf("invalid metricsPort: %d", c.MetricsPort)
	}
	for i, addon := range c.Addons {
		if err := addon.validate(); err != nil {
			return fmt.Errorf("addons[%d]: %w", i, err)
		}
	}
	return nil
}

func (a AddonConfig) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	raw := strings.TrimSpace(a.URL)
	if raw == "" {
		return errors.New("url is required")
	}
	if rest, ok := strings.CutPrefix(raw, "stremio://"); ok {
		raw = "https://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", a.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	return nil
}

// NormalizedBaseURL returns the base URL with exactly one leading and
// trailing slash, or "/" when unset.
func (c *Config) NormalizedBaseURL() string {
	base := strings.Trim(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return "/"
	}
	return "/" + base + "/"
}

func contains(valid []string, v string) bool {
	for _, s := range valid {
		if s == v {
			return true
		}
	}
	return false
}
