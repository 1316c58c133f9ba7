// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
)

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "0.0.0.0"
host = "0.0.0.0"

# Port
# Default: 7080
port = 7080

# Base url
# Set when serving behind a reverse proxy under a subpath
# Optional
#baseUrl = "/tributary/"

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/tributary.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Data directory for anime identity corpora
# Defaults to data/ next to this file
# Optional
#dataDir = ""

# TMDB API key for title metadata
# Optional, season-window features degrade without it
#tmdbApiKey = ""

# Upstream addon request timeout
# Go duration string
# Default: "15s"
#addonTimeout = "15s"

# Prometheus metrics listener
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
# Comma-separated user:password pairs
#metricsBasicAuthUsers = ""

# Upstream Stremio addons to aggregate
#[[addons]]
#name = "Torrentio"
#url = "https://torrentio.strem.fun"
#timeout = "10s"

# Anime identity database
[animeDB]
#enabled = true
# Options: "none", "required", "full"
#detailLevel = "required"
#episodeTieBreak = true
#refreshInterval = "24h"

# Shared cache
[cache]
# Options: "memory", "sqlite"
#backend = "memory"
#ttl = "1h"
# sqlite file location, defaults next to this file
#path = ""
`

func (c *AppConfig) writeDefaultConfig() error {
	if err := os.MkdirAll(c.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", c.configDir, err)
	}
	return os.WriteFile(c.configPath, []byte(defaultConfigTemplate), 0644)
}

// UpdateLogSettings persists new log settings into the config file,
// updating keys in place so comments and layout survive.
func (c *AppConfig) UpdateLogSettings(logLevel, logPath string, maxSize, maxBackups int) error {
	content, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	updated := updateLogSettingsInTOML(string(content), logLevel, logPath, maxSize, maxBackups)

	if err := os.WriteFile(c.configPath, []byte(updated), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	c.m.Lock()
	c.Config.LogLevel = logLevel
	c.Config.LogPath = logPath
	c.Config.LogMaxSize = maxSize
	c.Config.LogMaxBackups = maxBackups
	c.m.Unlock()

	return nil
}

// updateLogSettingsInTOML rewrites the log keys in place, activating
// commented-out defaults rather than appending duplicates. Keys missing
// entirely are inserted before the first section header so they stay in
// the top-level table.
func updateLogSettingsInTOML(content, logLevel, logPath string, maxSize, maxBackups int) string {
	replacements := map[string]string{
		"logLevel":      fmt.Sprintf("logLevel = %q", logLevel),
		"logPath":       fmt.Sprintf("logPath = %q", logPath),
		"logMaxSize":    fmt.Sprintf("logMaxSize = %d", maxSize),
		"logMaxBackups": fmt.Sprintf("logMaxBackups = %d", maxBackups),
	}

	lines := strings.Split(content, "\n")
	replaced := make(map[string]bool, len(replacements))
	firstSection := -1

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if firstSection == -1 && strings.HasPrefix(trimmed, "[") {
			firstSection = i
		}
		for key, replacement := range replacements {
			if !replaced[key] && isTOMLKeyLine(trimmed, key) {
				lines[i] = replacement
				replaced[key] = true
			}
		}
	}

	var missing []string
	for _, key := range []string{"logLevel", "logPath", "logMaxSize", "logMaxBackups"} {
		if !replaced[key] {
			missing = append(missing, replacements[key])
		}
	}
	if len(missing) > 0 {
		if firstSection == -1 {
			lines = append(lines, missing...)
		} else {
			head := append([]string{}, lines[:firstSection]...)
			head = append(head, missing...)
			lines = append(head, lines[firstSection:]...)
		}
	}

	return strings.Join(lines, "\n")
}

// isTOMLKeyLine reports whether a line assigns the key, active or
// commented out.
func isTOMLKeyLine(trimmed, key string) bool {
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	if !strings.HasPrefix(trimmed, key) {
		return false
	}
	rest := strings.TrimSpace(trimmed[len(key):])
	return strings.HasPrefix(rest, "=")
}
