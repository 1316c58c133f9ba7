// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/domain"
)

func TestUpdateLogSettingsInTOMLUpdatesCommentedKeysInPlace(t *testing.T) {
	content := `# config.toml - Auto-generated on first run

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

# Anime identity database
[animeDB]
#enabled = true
`
	updated := updateLogSettingsInTOML(content, "DEBUG", "/config/tributary.log", 50, 3)

	if strings.Contains(updated, "# Log settings") {
		t.Fatalf("unexpected appended log settings section:\n%s", updated)
	}

	sectionIndex := strings.Index(updated, "[animeDB]")
	if sectionIndex == -1 {
		t.Fatalf("missing animeDB section:\n%s", updated)
	}

	lastLogPath := strings.LastIndex(updated, "logPath")
	if lastLogPath == -1 {
		t.Fatalf("missing logPath setting:\n%s", updated)
	}
	if lastLogPath > sectionIndex {
		t.Fatalf("logPath appended after animeDB section:\n%s", updated)
	}

	if !strings.Contains(updated, `logPath = "/config/tributary.log"`) {
		t.Fatalf("logPath not updated in place:\n%s", updated)
	}
	if !strings.Contains(updated, "logMaxSize = 50") {
		t.Fatalf("logMaxSize not updated in place:\n%s", updated)
	}
	if !strings.Contains(updated, "logMaxBackups = 3") {
		t.Fatalf("logMaxBackups not updated in place:\n%s", updated)
	}
	if !strings.Contains(updated, `logLevel = "DEBUG"`) {
		t.Fatalf("logLevel not updated in place:\n%s", updated)
	}
}

func TestUpdateLogSettingsInTOMLInsertsMissingKeysBeforeSections(t *testing.T) {
	content := `host = "localhost"

[cache]
backend = "memory"
`
	updated := updateLogSettingsInTOML(content, "INFO", "", 50, 3)

	sectionIndex := strings.Index(updated, "[cache]")
	require.NotEqual(t, -1, sectionIndex)

	for _, key := range []string{"logLevel", "logPath", "logMaxSize", "logMaxBackups"} {
		idx := strings.Index(updated, key)
		require.NotEqualf(t, -1, idx, "missing %s:\n%s", key, updated)
		assert.Lessf(t, idx, sectionIndex, "%s inserted after [cache] section:\n%s", key, updated)
	}
}

func TestUpdateLogSettingsPersistsAndApplies(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, `
host = "localhost"
logLevel = "INFO"
#logMaxSize = 50
`)

	cfg := &AppConfig{
		configPath: configPath,
		configDir:  tmpDir,
		Config:     &domain.Config{LogLevel: "INFO"},
	}

	require.NoError(t, cfg.UpdateLogSettings("DEBUG", filepath.Join(tmpDir, "tributary.log"), 100, 5))

	assert.Equal(t, "DEBUG", cfg.Config.LogLevel)
	assert.Equal(t, 100, cfg.Config.LogMaxSize)
	assert.Equal(t, 5, cfg.Config.LogMaxBackups)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `logLevel = "DEBUG"`)
	assert.Contains(t, string(content), "logMaxSize = 100")
	assert.NotContains(t, string(content), "#logMaxSize")
}
