// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{input: "TRACE", want: zerolog.TraceLevel},
		{input: "DEBUG", want: zerolog.DebugLevel},
		{input: "INFO", want: zerolog.InfoLevel},
		{input: "WARN", want: zerolog.WarnLevel},
		{input: "ERROR", want: zerolog.ErrorLevel},
		{input: "debug", want: zerolog.DebugLevel},
		{input: "unknown", want: zerolog.InfoLevel},
		{input: "", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	SetLogLevel("DEBUG")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetLogLevel("ERROR")
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestInitWritesToLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "log", "tributary.log")

	Init(&domain.Config{
		LogLevel:      "INFO",
		LogPath:       logPath,
		LogMaxSize:    10,
		LogMaxBackups: 1,
	})

	log.Info().Msg("hello from the logger test")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the logger test")
}
