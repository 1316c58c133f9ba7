// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo exposes version metadata stamped at build time.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	// UserAgent identifies outbound HTTP requests, set in init.
	UserAgent = ""
)

func init() {
	UserAgent = fmt.Sprintf("tributary/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a human-readable multi-line build summary.
func String() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s\n", Version, Commit, Date)
}

// IsDevelop reports whether the running binary is a development build
// rather than a tagged release. Development builds skip self-update.
func IsDevelop() bool {
	return isDevelop(Version)
}

func isDevelop(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	switch v {
	case "", "dev", "develop", "main", "latest":
		return true
	}
	if strings.HasPrefix(v, "pr-") {
		return true
	}
	if strings.HasSuffix(v, "-dev") || strings.HasSuffix(v, "-develop") {
		return true
	}
	return false
}

// JSON returns the build metadata as a JSON document.
func JSON() ([]byte, error) {
	return json.Marshal(struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"date"`
	}{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	})
}
