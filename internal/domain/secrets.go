// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactString replaces a string with asterisks of the same length
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}

	return strings.Repeat("*", len(s))
}

// Redacted returns a copy of the config safe for display, with API keys
// and basic auth passwords masked.
func (c *Config) Redacted() Config {
	out := *c
	out.TMDBAPIKey = RedactString(c.TMDBAPIKey)
	out.MetricsBasicAuthUsers = redactBasicAuthUsers(c.MetricsBasicAuthUsers)
	return out
}

// redactBasicAuthUsers keeps user names readable and masks passwords only.
func redactBasicAuthUsers(raw string) string {
	if raw == "" {
		return ""
	}
	entries := strings.Split(raw, ",")
	for i, entry := range entries {
		user, pass, ok := strings.Cut(entry, ":")
		if !ok {
			entries[i] = RedactString(entry)
			continue
		}
		entries[i] = user + ":" + RedactString(pass)
	}
	return strings.Join(entries, ",")
}
