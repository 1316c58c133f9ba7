// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package stringutils provides string interning and normalization for
// values that repeat heavily across stream responses: info hashes,
// indexer labels, quality strings, and release titles.
package stringutils

import (
	"strings"
	"unique"
)

// Intern returns a canonical representation of the string using Go's
// unique package. Identical strings share the same underlying memory,
// which matters when the same release names and hashes show up in every
// response for popular content.
func Intern(s string) string {
	if s == "" {
		return ""
	}
	return unique.Make(s).Value()
}

// InternNormalized interns a trimmed and lowercased version of the
// string. This is the canonical form for case-insensitive matching.
func InternNormalized(s string) string {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "" {
		return ""
	}
	return unique.Make(normalized).Value()
}
