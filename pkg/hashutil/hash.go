// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hashutil canonicalizes torrent info hashes. Addons disagree on
// casing and whitespace, and dedup keys compare hashes by equality, so
// every hash entering the pipeline goes through Normalize first.
package hashutil

import "github.com/tributary/tributary/pkg/stringutils"

// Normalize canonicalizes an info hash by trimming whitespace and
// lowercasing. Returns an empty string for blank input. The result is
// interned, as the same hash arrives from several addons for popular
// releases and is compared repeatedly during dedup.
func Normalize(hash string) string {
	return stringutils.InternNormalized(hash)
}
