// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// unicodeNormalizer caches NFKD results; the transform chain is expensive
	// and release titles repeat across requests.
	unicodeNormalizer = NewNormalizer(defaultNormalizerTTL, normalizeUnicodeInner)

	// matchingNormalizer caches full matching normalization for the title
	// filter and dedup paths.
	matchingNormalizer = NewNormalizer(defaultNormalizerTTL, normalizeForMatchingInner)
)

func normalizeUnicodeInner(s string) string {
	// Letters NFKD does not decompose to ASCII (distinct letters in
	// Nordic/Germanic alphabets, not composed characters).
	s = strings.ReplaceAll(s, "æ", "ae")
	s = strings.ReplaceAll(s, "Æ", "AE")
	s = strings.ReplaceAll(s, "œ", "oe")
	s = strings.ReplaceAll(s, "Œ", "OE")
	s = strings.ReplaceAll(s, "ø", "o")
	s = strings.ReplaceAll(s, "Ø", "O")
	s = strings.ReplaceAll(s, "ß", "ss")

	// transform.Chain is not safe for concurrent use, so build it per call.
	// The cache in front keeps that off the hot path.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func normalizeForMatchingInner(s string) string {
	s = unicodeNormalizer.Normalize(s)
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case r == '\'' || r == '’':
			// Apostrophes vanish entirely so "Journey's" and "Journeys"
			// come out the same.
		default:
			pendingSpace = true
		}
	}
	return Intern(b.String())
}

// NormalizeUnicode removes diacritics and decomposes ligatures, with
// caching. Examples:
//   - "Shōgun" → "Shogun"
//   - "Amélie" → "Amelie"
//   - "Björk" → "Bjork"
//   - "ﬁ" → "fi"
func NormalizeUnicode(s string) string {
	return unicodeNormalizer.Normalize(s)
}

// NormalizeForMatching reduces a title to its canonical matching form:
// diacritics folded, lowercase, apostrophes removed, "&" read as "and",
// and every other non-alphanumeric run collapsed into a single space.
// Both sides of a title comparison must go through this. Examples:
//   - "Frieren: Beyond Journey's End" → "frieren beyond journeys end"
//   - "Shōgun S01" → "shogun s01"
//   - "Law & Order" → "law and order"
//   - "The.Matrix.1999" → "the matrix 1999"
func NormalizeForMatching(s string) string {
	return matchingNormalizer.Normalize(s)
}
