// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		expected ParsedID
		ok       bool
	}{
		{
			name:     "bare imdb",
			raw:      "tt0111161",
			expected: ParsedID{Source: SourceIMDB, Value: "tt0111161"},
			ok:       true,
		},
		{
			name:     "imdb with season and episode",
			raw:      "tt0944947:4:10",
			expected: ParsedID{Source: SourceIMDB, Value: "tt0944947", Season: intPtr(4), Episode: intPtr(10)},
			ok:       true,
		},
		{
			name:     "imdb specials season",
			raw:      "tt0944947:0:3",
			expected: ParsedID{Source: SourceIMDB, Value: "tt0944947", Season: intPtr(0), Episode: intPtr(3)},
			ok:       true,
		},
		{
			name:     "imdb uppercase normalized",
			raw:      "TT0111161",
			expected: ParsedID{Source: SourceIMDB, Value: "tt0111161"},
			ok:       true,
		},
		{
			name:     "tmdb bare",
			raw:      "tmdb:550",
			expected: ParsedID{Source: SourceTMDB, Value: "550"},
			ok:       true,
		},
		{
			name:     "tmdb with season and episode",
			raw:      "tmdb:1399:2:7",
			expected: ParsedID{Source: SourceTMDB, Value: "1399", Season: intPtr(2), Episode: intPtr(7)},
			ok:       true,
		},
		{
			name:     "tvdb dash separator",
			raw:      "tvdb-81189",
			expected: ParsedID{Source: SourceTVDB, Value: "81189"},
			ok:       true,
		},
		{
			name:     "kitsu bare",
			raw:      "kitsu:7936",
			expected: ParsedID{Source: SourceKitsu, Value: "7936"},
			ok:       true,
		},
		{
			name:     "kitsu with episode",
			raw:      "kitsu:7936:5",
			expected: ParsedID{Source: SourceKitsu, Value: "7936", Episode: intPtr(5)},
			ok:       true,
		},
		{
			name:     "mal with episode",
			raw:      "mal:30831:12",
			expected: ParsedID{Source: SourceMAL, Value: "30831", Episode: intPtr(12)},
			ok:       true,
		},
		{
			name:     "anilist",
			raw:      "anilist:21234",
			expected: ParsedID{Source: SourceAniList, Value: "21234"},
			ok:       true,
		},
		{
			name:     "anime planet slug",
			raw:      "anime-planet:steins-gate",
			expected: ParsedID{Source: SourceAnimePlanet, Value: "steins-gate"},
			ok:       true,
		},
		{
			name:     "notify moe opaque value",
			raw:      "notifymoe:0rUxtKmig",
			expected: ParsedID{Source: SourceNotifyMoe, Value: "0rUxtKmig"},
			ok:       true,
		},
		{
			name:     "trakt with season",
			raw:      "trakt:1390:3",
			expected: ParsedID{Source: SourceTrakt, Value: "1390", Season: intPtr(3)},
			ok:       true,
		},
		{name: "empty", raw: "", ok: false},
		{name: "whitespace", raw: "   ", ok: false},
		{name: "unknown family", raw: "foo:123", ok: false},
		{name: "imdb without digits", raw: "tt", ok: false},
		{name: "imdb non numeric", raw: "ttabc", ok: false},
		{name: "imdb non numeric season", raw: "tt0111161:x:2", ok: false},
		{name: "kitsu missing value", raw: "kitsu:", ok: false},
		{name: "kitsu season and episode rejected", raw: "kitsu:7936:2:5", ok: false},
		{name: "tmdb too many parts", raw: "tmdb:550:1:2:3", ok: false},
		{name: "negative episode", raw: "kitsu:7936:-1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed, ok := Parse(tt.raw, MediaTypeUnknown)
			if !tt.ok {
				assert.False(t, ok)
				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.expected.Source, parsed.Source)
			assert.Equal(t, tt.expected.Value, parsed.Value)
			assert.Equal(t, tt.expected.Season, parsed.Season)
			assert.Equal(t, tt.expected.Episode, parsed.Episode)
			assert.Equal(t, MediaTypeUnknown, parsed.MediaType)
		})
	}
}

func TestParsedIDString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		id       ParsedID
		expected string
	}{
		{
			name:     "imdb keeps tt form",
			id:       ParsedID{Source: SourceIMDB, Value: "tt0111161"},
			expected: "tt0111161",
		},
		{
			name:     "imdb with scope",
			id:       ParsedID{Source: SourceIMDB, Value: "tt0944947", Season: intPtr(4), Episode: intPtr(10)},
			expected: "tt0944947:4:10",
		},
		{
			name:     "kitsu with episode",
			id:       ParsedID{Source: SourceKitsu, Value: "7936", Episode: intPtr(5)},
			expected: "kitsu:7936:5",
		},
		{
			name:     "tmdb bare",
			id:       ParsedID{Source: SourceTMDB, Value: "550"},
			expected: "tmdb:550",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.id.String())
		})
	}
}

func TestParseMediaTypePassthrough(t *testing.T) {
	t.Parallel()

	parsed, ok := Parse("tt0111161", MediaTypeMovie)
	require.True(t, ok)
	assert.Equal(t, MediaTypeMovie, parsed.MediaType)

	parsed, ok = Parse("kitsu:7936:5", MediaTypeAnime)
	require.True(t, ok)
	assert.Equal(t, MediaTypeAnime, parsed.MediaType)
}
