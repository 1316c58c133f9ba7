// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ids parses the opaque content identifiers used by catalog addons
// into their source catalog, raw value and optional season/episode scope.
package ids

import (
	"strconv"
	"strings"
)

// Source identifies the catalog an identifier belongs to.
type Source string

const (
	SourceIMDB           Source = "imdb"
	SourceTMDB           Source = "tmdb"
	SourceTVDB           Source = "tvdb"
	SourceMAL            Source = "mal"
	SourceKitsu          Source = "kitsu"
	SourceAniDB          Source = "anidb"
	SourceAniList        Source = "anilist"
	SourceAnimePlanet    Source = "animePlanet"
	SourceAniSearch      Source = "anisearch"
	SourceLiveChart      Source = "livechart"
	SourceNotifyMoe      Source = "notifyMoe"
	SourceSimkl          Source = "simkl"
	SourceTrakt          Source = "trakt"
	SourceAnimeCountdown Source = "animecountdown"
)

// MediaType is the caller-declared content type of a request.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeSeries  MediaType = "series"
	MediaTypeAnime   MediaType = "anime"
	MediaTypeUnknown MediaType = "unknown"
)

// ParsedID is an identifier decomposed into its catalog source, value and
// optional season/episode scope. Season and Episode are nil when the
// identifier does not carry them; season 0 addresses specials.
type ParsedID struct {
	Source    Source
	Value     string
	MediaType MediaType
	Season    *int
	Episode   *int
}

// String renders the identifier in its canonical colon-joined form.
func (p ParsedID) String() string {
	var sb strings.Builder
	if p.Source != SourceIMDB {
		sb.WriteString(string(p.Source))
		sb.WriteByte(':')
	}
	sb.WriteString(p.Value)
	if p.Season != nil {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(*p.Season))
	}
	if p.Episode != nil {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(*p.Episode))
	}
	return sb.String()
}

// idFormat describes one recognized identifier family. Catalogs whose entries
// already denote a single season (the anime trackers) carry at most a trailing
// episode number; season-scoped catalogs carry season, then episode.
type idFormat struct {
	source      Source
	prefixes    []string
	episodeOnly bool
}

var formats = []idFormat{
	{source: SourceIMDB, prefixes: []string{"tt"}},
	{source: SourceTMDB, prefixes: []string{"tmdb:", "tmdb-"}},
	{source: SourceTVDB, prefixes: []string{"tvdb:", "tvdb-"}},
	{source: SourceTrakt, prefixes: []string{"trakt:", "trakt-"}},
	{source: SourceSimkl, prefixes: []string{"simkl:", "simkl-"}},
	{source: SourceMAL, prefixes: []string{"mal:", "mal-"}, episodeOnly: true},
	{source: SourceKitsu, prefixes: []string{"kitsu:", "kitsu-"}, episodeOnly: true},
	{source: SourceAniDB, prefixes: []string{"anidb:", "anidb-"}, episodeOnly: true},
	{source: SourceAniList, prefixes: []string{"anilist:", "anilist-"}, episodeOnly: true},
	{source: SourceAnimePlanet, prefixes: []string{"anime-planet:", "animeplanet:"}, episodeOnly: true},
	{source: SourceAniSearch, prefixes: []string{"anisearch:", "anisearch-"}, episodeOnly: true},
	{source: SourceLiveChart, prefixes: []string{"livechart:", "livechart-"}, episodeOnly: true},
	{source: SourceNotifyMoe, prefixes: []string{"notifymoe:", "notify.moe:"}, episodeOnly: true},
	{source: SourceAnimeCountdown, prefixes: []string{"animecountdown:", "animecountdown-"}, episodeOnly: true},
}

// Parse decomposes raw into a ParsedID. The boolean is false when no
// recognized identifier family matches.
func Parse(raw string, mediaType MediaType) (ParsedID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedID{}, false
	}

	lower := strings.ToLower(raw)
	for _, f := range formats {
		for _, prefix := range f.prefixes {
			if !strings.HasPrefix(lower, prefix) {
				continue
			}
			if f.source == SourceIMDB {
				return parseIMDB(lower, mediaType)
			}
			return parseScoped(f, raw[len(prefix):], mediaType)
		}
	}
	return ParsedID{}, false
}

func parseIMDB(raw string, mediaType MediaType) (ParsedID, bool) {
	parts := strings.Split(raw, ":")
	value := parts[0]
	if len(value) <= 2 || !isDigits(value[2:]) {
		return ParsedID{}, false
	}

	p := ParsedID{Source: SourceIMDB, Value: value, MediaType: mediaType}
	switch len(parts) {
	case 1:
		return p, true
	case 2:
		season, ok := parseNumber(parts[1])
		if !ok {
			return ParsedID{}, false
		}
		p.Season = &season
		return p, true
	case 3:
		season, okS := parseNumber(parts[1])
		episode, okE := parseNumber(parts[2])
		if !okS || !okE {
			return ParsedID{}, false
		}
		p.Season = &season
		p.Episode = &episode
		return p, true
	}
	return ParsedID{}, false
}

func parseScoped(f idFormat, rest string, mediaType MediaType) (ParsedID, bool) {
	parts := strings.Split(rest, ":")
	if parts[0] == "" {
		return ParsedID{}, false
	}

	numbers := parts[1:]
	if len(numbers) > 2 || (f.episodeOnly && len(numbers) > 1) {
		return ParsedID{}, false
	}

	p := ParsedID{Source: f.source, Value: parts[0], MediaType: mediaType}
	switch len(numbers) {
	case 1:
		n, ok := parseNumber(numbers[0])
		if !ok {
			return ParsedID{}, false
		}
		if f.episodeOnly {
			p.Episode = &n
		} else {
			p.Season = &n
		}
	case 2:
		season, okS := parseNumber(numbers[0])
		episode, okE := parseNumber(numbers[1])
		if !okS || !okE {
			return ParsedID{}, false
		}
		p.Season = &season
		p.Episode = &episode
	}
	return p, true
}

func parseNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
