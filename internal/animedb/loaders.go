// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/ids"
)

// The corpus loaders below parse one downloaded payload each. Malformed
// container syntax fails the load; malformed individual records are logged
// and skipped so a single bad row cannot take a whole corpus down.

// loadMappings parses the cross-reference corpus, a JSON array of mapping
// rows.
func loadMappings(r io.Reader) ([]*MappingEntry, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '['); err != nil {
		return nil, fmt.Errorf("cross-reference corpus: %w", err)
	}

	var (
		out     []*MappingEntry
		skipped int
	)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("cross-reference corpus: %w", err)
		}
		entry := &MappingEntry{}
		if err := json.Unmarshal(raw, entry); err != nil {
			skipped++
			log.Warn().Err(err).Msg("animedb: skipping malformed cross-reference row")
			continue
		}
		if !hasAnyID(entry) {
			skipped++
			continue
		}
		out = append(out, entry)
	}

	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Int("loaded", len(out)).
			Msg("animedb: cross-reference corpus loaded with skipped rows")
	}
	return out, nil
}

func hasAnyID(m *MappingEntry) bool {
	for _, src := range indexedSources {
		if !m.IDFor(src).Empty() {
			return true
		}
	}
	return false
}

// aodSourcePatterns map offline-catalog source URLs onto catalog identifiers.
var aodSourcePatterns = []struct {
	source ids.Source
	re     *regexp.Regexp
}{
	{ids.SourceAniDB, regexp.MustCompile(`anidb\.net/anime/(\d+)`)},
	{ids.SourceAniList, regexp.MustCompile(`anilist\.co/anime/(\d+)`)},
	{ids.SourceAnimePlanet, regexp.MustCompile(`anime-planet\.com/anime/([^/]+)`)},
	{ids.SourceAniSearch, regexp.MustCompile(`anisearch\.com/anime/(\d+)`)},
	{ids.SourceKitsu, regexp.MustCompile(`kitsu\.(?:io|app)/anime/(\d+)`)},
	{ids.SourceLiveChart, regexp.MustCompile(`livechart\.me/anime/(\d+)`)},
	{ids.SourceMAL, regexp.MustCompile(`myanimelist\.net/anime/(\d+)`)},
	{ids.SourceNotifyMoe, regexp.MustCompile(`notify\.moe/anime/([^/]+)`)},
	{ids.SourceSimkl, regexp.MustCompile(`simkl\.com/anime/(\d+)`)},
	{ids.SourceAnimeCountdown, regexp.MustCompile(`animecountdown\.com/(\d+)`)},
}

type aodItem struct {
	Sources     []string     `json:"sources"`
	Title       string       `json:"title"`
	Type        string       `json:"type"`
	Episodes    int          `json:"episodes"`
	Status      string       `json:"status"`
	AnimeSeason *AnimeSeason `json:"animeSeason"`
	Picture     string       `json:"picture"`
	Synonyms    []string     `json:"synonyms"`
	Tags        []string     `json:"tags"`
}

// loadDetails parses the offline catalog. Each item is indexed under every
// source identifier its URLs resolve to; one shared details value backs all
// of an item's keys. At the required detail level only title, synonyms and
// the premiere season are kept.
func loadDetails(r io.Reader, level DetailLevel) (map[ids.Source]map[string]*AnimeDetails, error) {
	dec := json.NewDecoder(r)
	if err := seekObjectKey(dec, "data"); err != nil {
		return nil, fmt.Errorf("offline catalog: %w", err)
	}
	if err := expectDelim(dec, '['); err != nil {
		return nil, fmt.Errorf("offline catalog: %w", err)
	}

	out := make(map[ids.Source]map[string]*AnimeDetails)
	var loaded, skipped int
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("offline catalog: %w", err)
		}
		var item aodItem
		if err := json.Unmarshal(raw, &item); err != nil {
			skipped++
			log.Warn().Err(err).Msg("animedb: skipping malformed offline catalog item")
			continue
		}
		if item.Title == "" || len(item.Sources) == 0 {
			skipped++
			continue
		}

		details := &AnimeDetails{
			Title:       item.Title,
			Synonyms:    item.Synonyms,
			AnimeSeason: item.AnimeSeason,
		}
		if level == DetailFull {
			details.Type = item.Type
			details.Episodes = item.Episodes
			details.Status = item.Status
			details.Picture = item.Picture
			details.Tags = item.Tags
		}

		indexed := false
		for _, src := range item.Sources {
			source, id, ok := parseAODSource(src)
			if !ok {
				continue
			}
			bySource := out[source]
			if bySource == nil {
				bySource = make(map[string]*AnimeDetails)
				out[source] = bySource
			}
			bySource[NormalizeIDValue(id)] = details
			indexed = true
		}
		if indexed {
			loaded++
		}
	}

	log.Debug().Int("loaded", loaded).Int("skipped", skipped).
		Msg("animedb: offline catalog loaded")
	return out, nil
}

func parseAODSource(url string) (ids.Source, string, bool) {
	for _, p := range aodSourcePatterns {
		if m := p.re.FindStringSubmatch(url); m != nil {
			return p.source, m[1], true
		}
	}
	return "", "", false
}

// loadKitsuMap parses the Kitsu-to-IMDb corpus, a JSON object keyed by
// Kitsu id.
func loadKitsuMap(r io.Reader) (map[string]*KitsuImdbEntry, error) {
	var rows map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("kitsu corpus: %w", err)
	}

	out := make(map[string]*KitsuImdbEntry, len(rows))
	var skipped int
	for key, raw := range rows {
		entry := &KitsuImdbEntry{}
		if err := json.Unmarshal(raw, entry); err != nil {
			skipped++
			log.Warn().Err(err).Str("kitsuId", key).Msg("animedb: skipping malformed kitsu row")
			continue
		}
		norm := NormalizeIDValue(key)
		if norm == "" {
			skipped++
			continue
		}
		entry.KitsuID = FlexID(norm)
		out[norm] = entry
	}

	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Int("loaded", len(out)).
			Msg("animedb: kitsu corpus loaded with skipped rows")
	}
	return out, nil
}

// loadAnitrakt parses one MyAnimeList-to-Trakt corpus, a JSON array keyed in
// the output by MyAnimeList id. Movies and shows ship as separate files and
// go through this same loader.
func loadAnitrakt(r io.Reader) (map[string]*AnitraktEntry, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '['); err != nil {
		return nil, fmt.Errorf("anitrakt corpus: %w", err)
	}

	out := make(map[string]*AnitraktEntry)
	var skipped int
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("anitrakt corpus: %w", err)
		}
		entry := &AnitraktEntry{}
		if err := json.Unmarshal(raw, entry); err != nil {
			skipped++
			log.Warn().Err(err).Msg("animedb: skipping malformed anitrakt row")
			continue
		}
		if entry.MyAnimeList.ID == 0 {
			skipped++
			continue
		}
		out[strconv.Itoa(entry.MyAnimeList.ID)] = entry
	}

	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Int("loaded", len(out)).
			Msg("animedb: anitrakt corpus loaded with skipped rows")
	}
	return out, nil
}

type xmlAnimeMapping struct {
	AniDBSeason string `xml:"anidbseason,attr"`
	TVDBSeason  string `xml:"tvdbseason,attr"`
	TMDBSeason  string `xml:"tmdbseason,attr"`
	Start       string `xml:"start,attr"`
	End         string `xml:"end,attr"`
	Offset      string `xml:"offset,attr"`
	Episodes    string `xml:",chardata"`
}

type xmlAnime struct {
	AniDBID           string            `xml:"anidbid,attr"`
	TVDBID            string            `xml:"tvdbid,attr"`
	DefaultTVDBSeason string            `xml:"defaulttvdbseason,attr"`
	EpisodeOffset     string            `xml:"episodeoffset,attr"`
	TMDBID            string            `xml:"tmdbid,attr"`
	TMDBTVID          string            `xml:"tmdbtvid,attr"`
	DefaultTMDBSeason string            `xml:"defaulttmdbseason,attr"`
	TMDBOffset        string            `xml:"tmdboffset,attr"`
	IMDBID            string            `xml:"imdbid,attr"`
	Name              string            `xml:"name"`
	Mappings          []xmlAnimeMapping `xml:"mapping-list>mapping"`
}

// loadAnimeList parses the anime list XML master file, streaming anime
// elements rather than decoding the whole document at once. Per-season
// mapping refinements are only retained at the full detail level.
func loadAnimeList(r io.Reader, level DetailLevel) ([]*AnimeListEntry, error) {
	dec := xml.NewDecoder(r)

	var (
		out     []*AnimeListEntry
		skipped int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("anime list corpus: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "anime" {
			continue
		}

		var row xmlAnime
		if err := dec.DecodeElement(&row, &start); err != nil {
			skipped++
			log.Warn().Err(err).Msg("animedb: skipping malformed anime list element")
			continue
		}
		if strings.TrimSpace(row.AniDBID) == "" {
			skipped++
			continue
		}

		entry := &AnimeListEntry{
			AniDBID:           FlexID(NormalizeIDValue(row.AniDBID)),
			TVDBID:            FlexID(strings.TrimSpace(row.TVDBID)),
			DefaultTVDBSeason: SeasonRef(strings.TrimSpace(row.DefaultTVDBSeason)),
			EpisodeOffset:     optInt(row.EpisodeOffset),
			TMDBID:            FlexID(strings.TrimSpace(row.TMDBID)),
			TMDBTVID:          FlexID(strings.TrimSpace(row.TMDBTVID)),
			DefaultTMDBSeason: SeasonRef(strings.TrimSpace(row.DefaultTMDBSeason)),
			TMDBOffset:        optInt(row.TMDBOffset),
			IMDBID:            strings.TrimSpace(row.IMDBID),
			Name:              strings.TrimSpace(row.Name),
		}
		if level == DetailFull {
			entry.Mappings = convertListMappings(row.Mappings)
		}
		out = append(out, entry)
	}

	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Int("loaded", len(out)).
			Msg("animedb: anime list corpus loaded with skipped rows")
	}
	return out, nil
}

func convertListMappings(rows []xmlAnimeMapping) []AnimeListMapping {
	if len(rows) == 0 {
		return nil
	}
	out := make([]AnimeListMapping, 0, len(rows))
	for _, row := range rows {
		m := AnimeListMapping{
			TVDBSeason: optInt(row.TVDBSeason),
			TMDBSeason: optInt(row.TMDBSeason),
			Start:      optInt(row.Start),
			End:        optInt(row.End),
			Offset:     optInt(row.Offset),
			Episodes:   strings.TrimSpace(row.Episodes),
		}
		if n := optInt(row.AniDBSeason); n != nil {
			m.AniDBSeason = *n
		}
		out = append(out, m)
	}
	return out
}

func optInt(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// expectDelim consumes the next JSON token and checks it is the given
// delimiter.
func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// seekObjectKey advances the decoder past the opening object brace to the
// value of the named top-level key.
func seekObjectKey(dec *json.Decoder, key string) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if name == key {
			return nil
		}
		// Skip the value for every other key.
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return fmt.Errorf("key %q not found", key)
}
