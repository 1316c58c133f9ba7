// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package animedb maintains the anime identity database: a set of refreshable
// cross-reference corpora indexed in memory, resolving any supported catalog
// identifier to a canonical entry with cross-IDs and season/episode offsets.
package animedb

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tributary/tributary/internal/ids"
)

// FlexID is an identifier that corpora serialize as either a JSON number or a
// string. It normalizes to the decimal string form; empty means absent.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*f = ""
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = FlexID(n.String())
	}
	return nil
}

func (f FlexID) String() string { return string(f) }

func (f FlexID) Empty() bool { return f == "" }

// Int returns the numeric form, when the identifier is numeric.
func (f FlexID) Int() (int, bool) {
	n, err := strconv.Atoi(string(f))
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizeIDValue canonicalizes a lookup value the same way corpus keys are
// indexed: numeric values lose leading zeros, everything else is trimmed.
func NormalizeIDValue(value string) string {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return strconv.Itoa(n)
	}
	return value
}

// EntryType classifies a cross-reference entry.
type EntryType string

const (
	TypeTV      EntryType = "TV"
	TypeMovie   EntryType = "MOVIE"
	TypeSpecial EntryType = "SPECIAL"
	TypeOVA     EntryType = "OVA"
	TypeONA     EntryType = "ONA"
	TypeUnknown EntryType = "UNKNOWN"
)

// ParseEntryType normalizes a corpus type string; unrecognized values map to
// TypeUnknown rather than failing the record.
func ParseEntryType(s string) EntryType {
	switch EntryType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeTV:
		return TypeTV
	case TypeMovie:
		return TypeMovie
	case TypeSpecial:
		return TypeSpecial
	case TypeOVA:
		return TypeOVA
	case TypeONA:
		return TypeONA
	default:
		return TypeUnknown
	}
}

func (t *EntryType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseEntryType(s)
	return nil
}

// MappingEntry is one row of the cross-reference corpus: every external
// catalog identifier known for a single title, with optional per-catalog
// season overrides.
type MappingEntry struct {
	AniDBID          FlexID    `json:"anidb_id,omitempty"`
	AniListID        FlexID    `json:"anilist_id,omitempty"`
	AnimeCountdownID FlexID    `json:"animecountdown_id,omitempty"`
	AnimePlanetID    FlexID    `json:"anime-planet_id,omitempty"`
	AniSearchID      FlexID    `json:"anisearch_id,omitempty"`
	IMDBID           FlexID    `json:"imdb_id,omitempty"`
	KitsuID          FlexID    `json:"kitsu_id,omitempty"`
	LiveChartID      FlexID    `json:"livechart_id,omitempty"`
	MALID            FlexID    `json:"mal_id,omitempty"`
	NotifyMoeID      FlexID    `json:"notify.moe_id,omitempty"`
	SimklID          FlexID    `json:"simkl_id,omitempty"`
	TheTVDBID        FlexID    `json:"thetvdb_id,omitempty"`
	TheMovieDBID     FlexID    `json:"themoviedb_id,omitempty"`
	TraktID          FlexID    `json:"trakt_id,omitempty"`
	Type             EntryType `json:"type,omitempty"`
	TVDBSeason       *int      `json:"thetvdb_season,omitempty"`
	TMDBSeason       *int      `json:"themoviedb_season,omitempty"`
}

// IDFor returns the entry's identifier for a given catalog source.
func (m *MappingEntry) IDFor(source ids.Source) FlexID {
	switch source {
	case ids.SourceAniDB:
		return m.AniDBID
	case ids.SourceAniList:
		return m.AniListID
	case ids.SourceAnimeCountdown:
		return m.AnimeCountdownID
	case ids.SourceAnimePlanet:
		return m.AnimePlanetID
	case ids.SourceAniSearch:
		return m.AniSearchID
	case ids.SourceIMDB:
		return m.IMDBID
	case ids.SourceKitsu:
		return m.KitsuID
	case ids.SourceLiveChart:
		return m.LiveChartID
	case ids.SourceMAL:
		return m.MALID
	case ids.SourceNotifyMoe:
		return m.NotifyMoeID
	case ids.SourceSimkl:
		return m.SimklID
	case ids.SourceTVDB:
		return m.TheTVDBID
	case ids.SourceTMDB:
		return m.TheMovieDBID
	case ids.SourceTrakt:
		return m.TraktID
	default:
		return ""
	}
}

// AnimeSeason is the broadcast season a title premiered in.
type AnimeSeason struct {
	Season string `json:"season"`
	Year   *int   `json:"year,omitempty"`
}

// AnimeDetails carries per-title metadata from the offline catalog. At the
// reduced detail level only title, synonyms and the anime season survive.
type AnimeDetails struct {
	Title       string       `json:"title"`
	Synonyms    []string     `json:"synonyms,omitempty"`
	AnimeSeason *AnimeSeason `json:"animeSeason,omitempty"`

	Type     string   `json:"type,omitempty"`
	Episodes int      `json:"episodes,omitempty"`
	Status   string   `json:"status,omitempty"`
	Picture  string   `json:"picture,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Reduced strips the details down to the fields the lookup path needs.
func (d *AnimeDetails) Reduced() *AnimeDetails {
	return &AnimeDetails{
		Title:       d.Title,
		Synonyms:    d.Synonyms,
		AnimeSeason: d.AnimeSeason,
	}
}

// KitsuImdbEntry maps a Kitsu season entry onto its IMDb parent with the
// season window it occupies there.
type KitsuImdbEntry struct {
	KitsuID         FlexID `json:"-"`
	IMDBID          string `json:"imdb_id,omitempty"`
	TVDBID          FlexID `json:"tvdb_id,omitempty"`
	Title           string `json:"title,omitempty"`
	FromSeason      *int   `json:"fromSeason,omitempty"`
	FromEpisode     *int   `json:"fromEpisode,omitempty"`
	NonImdbEpisodes []int  `json:"nonImdbEpisodes,omitempty"`
	FanartLogoID    string `json:"fanartLogoId,omitempty"`
}

// Anitrakt corpus records, linking MyAnimeList entries to Trakt.

type AnitraktTitleID struct {
	Title string `json:"title"`
	ID    int    `json:"id"`
}

type AnitraktSeasonExternals struct {
	TVDB *int `json:"tvdb,omitempty"`
	TMDB *int `json:"tmdb,omitempty"`
}

type AnitraktSeason struct {
	ID        int                     `json:"id"`
	Number    int                     `json:"number"`
	Externals AnitraktSeasonExternals `json:"externals"`
}

type AnitraktTrakt struct {
	Title       string          `json:"title"`
	ID          int             `json:"id"`
	Slug        string          `json:"slug"`
	Type        string          `json:"type,omitempty"`
	Season      *AnitraktSeason `json:"season,omitempty"`
	IsSplitCour *bool           `json:"is_split_cour,omitempty"`
}

type AnitraktExternals struct {
	TVDB *int   `json:"tvdb,omitempty"`
	TMDB *int   `json:"tmdb,omitempty"`
	IMDB string `json:"imdb,omitempty"`
}

type AnitraktEntry struct {
	MyAnimeList AnitraktTitleID   `json:"myanimelist"`
	Trakt       AnitraktTrakt     `json:"trakt"`
	Externals   AnitraktExternals `json:"externals"`
	ReleaseYear *int              `json:"release_year,omitempty"`
}

// SeasonRef is a default-season reference from the anime list: a concrete
// season number, or "a" for absolute numbering across the whole series.
type SeasonRef string

// SeasonAbsolute marks absolute numbering.
const SeasonAbsolute SeasonRef = "a"

func (s SeasonRef) Empty() bool { return s == "" }

func (s SeasonRef) IsAbsolute() bool { return s == SeasonAbsolute }

// Number returns the concrete season number, when the reference is numeric.
func (s SeasonRef) Number() (int, bool) {
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Matches reports whether the reference covers the requested season. An
// absolute reference covers every season.
func (s SeasonRef) Matches(season int) bool {
	if s.IsAbsolute() {
		return true
	}
	n, ok := s.Number()
	return ok && n == season
}

// AnimeListMapping is one per-season refinement from the anime list XML.
// Episodes holds the raw ";anidb-tvdb;..." pair list when present.
type AnimeListMapping struct {
	AniDBSeason int    `json:"anidbSeason"`
	TVDBSeason  *int   `json:"tvdbSeason,omitempty"`
	TMDBSeason  *int   `json:"tmdbSeason,omitempty"`
	Start       *int   `json:"start,omitempty"`
	End         *int   `json:"end,omitempty"`
	Offset      *int   `json:"offset,omitempty"`
	Episodes    string `json:"episodes,omitempty"`
}

// AnimeListEntry is one anime element from the anime list XML master file.
type AnimeListEntry struct {
	AniDBID           FlexID             `json:"anidbId"`
	TVDBID            FlexID             `json:"tvdbId,omitempty"`
	DefaultTVDBSeason SeasonRef          `json:"defaultTvdbSeason,omitempty"`
	EpisodeOffset     *int               `json:"episodeOffset,omitempty"`
	TMDBID            FlexID             `json:"tmdbId,omitempty"`
	TMDBTVID          FlexID             `json:"tmdbTvId,omitempty"`
	DefaultTMDBSeason SeasonRef          `json:"defaultTmdbSeason,omitempty"`
	TMDBOffset        *int               `json:"tmdbOffset,omitempty"`
	IMDBID            string             `json:"imdbId,omitempty"`
	Name              string             `json:"name,omitempty"`
	Mappings          []AnimeListMapping `json:"mappings,omitempty"`
}

// NumericTVDBID returns the TVDB identifier when it is a real series id. The
// list also uses placeholders like "movie" or "unknown" in that attribute.
func (e *AnimeListEntry) NumericTVDBID() (FlexID, bool) {
	if _, ok := e.TVDBID.Int(); !ok {
		return "", false
	}
	return e.TVDBID, true
}

// CatalogSeason is a per-catalog season projection on a resolved entry.
type CatalogSeason struct {
	SeasonNumber  *int `json:"seasonNumber,omitempty"`
	SeasonID      *int `json:"seasonId,omitempty"`
	FromEpisode   *int `json:"fromEpisode,omitempty"`
	AbsoluteOrder bool `json:"absoluteOrder,omitempty"`
}

// IMDBProjection is the IMDb-side view contributed by the Kitsu corpus.
type IMDBProjection struct {
	SeasonNumber    *int   `json:"seasonNumber,omitempty"`
	FromEpisode     *int   `json:"fromEpisode,omitempty"`
	NonImdbEpisodes []int  `json:"nonImdbEpisodes,omitempty"`
	Title           string `json:"title,omitempty"`
}

// TraktProjection is the Trakt-side view contributed by the Anitrakt corpus.
type TraktProjection struct {
	Title        string `json:"title,omitempty"`
	Slug         string `json:"slug,omitempty"`
	IsSplitCour  *bool  `json:"isSplitCour,omitempty"`
	SeasonID     *int   `json:"seasonId,omitempty"`
	SeasonNumber *int   `json:"seasonNumber,omitempty"`
}

// Fanart carries artwork identifiers attached to an entry.
type Fanart struct {
	LogoID string `json:"logoId,omitempty"`
}

// AnimeEntry is the merged view a lookup resolves to: the winning mapping,
// offline-catalog details and the per-catalog projections layered from the
// co-indexed corpora.
type AnimeEntry struct {
	Mapping     *MappingEntry `json:"mapping,omitempty"`
	Type        EntryType     `json:"type"`
	Title       string        `json:"title,omitempty"`
	Synonyms    []string      `json:"synonyms,omitempty"`
	AnimeSeason *AnimeSeason  `json:"animeSeason,omitempty"`

	IMDBID    string `json:"imdbId,omitempty"`
	TVDBID    FlexID `json:"tvdbId,omitempty"`
	TMDBID    FlexID `json:"tmdbId,omitempty"`
	TraktID   FlexID `json:"traktId,omitempty"`
	MALID     FlexID `json:"malId,omitempty"`
	KitsuID   FlexID `json:"kitsuId,omitempty"`
	AniListID FlexID `json:"anilistId,omitempty"`
	AniDBID   FlexID `json:"anidbId,omitempty"`

	TVDB   *CatalogSeason   `json:"tvdb,omitempty"`
	TMDB   *CatalogSeason   `json:"tmdb,omitempty"`
	IMDB   *IMDBProjection  `json:"imdb,omitempty"`
	Trakt  *TraktProjection `json:"trakt,omitempty"`
	Fanart *Fanart          `json:"fanart,omitempty"`

	EpisodeMappings []AnimeListMapping `json:"episodeMappings,omitempty"`
}

// DetailLevel controls how much of each corpus is retained in memory.
type DetailLevel string

const (
	DetailNone     DetailLevel = "none"
	DetailRequired DetailLevel = "required"
	DetailFull     DetailLevel = "full"
)

// ParseDetailLevel normalizes a configured detail level, defaulting to
// required.
func ParseDetailLevel(s string) DetailLevel {
	switch DetailLevel(strings.ToLower(strings.TrimSpace(s))) {
	case DetailNone:
		return DetailNone
	case DetailFull:
		return DetailFull
	default:
		return DetailRequired
	}
}
