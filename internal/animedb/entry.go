// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"strconv"
	"strings"

	"github.com/tributary/tributary/internal/ids"
)

// buildEntry layers the co-indexed corpus records into the merged view.
// Identifier precedence differs per catalog; the anime list is authoritative
// for TVDB ids while the cross-reference wins everywhere else.
func buildEntry(mapping *MappingEntry, details *AnimeDetails, kitsu *KitsuImdbEntry, anitrakt *AnitraktEntry, listEntry *AnimeListEntry) *AnimeEntry {
	entry := &AnimeEntry{Mapping: mapping, Type: TypeUnknown}

	if mapping != nil && mapping.Type != "" {
		entry.Type = mapping.Type
	}
	if details != nil {
		entry.Title = details.Title
		entry.Synonyms = details.Synonyms
		entry.AnimeSeason = details.AnimeSeason
	}

	entry.IMDBID = firstNonEmpty(
		mappingID(mapping, func(m *MappingEntry) FlexID { return m.IMDBID }).String(),
		listIMDBID(listEntry),
		kitsuIMDBID(kitsu),
		anitraktIMDBID(anitrakt),
	)
	entry.TVDBID = firstNonEmptyID(
		listTVDBID(listEntry),
		kitsuTVDBID(kitsu),
		mappingID(mapping, func(m *MappingEntry) FlexID { return m.TheTVDBID }),
		anitraktTVDBID(anitrakt),
	)
	entry.TMDBID = firstNonEmptyID(
		mappingID(mapping, func(m *MappingEntry) FlexID { return m.TheMovieDBID }),
		listTMDBID(listEntry),
		anitraktTMDBID(anitrakt),
	)
	entry.TraktID = firstNonEmptyID(
		mappingID(mapping, func(m *MappingEntry) FlexID { return m.TraktID }),
		anitraktTraktID(anitrakt),
	)

	entry.MALID = mappingID(mapping, func(m *MappingEntry) FlexID { return m.MALID })
	if entry.MALID.Empty() && anitrakt != nil && anitrakt.MyAnimeList.ID != 0 {
		entry.MALID = intID(anitrakt.MyAnimeList.ID)
	}
	entry.KitsuID = mappingID(mapping, func(m *MappingEntry) FlexID { return m.KitsuID })
	if entry.KitsuID.Empty() && kitsu != nil {
		entry.KitsuID = kitsu.KitsuID
	}
	entry.AniListID = mappingID(mapping, func(m *MappingEntry) FlexID { return m.AniListID })
	entry.AniDBID = mappingID(mapping, func(m *MappingEntry) FlexID { return m.AniDBID })
	if entry.AniDBID.Empty() && listEntry != nil {
		entry.AniDBID = listEntry.AniDBID
	}

	entry.TVDB = tvdbProjection(mapping, listEntry, anitrakt)
	entry.TMDB = tmdbProjection(mapping, listEntry, anitrakt)

	if kitsu != nil {
		entry.IMDB = &IMDBProjection{
			SeasonNumber:    kitsu.FromSeason,
			FromEpisode:     kitsu.FromEpisode,
			NonImdbEpisodes: kitsu.NonImdbEpisodes,
			Title:           kitsu.Title,
		}
		if kitsu.FanartLogoID != "" {
			entry.Fanart = &Fanart{LogoID: kitsu.FanartLogoID}
		}
	}

	if anitrakt != nil {
		trakt := &TraktProjection{
			Title:       anitrakt.Trakt.Title,
			Slug:        anitrakt.Trakt.Slug,
			IsSplitCour: anitrakt.Trakt.IsSplitCour,
		}
		if season := anitrakt.Trakt.Season; season != nil {
			id, number := season.ID, season.Number
			trakt.SeasonID = &id
			trakt.SeasonNumber = &number
		}
		entry.Trakt = trakt
	}

	if listEntry != nil {
		entry.EpisodeMappings = listEntry.Mappings
	}

	return entry
}

// tvdbProjection derives the TVDB season view: the cross-reference's season
// override wins, then the anime-list default season; the episode window is
// always the anime-list offset plus one.
func tvdbProjection(mapping *MappingEntry, listEntry *AnimeListEntry, anitrakt *AnitraktEntry) *CatalogSeason {
	proj := &CatalogSeason{}

	switch {
	case mapping != nil && mapping.TVDBSeason != nil:
		proj.SeasonNumber = cloneInt(mapping.TVDBSeason)
	case listEntry != nil && !listEntry.DefaultTVDBSeason.Empty():
		if listEntry.DefaultTVDBSeason.IsAbsolute() {
			proj.AbsoluteOrder = true
		} else if n, ok := listEntry.DefaultTVDBSeason.Number(); ok {
			proj.SeasonNumber = &n
		}
	}

	if listEntry != nil && listEntry.EpisodeOffset != nil {
		from := *listEntry.EpisodeOffset + 1
		proj.FromEpisode = &from
	}

	if anitrakt != nil && anitrakt.Trakt.Season != nil {
		proj.SeasonID = cloneInt(anitrakt.Trakt.Season.Externals.TVDB)
	}

	if emptyProjection(proj) {
		return nil
	}
	return proj
}

func tmdbProjection(mapping *MappingEntry, listEntry *AnimeListEntry, anitrakt *AnitraktEntry) *CatalogSeason {
	proj := &CatalogSeason{}

	switch {
	case mapping != nil && mapping.TMDBSeason != nil:
		proj.SeasonNumber = cloneInt(mapping.TMDBSeason)
	case listEntry != nil && !listEntry.DefaultTMDBSeason.Empty():
		if listEntry.DefaultTMDBSeason.IsAbsolute() {
			proj.AbsoluteOrder = true
		} else if n, ok := listEntry.DefaultTMDBSeason.Number(); ok {
			proj.SeasonNumber = &n
		}
	}

	if listEntry != nil && listEntry.TMDBOffset != nil {
		from := *listEntry.TMDBOffset + 1
		proj.FromEpisode = &from
	}

	if anitrakt != nil && anitrakt.Trakt.Season != nil {
		proj.SeasonID = cloneInt(anitrakt.Trakt.Season.Externals.TMDB)
	}

	if emptyProjection(proj) {
		return nil
	}
	return proj
}

func emptyProjection(p *CatalogSeason) bool {
	return p.SeasonNumber == nil && p.SeasonID == nil && p.FromEpisode == nil && !p.AbsoluteOrder
}

// EnrichParsedID fills a season-less identifier from the resolved entry's
// projections and, for the per-season catalogs, rebases the episode number
// onto the parent series. Identifiers that already carry a season pass
// through untouched, which makes repeated enrichment a no-op.
func EnrichParsedID(p ids.ParsedID, entry *AnimeEntry) ids.ParsedID {
	if entry == nil || p.Season != nil {
		return p
	}

	season := enrichmentSeason(entry)
	if season == nil {
		return p
	}
	p.Season = season

	if (p.Source == ids.SourceMAL || p.Source == ids.SourceKitsu) && p.Episode != nil {
		var from *int
		if entry.IMDB != nil && entry.IMDB.FromEpisode != nil {
			from = entry.IMDB.FromEpisode
		} else if entry.TVDB != nil && entry.TVDB.FromEpisode != nil {
			from = entry.TVDB.FromEpisode
		}
		if from != nil {
			rebased := *from + *p.Episode - 1
			p.Episode = &rebased
		}
	}

	return p
}

// enrichmentSeason picks the season number for enrichment, trying each
// catalog projection in a fixed order and finally season-style synonyms.
func enrichmentSeason(entry *AnimeEntry) *int {
	if entry.IMDB != nil && entry.IMDB.SeasonNumber != nil {
		return cloneInt(entry.IMDB.SeasonNumber)
	}
	if entry.Trakt != nil && entry.Trakt.SeasonNumber != nil {
		return cloneInt(entry.Trakt.SeasonNumber)
	}
	if entry.TVDB != nil && entry.TVDB.SeasonNumber != nil {
		return cloneInt(entry.TVDB.SeasonNumber)
	}
	for _, text := range append([]string{entry.Title}, entry.Synonyms...) {
		if n := synonymSeason(text); n > 0 {
			return &n
		}
	}
	if entry.TMDB != nil && entry.TMDB.SeasonNumber != nil {
		return cloneInt(entry.TMDB.SeasonNumber)
	}
	return nil
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func intID(n int) FlexID {
	return FlexID(strconv.Itoa(n))
}

func mappingID(m *MappingEntry, pick func(*MappingEntry) FlexID) FlexID {
	if m == nil {
		return ""
	}
	return pick(m)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyID(values ...FlexID) FlexID {
	for _, v := range values {
		if !v.Empty() {
			return v
		}
	}
	return ""
}

// listIMDBID returns the primary IMDb id from an anime-list entry; the list
// uses comma-separated ids for multi-part releases and "unknown" as an
// explicit placeholder.
func listIMDBID(e *AnimeListEntry) string {
	if e == nil || e.IMDBID == "" {
		return ""
	}
	primary := strings.TrimSpace(strings.Split(e.IMDBID, ",")[0])
	if primary == "" || strings.EqualFold(primary, "unknown") {
		return ""
	}
	return primary
}

func listTVDBID(e *AnimeListEntry) FlexID {
	if e == nil {
		return ""
	}
	id, ok := e.NumericTVDBID()
	if !ok {
		return ""
	}
	return id
}

func listTMDBID(e *AnimeListEntry) FlexID {
	if e == nil {
		return ""
	}
	if !e.TMDBTVID.Empty() {
		return e.TMDBTVID
	}
	return e.TMDBID
}

func kitsuIMDBID(k *KitsuImdbEntry) string {
	if k == nil {
		return ""
	}
	return k.IMDBID
}

func kitsuTVDBID(k *KitsuImdbEntry) FlexID {
	if k == nil {
		return ""
	}
	return k.TVDBID
}

func anitraktIMDBID(a *AnitraktEntry) string {
	if a == nil {
		return ""
	}
	return a.Externals.IMDB
}

func anitraktTVDBID(a *AnitraktEntry) FlexID {
	if a == nil || a.Externals.TVDB == nil {
		return ""
	}
	return intID(*a.Externals.TVDB)
}

func anitraktTMDBID(a *AnitraktEntry) FlexID {
	if a == nil || a.Externals.TMDB == nil {
		return ""
	}
	return intID(*a.Externals.TMDB)
}

func anitraktTraktID(a *AnitraktEntry) FlexID {
	if a == nil || a.Trakt.ID == 0 {
		return ""
	}
	return intID(a.Trakt.ID)
}
