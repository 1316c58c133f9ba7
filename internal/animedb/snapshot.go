// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/tributary/tributary/internal/ids"
)

// corpora holds the latest successfully parsed payload of every source. A
// snapshot is derived from it as a whole; corpora values are never published
// to readers directly.
type corpora struct {
	mappings       []*MappingEntry
	details        map[ids.Source]map[string]*AnimeDetails
	kitsu          map[string]*KitsuImdbEntry
	anitraktMovies map[string]*AnitraktEntry
	anitraktTV     map[string]*AnitraktEntry
	animeList      []*AnimeListEntry
}

// snapshot is one immutable generation of the in-memory indices. Lookups run
// against a snapshot loaded via an atomic pointer, so a refresh can never
// expose a half-rebuilt structure.
type snapshot struct {
	mappings          map[ids.Source]map[string][]*MappingEntry
	details           map[ids.Source]map[string]*AnimeDetails
	kitsu             map[string]*KitsuImdbEntry
	anitraktMovies    map[string]*AnitraktEntry
	anitraktTV        map[string]*AnitraktEntry
	animeListByAniDB  map[string]*AnimeListEntry
	animeListByTVDB   map[string][]*AnimeListEntry
	animeListByTMDBTV map[string][]*AnimeListEntry

	episodeTieBreak bool
}

var indexedSources = []ids.Source{
	ids.SourceIMDB, ids.SourceTMDB, ids.SourceTVDB, ids.SourceMAL,
	ids.SourceKitsu, ids.SourceAniDB, ids.SourceAniList, ids.SourceAnimePlanet,
	ids.SourceAniSearch, ids.SourceLiveChart, ids.SourceNotifyMoe,
	ids.SourceSimkl, ids.SourceTrakt, ids.SourceAnimeCountdown,
}

// detailScanOrder is the order a mapping's identifiers are tried against the
// offline catalog when resolving details.
var detailScanOrder = []ids.Source{
	ids.SourceAniDB, ids.SourceAniList, ids.SourceMAL, ids.SourceKitsu,
	ids.SourceAnimePlanet, ids.SourceAniSearch, ids.SourceLiveChart,
	ids.SourceNotifyMoe, ids.SourceSimkl, ids.SourceAnimeCountdown,
}

// buildSnapshot derives a fresh set of indices from the loaded corpora.
// Mapping entries are cloned first: the Kitsu enrichment below mutates them,
// and base corpus data must stay pristine for the next rebuild.
func buildSnapshot(c *corpora, episodeTieBreak bool) *snapshot {
	snap := &snapshot{
		mappings:          make(map[ids.Source]map[string][]*MappingEntry),
		details:           c.details,
		kitsu:             c.kitsu,
		anitraktMovies:    c.anitraktMovies,
		anitraktTV:        c.anitraktTV,
		animeListByAniDB:  make(map[string]*AnimeListEntry),
		animeListByTVDB:   make(map[string][]*AnimeListEntry),
		animeListByTMDBTV: make(map[string][]*AnimeListEntry),
		episodeTieBreak:   episodeTieBreak,
	}
	if snap.details == nil {
		snap.details = make(map[ids.Source]map[string]*AnimeDetails)
	}
	if snap.kitsu == nil {
		snap.kitsu = make(map[string]*KitsuImdbEntry)
	}
	if snap.anitraktMovies == nil {
		snap.anitraktMovies = make(map[string]*AnitraktEntry)
	}
	if snap.anitraktTV == nil {
		snap.anitraktTV = make(map[string]*AnitraktEntry)
	}

	for _, base := range c.mappings {
		clone := *base
		snap.indexMapping(&clone)
	}

	snap.enrichFromKitsu()

	for _, e := range c.animeList {
		key := NormalizeIDValue(e.AniDBID.String())
		if key == "" {
			continue
		}
		snap.animeListByAniDB[key] = e
		if tvdbID, ok := e.NumericTVDBID(); ok {
			k := NormalizeIDValue(tvdbID.String())
			snap.animeListByTVDB[k] = append(snap.animeListByTVDB[k], e)
		}
		if !e.TMDBTVID.Empty() {
			k := NormalizeIDValue(e.TMDBTVID.String())
			snap.animeListByTMDBTV[k] = append(snap.animeListByTMDBTV[k], e)
		}
	}

	return snap
}

func (s *snapshot) indexMapping(m *MappingEntry) {
	for _, src := range indexedSources {
		id := m.IDFor(src)
		if id.Empty() {
			continue
		}
		bySource := s.mappings[src]
		if bySource == nil {
			bySource = make(map[string][]*MappingEntry)
			s.mappings[src] = bySource
		}
		key := NormalizeIDValue(id.String())
		bySource[key] = append(bySource[key], m)
	}
}

// enrichFromKitsu copies each Kitsu entry's IMDb id onto its cross-reference
// mapping and registers the shared mapping under that IMDb id, deduplicated
// by Kitsu id. Keys are walked in sorted order so rebuilds are deterministic.
func (s *snapshot) enrichFromKitsu() {
	byKitsu := s.mappings[ids.SourceKitsu]
	if byKitsu == nil {
		return
	}

	kitsuIDs := make([]string, 0, len(s.kitsu))
	for id := range s.kitsu {
		kitsuIDs = append(kitsuIDs, id)
	}
	sort.Slice(kitsuIDs, func(i, j int) bool {
		a, errA := strconv.Atoi(kitsuIDs[i])
		b, errB := strconv.Atoi(kitsuIDs[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return kitsuIDs[i] < kitsuIDs[j]
	})

	for _, kitsuID := range kitsuIDs {
		entry := s.kitsu[kitsuID]
		if entry.IMDBID == "" {
			continue
		}
		list := byKitsu[NormalizeIDValue(kitsuID)]
		if len(list) == 0 {
			continue
		}
		mapping := list[0]
		if mapping.IMDBID.Empty() {
			mapping.IMDBID = FlexID(entry.IMDBID)
		}

		imdbKey := NormalizeIDValue(entry.IMDBID)
		byIMDB := s.mappings[ids.SourceIMDB]
		if byIMDB == nil {
			byIMDB = make(map[string][]*MappingEntry)
			s.mappings[ids.SourceIMDB] = byIMDB
		}
		if !containsKitsuID(byIMDB[imdbKey], mapping.KitsuID) {
			byIMDB[imdbKey] = append(byIMDB[imdbKey], mapping)
		}
	}
}

func containsKitsuID(list []*MappingEntry, kitsuID FlexID) bool {
	for _, m := range list {
		if !m.KitsuID.Empty() && m.KitsuID == kitsuID {
			return true
		}
	}
	return false
}

func (s *snapshot) lookupMappings(source ids.Source, norm, raw string) []*MappingEntry {
	bySource := s.mappings[source]
	if bySource == nil {
		return nil
	}
	if list := bySource[norm]; len(list) > 0 {
		return list
	}
	return bySource[raw]
}

// entryByID resolves an identifier to its merged entry, or nil when nothing
// in any corpus knows it.
func (s *snapshot) entryByID(source ids.Source, value string, season, episode *int) *AnimeEntry {
	norm := NormalizeIDValue(value)
	list := s.lookupMappings(source, norm, value)
	filtered := filterBySeasonType(list, season)

	var (
		mapping    *MappingEntry
		chosenList *AnimeListEntry
	)
	switch {
	case len(filtered) == 0:
		// No mapping; the query id itself may still hit a co-indexed corpus.
	case len(filtered) == 1:
		mapping = filtered[0]
	case season != nil && episode != nil:
		mapping, chosenList = s.disambiguate(filtered, *season, *episode)
		if mapping == nil {
			mapping = s.matchBySynonym(filtered, *season)
		}
		if mapping == nil {
			mapping = filtered[0]
		}
	default:
		mapping = filtered[0]
	}

	var details *AnimeDetails
	if mapping != nil {
		details = s.detailsFor(mapping)
	}

	kitsuEntry := s.kitsuFor(mapping, source, norm)
	anitraktEntry := s.anitraktFor(mapping, source, norm, season)
	listEntry := chosenList
	if listEntry == nil {
		listEntry = s.animeListFor(mapping, source, norm)
	}

	if mapping == nil && details == nil && kitsuEntry == nil && anitraktEntry == nil && listEntry == nil {
		return nil
	}
	return buildEntry(mapping, details, kitsuEntry, anitraktEntry, listEntry)
}

// filterBySeasonType narrows an ambiguous mapping list by the entry type the
// requested scope implies: no season prefers movies, season 0 prefers
// specials, anything else prefers TV. Unknown-typed entries always survive,
// and an emptied list falls back to the unfiltered one.
func filterBySeasonType(list []*MappingEntry, season *int) []*MappingEntry {
	if len(list) == 0 {
		return list
	}

	var keep func(EntryType) bool
	switch {
	case season == nil:
		keep = func(t EntryType) bool { return t == TypeMovie }
	case *season == 0:
		keep = func(t EntryType) bool { return t == TypeSpecial || t == TypeOVA || t == TypeONA }
	default:
		keep = func(t EntryType) bool { return t == TypeTV }
	}

	out := make([]*MappingEntry, 0, len(list))
	for _, m := range list {
		if keep(m.Type) || m.Type == TypeUnknown || m.Type == "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return list
	}
	return out
}

type seasonCandidate struct {
	mapping     *MappingEntry
	listEntry   *AnimeListEntry
	fromEpisode int
}

// disambiguate picks the mapping whose season window covers the requested
// (season, episode). Windows come from the Kitsu corpus and from anime-list
// entries reachable through each mapping's TVDB id (falling back to TMDB TV
// ids). Among matching windows the highest fromEpisode wins: the most
// specific split-cour half.
func (s *snapshot) disambiguate(list []*MappingEntry, season, episode int) (*MappingEntry, *AnimeListEntry) {
	if !s.episodeTieBreak {
		return nil, nil
	}

	var candidates []seasonCandidate

	for _, m := range list {
		if m.KitsuID.Empty() {
			continue
		}
		k := s.kitsu[NormalizeIDValue(m.KitsuID.String())]
		if k == nil || k.FromSeason == nil || *k.FromSeason != season {
			continue
		}
		from := 1
		if k.FromEpisode != nil {
			from = *k.FromEpisode
		}
		if episode < from {
			continue
		}
		candidates = append(candidates, seasonCandidate{mapping: m, fromEpisode: from})
	}

	listCandidates := s.animeListCandidates(list, season, episode, false)
	if len(listCandidates) == 0 {
		listCandidates = s.animeListCandidates(list, season, episode, true)
	}
	candidates = append(candidates, listCandidates...)

	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.fromEpisode > best.fromEpisode {
			best = c
		}
	}
	return best.mapping, best.listEntry
}

func (s *snapshot) animeListCandidates(list []*MappingEntry, season, episode int, viaTMDB bool) []seasonCandidate {
	var candidates []seasonCandidate
	seen := make(map[*AnimeListEntry]struct{})

	for _, m := range list {
		var entries []*AnimeListEntry
		if viaTMDB {
			if m.TheMovieDBID.Empty() {
				continue
			}
			entries = s.animeListByTMDBTV[NormalizeIDValue(m.TheMovieDBID.String())]
		} else {
			tvdbID := m.TheTVDBID
			if tvdbID.Empty() && !m.IMDBID.Empty() {
				tvdbID = s.tvdbIDViaIMDB(m.IMDBID)
			}
			if tvdbID.Empty() {
				continue
			}
			entries = s.animeListByTVDB[NormalizeIDValue(tvdbID.String())]
		}

		for _, e := range entries {
			if _, dup := seen[e]; dup {
				continue
			}

			var (
				ref    SeasonRef
				offset *int
			)
			if viaTMDB {
				ref, offset = e.DefaultTMDBSeason, e.TMDBOffset
			} else {
				ref, offset = e.DefaultTVDBSeason, e.EpisodeOffset
			}
			if ref.Empty() || !ref.Matches(season) {
				continue
			}
			from := 1
			if offset != nil {
				from = *offset + 1
			}
			if episode < from {
				continue
			}

			seen[e] = struct{}{}
			candidates = append(candidates, seasonCandidate{
				mapping:     mappingForListEntry(list, e, m),
				listEntry:   e,
				fromEpisode: from,
			})
		}
	}
	return candidates
}

// tvdbIDViaIMDB converts an IMDb id to a TVDB id through the cross-reference
// index.
func (s *snapshot) tvdbIDViaIMDB(imdbID FlexID) FlexID {
	for _, m := range s.mappings[ids.SourceIMDB][NormalizeIDValue(imdbID.String())] {
		if !m.TheTVDBID.Empty() {
			return m.TheTVDBID
		}
	}
	return ""
}

// mappingForListEntry pairs an anime-list entry with the mapping it belongs
// to, preferring an exact AniDB match over the mapping that reached it.
func mappingForListEntry(list []*MappingEntry, e *AnimeListEntry, reached *MappingEntry) *MappingEntry {
	if !e.AniDBID.Empty() {
		for _, m := range list {
			if m.AniDBID == e.AniDBID {
				return m
			}
		}
	}
	return reached
}

var seasonSynonymRe = regexp.MustCompile(`(?i)season[\s_-]*(\d+)`)

// matchBySynonym returns the first mapping whose catalog details carry a
// "season N" style synonym for the requested season.
func (s *snapshot) matchBySynonym(list []*MappingEntry, season int) *MappingEntry {
	for _, m := range list {
		d := s.detailsFor(m)
		if d == nil {
			continue
		}
		if synonymSeason(d.Title) == season {
			return m
		}
		for _, syn := range d.Synonyms {
			if synonymSeason(syn) == season {
				return m
			}
		}
	}
	return nil
}

// synonymSeason extracts the season number from a "season N" style string, or
// -1 when none is present.
func synonymSeason(text string) int {
	match := seasonSynonymRe.FindStringSubmatch(text)
	if match == nil {
		return -1
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return n
}

func (s *snapshot) detailsFor(m *MappingEntry) *AnimeDetails {
	for _, src := range detailScanOrder {
		id := m.IDFor(src)
		if id.Empty() {
			continue
		}
		if bySource := s.details[src]; bySource != nil {
			if d := bySource[NormalizeIDValue(id.String())]; d != nil {
				return d
			}
		}
	}
	return nil
}

func (s *snapshot) kitsuFor(mapping *MappingEntry, source ids.Source, norm string) *KitsuImdbEntry {
	key := ""
	if mapping != nil && !mapping.KitsuID.Empty() {
		key = NormalizeIDValue(mapping.KitsuID.String())
	} else if source == ids.SourceKitsu {
		key = norm
	}
	if key == "" {
		return nil
	}
	return s.kitsu[key]
}

func (s *snapshot) anitraktFor(mapping *MappingEntry, source ids.Source, norm string, season *int) *AnitraktEntry {
	key := ""
	if mapping != nil && !mapping.MALID.Empty() {
		key = NormalizeIDValue(mapping.MALID.String())
	} else if source == ids.SourceMAL {
		key = norm
	}
	if key == "" {
		return nil
	}

	// A season-less query is a movie lookup; otherwise TV takes priority.
	if season == nil {
		if e := s.anitraktMovies[key]; e != nil {
			return e
		}
		return s.anitraktTV[key]
	}
	if e := s.anitraktTV[key]; e != nil {
		return e
	}
	return s.anitraktMovies[key]
}

func (s *snapshot) animeListFor(mapping *MappingEntry, source ids.Source, norm string) *AnimeListEntry {
	key := ""
	if mapping != nil && !mapping.AniDBID.Empty() {
		key = NormalizeIDValue(mapping.AniDBID.String())
	} else if source == ids.SourceAniDB {
		key = norm
	}
	if key == "" {
		return nil
	}
	return s.animeListByAniDB[key]
}
