// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"github.com/tributary/tributary/internal/ids"
)

// Fixtures carries pre-parsed corpora for constructing a database without
// disk or network access.
type Fixtures struct {
	Mappings       []*MappingEntry
	Details        map[ids.Source]map[string]*AnimeDetails
	Kitsu          map[string]*KitsuImdbEntry
	AnitraktMovies map[string]*AnitraktEntry
	AnitraktTV     map[string]*AnitraktEntry
	AnimeList      []*AnimeListEntry

	// DisableEpisodeTieBreak turns off the season-window disambiguation.
	DisableEpisodeTieBreak bool
}

// NewFromFixtures builds a database over pre-loaded corpora, skipping disk
// and network entirely. No refresh timers run; Shutdown stays safe to call.
func NewFromFixtures(f Fixtures) *Database {
	db := &Database{
		cfg: Config{
			DetailLevel:     DetailFull,
			EpisodeTieBreak: !f.DisableEpisodeTieBreak,
		},
		loaded: make(map[string]bool),
	}
	db.corpora = corpora{
		mappings:       f.Mappings,
		details:        f.Details,
		kitsu:          f.Kitsu,
		anitraktMovies: f.AnitraktMovies,
		anitraktTV:     f.AnitraktTV,
		animeList:      f.AnimeList,
	}
	db.rebuildLocked()
	return db
}
