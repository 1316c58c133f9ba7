// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/animedb"
)

func TestAnimeDBCollector_Collect(t *testing.T) {
	t.Parallel()

	collector := NewAnimeDBCollector(&fakeAnimeStats{stats: []animedb.CorpusStats{
		{Name: "mappings", Loaded: true, Entries: 38000},
		{Name: "kitsu-imdb", Loaded: false, Entries: 0},
	}})

	expected := `
# HELP tributary_animedb_corpus_entries Number of entries loaded from an anime identity corpus
# TYPE tributary_animedb_corpus_entries gauge
tributary_animedb_corpus_entries{corpus="kitsu-imdb"} 0
tributary_animedb_corpus_entries{corpus="mappings"} 38000
# HELP tributary_animedb_corpus_loaded Whether a corpus has completed at least one load (1=loaded, 0=pending)
# TYPE tributary_animedb_corpus_loaded gauge
tributary_animedb_corpus_loaded{corpus="kitsu-imdb"} 0
tributary_animedb_corpus_loaded{corpus="mappings"} 1
`

	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"tributary_animedb_corpus_entries", "tributary_animedb_corpus_loaded")
	require.NoError(t, err)
}

func TestAnimeDBCollector_Describe(t *testing.T) {
	t.Parallel()

	collector := NewAnimeDBCollector(&fakeAnimeStats{})

	count := testutil.CollectAndCount(collector)
	assert.Equal(t, 0, count, "no corpora, no series")
}
