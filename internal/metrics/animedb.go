// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tributary/tributary/internal/animedb"
)

// AnimeStats is the slice of the anime database the collector reads.
type AnimeStats interface {
	Stats() []animedb.CorpusStats
}

// AnimeDBCollector exports per-corpus load state and entry counts.
type AnimeDBCollector struct {
	db AnimeStats

	corpusEntriesDesc *prometheus.Desc
	corpusLoadedDesc  *prometheus.Desc
}

func NewAnimeDBCollector(db AnimeStats) *AnimeDBCollector {
	return &AnimeDBCollector{
		db: db,

		corpusEntriesDesc: prometheus.NewDesc(
			"tributary_animedb_corpus_entries",
			"Number of entries loaded from an anime identity corpus",
			[]string{"corpus"},
			nil,
		),
		corpusLoadedDesc: prometheus.NewDesc(
			"tributary_animedb_corpus_loaded",
			"Whether a corpus has completed at least one load (1=loaded, 0=pending)",
			[]string{"corpus"},
			nil,
		),
	}
}

func (c *AnimeDBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.corpusEntriesDesc
	ch <- c.corpusLoadedDesc
}

func (c *AnimeDBCollector) Collect(ch chan<- prometheus.Metric) {
	for _, corpus := range c.db.Stats() {
		loaded := 0.0
		if corpus.Loaded {
			loaded = 1.0
		}

		ch <- prometheus.MustNewConstMetric(
			c.corpusLoadedDesc,
			prometheus.GaugeValue,
			loaded,
			corpus.Name,
		)
		ch <- prometheus.MustNewConstMetric(
			c.corpusEntriesDesc,
			prometheus.GaugeValue,
			float64(corpus.Entries),
			corpus.Name,
		)
	}
}
