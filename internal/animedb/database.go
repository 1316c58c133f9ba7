// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/ids"
)

// Config controls corpus persistence, refresh cadence and lookup behavior.
type Config struct {
	// DataDir is the root the corpus files persist under.
	DataDir string

	// DetailLevel controls how much offline catalog data is kept in memory.
	DetailLevel DetailLevel

	// EpisodeTieBreak enables the season-window disambiguation for ambiguous
	// cross-reference lookups.
	EpisodeTieBreak bool

	// RefreshInterval applies to every corpus without a per-source override.
	RefreshInterval time.Duration

	// RefreshIntervals overrides the cadence for individual corpora by name.
	RefreshIntervals map[string]time.Duration

	// HTTPClient overrides the download client. Mostly for tests.
	HTTPClient *http.Client
}

// Database keeps the anime corpora fresh on disk and serves identity lookups
// from an immutable in-memory snapshot swapped atomically on every rebuild.
type Database struct {
	cfg     Config
	client  *http.Client
	sources []*source

	mu      sync.Mutex
	corpora corpora
	loaded  map[string]bool

	snap atomic.Pointer[snapshot]

	scheduler gocron.Scheduler
}

func New(cfg Config) (*Database, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("animedb: data dir is required")
	}
	cfg.DetailLevel = ParseDetailLevel(string(cfg.DetailLevel))

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	db := &Database{
		cfg:     cfg,
		client:  client,
		sources: buildSources(cfg),
		loaded:  make(map[string]bool),
	}

	// An unwritable data dir would otherwise only surface as endless refresh
	// failures in the background.
	if len(db.sources) > 0 {
		dir := filepath.Join(cfg.DataDir, "anime-database")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("animedb: create data directory %s: %w", dir, err)
		}
	}

	db.snap.Store(buildSnapshot(&corpora{}, cfg.EpisodeTieBreak))
	return db, nil
}

// Init performs the initial refresh of every corpus concurrently and starts
// the per-source refresh timers. Individual refresh failures are logged, not
// fatal: the database serves whatever loaded and heals on later cycles.
func (db *Database) Init(ctx context.Context) error {
	if len(db.sources) == 0 {
		log.Debug().Msg("animedb: no corpora configured, skipping init")
		return nil
	}

	var wg sync.WaitGroup
	for _, src := range db.sources {
		wg.Add(1)
		go func(src *source) {
			defer wg.Done()
			if err := db.refreshSource(ctx, src); err != nil {
				log.Error().Err(err).Str("source", src.name).
					Msg("animedb: initial corpus refresh failed")
			}
		}(src)
	}
	wg.Wait()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("animedb: create scheduler: %w", err)
	}
	for _, src := range db.sources {
		src := src
		_, err := scheduler.NewJob(
			gocron.DurationJob(src.interval),
			gocron.NewTask(func() {
				if err := db.refreshSource(context.Background(), src); err != nil {
					log.Error().Err(err).Str("source", src.name).
						Msg("animedb: scheduled corpus refresh failed")
				}
			}),
			gocron.WithName("animedb-refresh"),
			gocron.WithTags(src.name),
		)
		if err != nil {
			return fmt.Errorf("animedb: schedule %s refresh: %w", src.name, err)
		}
	}
	scheduler.Start()
	db.scheduler = scheduler

	log.Info().Int("sources", len(db.sources)).Msg("animedb: initialized")
	return nil
}

// Shutdown stops the refresh timers.
func (db *Database) Shutdown() error {
	if db.scheduler == nil {
		return nil
	}
	return db.scheduler.Shutdown()
}

func (db *Database) dataPath(filename string) string {
	return filepath.Join(db.cfg.DataDir, "anime-database", filename)
}

func (db *Database) alreadyLoaded(name string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.loaded[name]
}

// rebuildLocked derives and publishes a new snapshot. Callers hold db.mu.
func (db *Database) rebuildLocked() {
	db.snap.Store(buildSnapshot(&db.corpora, db.cfg.EpisodeTieBreak))
}

// CorpusStats describes one corpus's load state for diagnostics and metrics.
type CorpusStats struct {
	Name    string `json:"name"`
	Loaded  bool   `json:"loaded"`
	Entries int    `json:"entries"`
}

// Stats reports per-corpus load state and entry counts, in source order.
func (db *Database) Stats() []CorpusStats {
	db.mu.Lock()
	defer db.mu.Unlock()

	detailEntries := 0
	for _, m := range db.corpora.details {
		detailEntries += len(m)
	}
	counts := map[string]int{
		SourceNameMappings:       len(db.corpora.mappings),
		SourceNameOfflineCatalog: detailEntries,
		SourceNameKitsu:          len(db.corpora.kitsu),
		SourceNameAnitraktMovies: len(db.corpora.anitraktMovies),
		SourceNameAnitraktTV:     len(db.corpora.anitraktTV),
		SourceNameAnimeList:      len(db.corpora.animeList),
	}

	out := make([]CorpusStats, 0, len(db.sources))
	for _, src := range db.sources {
		out = append(out, CorpusStats{
			Name:    src.name,
			Loaded:  db.loaded[src.name],
			Entries: counts[src.name],
		})
	}
	return out
}

// GetEntryByID resolves a catalog identifier to its merged entry, or nil
// when no corpus knows it.
func (db *Database) GetEntryByID(source ids.Source, value string, season, episode *int) *AnimeEntry {
	snap := db.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.entryByID(source, value, season, episode)
}

// IsAnime reports whether a raw identifier parses and resolves against the
// database.
func (db *Database) IsAnime(raw string) bool {
	p, ok := ids.Parse(raw, ids.MediaTypeUnknown)
	if !ok {
		return false
	}
	return db.GetEntryByID(p.Source, p.Value, p.Season, p.Episode) != nil
}

// Resolve looks up the entry for a parsed identifier and returns it together
// with the season-enriched identifier.
func (db *Database) Resolve(p ids.ParsedID) (*AnimeEntry, ids.ParsedID) {
	entry := db.GetEntryByID(p.Source, p.Value, p.Season, p.Episode)
	return entry, EnrichParsedID(p, entry)
}
