// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/buildinfo"
	"github.com/tributary/tributary/pkg/httphelpers"
)

const (
	headTimeout = 15 * time.Second
	getTimeout  = 90 * time.Second

	refreshAttempts   = 3
	refreshRetryDelay = 2 * time.Second

	// DefaultRefreshInterval is how often each corpus is re-checked against
	// its remote ETag when no per-source interval is configured.
	DefaultRefreshInterval = 24 * time.Hour
)

// Corpus source names, used for per-source refresh interval configuration
// and as scheduler job tags.
const (
	SourceNameMappings       = "mappings"
	SourceNameOfflineCatalog = "offline-catalog"
	SourceNameKitsu          = "kitsu-imdb"
	SourceNameAnitraktMovies = "anitrakt-movies"
	SourceNameAnitraktTV     = "anitrakt-tv"
	SourceNameAnimeList      = "anime-list"
)

const (
	mappingsURL       = "https://raw.githubusercontent.com/Fribb/anime-lists/master/anime-list-full.json"
	offlineCatalogURL = "https://github.com/manami-project/anime-offline-database/releases/download/latest/anime-offline-database-minified.json.zst"
	kitsuMapURL       = "https://raw.githubusercontent.com/TheBeastLT/stremio-kitsu-anime/master/static/data/imdb_mapping.json"
	anitraktMoviesURL = "https://raw.githubusercontent.com/rensetsu/db.trakt.extended-anitrakt/main/db/movies_ex.json"
	anitraktTVURL     = "https://raw.githubusercontent.com/rensetsu/db.trakt.extended-anitrakt/main/db/tv_ex.json"
	animeListURL      = "https://raw.githubusercontent.com/Anime-Lists/anime-lists/master/anime-list-master.xml"
)

// source describes one corpus: where it lives remotely, the file it persists
// to under the data directory, its refresh cadence and how a payload is
// parsed into the corpora.
type source struct {
	name     string
	url      string
	filename string
	interval time.Duration
	parse    func(c *corpora, r io.Reader) error
}

// buildSources assembles the corpus table for a configuration. Detail level
// none disables the database: no corpus is downloaded or refreshed at all.
func buildSources(cfg Config) []*source {
	level := ParseDetailLevel(string(cfg.DetailLevel))
	if level == DetailNone {
		return nil
	}

	sources := []*source{
		{
			name:     SourceNameMappings,
			url:      mappingsURL,
			filename: "anime-list-full.json",
			parse: func(c *corpora, r io.Reader) error {
				mappings, err := loadMappings(r)
				if err != nil {
					return err
				}
				c.mappings = mappings
				return nil
			},
		},
		{
			name:     SourceNameKitsu,
			url:      kitsuMapURL,
			filename: "imdb_mapping.json",
			parse: func(c *corpora, r io.Reader) error {
				kitsu, err := loadKitsuMap(r)
				if err != nil {
					return err
				}
				c.kitsu = kitsu
				return nil
			},
		},
		{
			name:     SourceNameAnitraktMovies,
			url:      anitraktMoviesURL,
			filename: "anitrakt_movies.json",
			parse: func(c *corpora, r io.Reader) error {
				entries, err := loadAnitrakt(r)
				if err != nil {
					return err
				}
				c.anitraktMovies = entries
				return nil
			},
		},
		{
			name:     SourceNameAnitraktTV,
			url:      anitraktTVURL,
			filename: "anitrakt_tv.json",
			parse: func(c *corpora, r io.Reader) error {
				entries, err := loadAnitrakt(r)
				if err != nil {
					return err
				}
				c.anitraktTV = entries
				return nil
			},
		},
		{
			name:     SourceNameAnimeList,
			url:      animeListURL,
			filename: "anime-list-master.xml",
			parse: func(c *corpora, r io.Reader) error {
				entries, err := loadAnimeList(r, level)
				if err != nil {
					return err
				}
				c.animeList = entries
				return nil
			},
		},
	}

	sources = append(sources, &source{
		name:     SourceNameOfflineCatalog,
		url:      offlineCatalogURL,
		filename: "anime-offline-database.json",
		parse: func(c *corpora, r io.Reader) error {
			details, err := loadDetails(r, level)
			if err != nil {
				return err
			}
			c.details = details
			return nil
		},
	})

	for _, src := range sources {
		src.interval = cfg.RefreshInterval
		if src.interval <= 0 {
			src.interval = DefaultRefreshInterval
		}
		if override, ok := cfg.RefreshIntervals[src.name]; ok && override > 0 {
			src.interval = override
		}
	}
	return sources
}

// refreshSource runs one refresh cycle for a corpus with bounded retries.
func (db *Database) refreshSource(ctx context.Context, src *source) error {
	err := retry.Do(
		func() error { return db.refreshOnce(ctx, src) },
		retry.Attempts(refreshAttempts),
		retry.Delay(refreshRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			log.Debug().Err(err).Str("source", src.name).Uint("attempt", attempt+1).
				Msg("animedb: retrying corpus refresh")
		}),
	)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", src.name, err)
	}
	return nil
}

// refreshOnce performs a single refresh pass: ETag check, conditional
// download, then parse and index swap. A pass that served from the local
// file and failed to parse drops the file and tag so the retry refetches.
func (db *Database) refreshOnce(ctx context.Context, src *source) error {
	dataPath := db.dataPath(src.filename)
	tagPath := dataPath + ".etag"

	storedTag := readTag(tagPath)
	remoteTag, headErr := db.remoteTag(ctx, src.url)
	if headErr != nil {
		log.Debug().Err(headErr).Str("source", src.name).
			Msg("animedb: etag check failed, falling back to download")
	}

	unchanged := headErr == nil && remoteTag != "" && storedTag != "" &&
		remoteTag == storedTag && fileExists(dataPath)

	fresh := false
	if !unchanged {
		tag, err := db.download(ctx, src, dataPath)
		if err != nil {
			return err
		}
		if tag == "" {
			tag = remoteTag
		}
		if err := os.WriteFile(tagPath, []byte(tag), 0o644); err != nil {
			log.Warn().Err(err).Str("source", src.name).Msg("animedb: failed to persist etag")
		}
		fresh = true
	} else if db.alreadyLoaded(src.name) {
		log.Debug().Str("source", src.name).Msg("animedb: corpus unchanged")
		return nil
	}

	if err := db.loadFromDisk(src, dataPath); err != nil {
		if !fresh {
			os.Remove(dataPath)
			os.Remove(tagPath)
		}
		return err
	}

	log.Info().Str("source", src.name).Bool("downloaded", fresh).
		Msg("animedb: corpus refreshed")
	return nil
}

// remoteTag fetches the current ETag via a HEAD request.
func (db *Database) remoteTag(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", url, err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := db.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", url, err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("head %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Header.Get("ETag"), nil
}

// download streams the corpus to a temp file next to its final path and
// renames it into place, decompressing zstd payloads transparently. It
// returns the ETag reported by the GET response.
func (db *Database) download(ctx context.Context, src *source, dataPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, getTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.url, nil)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", src.url, err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := db.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", src.url, err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %s: unexpected status %d", src.url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(src.url, ".zst") {
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("zstd reader for %s: %w", src.name, err)
		}
		defer dec.Close()
		body = dec
	}

	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), filepath.Base(dataPath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return "", fmt.Errorf("download %s: %w", src.name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return "", fmt.Errorf("move %s into place: %w", src.name, err)
	}
	return resp.Header.Get("ETag"), nil
}

// loadFromDisk parses a corpus file into the corpora and rebuilds the
// published snapshot.
func (db *Database) loadFromDisk(src *source, dataPath string) error {
	f, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", src.name, err)
	}
	defer f.Close()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := src.parse(&db.corpora, f); err != nil {
		return err
	}
	db.loaded[src.name] = true
	db.rebuildLocked()
	return nil
}

func readTag(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
