// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/animedb"
	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/internal/metadata"
	"github.com/tributary/tributary/internal/seadex"
	"github.com/tributary/tributary/pkg/stringutils"
)

// MetadataProvider is the metadata surface the context consumes.
// *metadata.Client satisfies it.
type MetadataProvider interface {
	Configured() bool
	Lookup(ctx context.Context, src ids.Source, value string, mediaType ids.MediaType) (*metadata.Metadata, error)
	MovieReleaseDates(ctx context.Context, tmdbID int) (*metadata.ReleaseDates, error)
	EpisodeAirDate(ctx context.Context, tmdbID, season, episode int) (*time.Time, error)
}

// SeaDexProvider fetches curated release listings. *seadex.Client satisfies
// it.
type SeaDexProvider interface {
	Lookup(ctx context.Context, anilistID int) (*seadex.Listing, error)
}

// AnimeResolver resolves a parsed identifier against the anime identity
// database. *animedb.Database satisfies it.
type AnimeResolver interface {
	Resolve(p ids.ParsedID) (*animedb.AnimeEntry, ids.ParsedID)
}

// ContextConfig wires the collaborators a request context may call out to.
// Every field is optional; missing ones leave their slots empty.
type ContextConfig struct {
	Metadata MetadataProvider
	SeaDex   SeaDexProvider
	AnimeDB  AnimeResolver

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// slot is a one-shot memoized fetch: started at most once, value written
// before done closes, observed by any number of readers.
type slot[T any] struct {
	once    sync.Once
	started atomic.Bool
	done    chan struct{}
	val     T
}

func (s *slot[T]) start(fn func() T) {
	s.once.Do(func() {
		s.started.Store(true)
		go func() {
			defer close(s.done)
			s.val = fn()
		}()
	})
}

func (s *slot[T]) wait(ctx context.Context) T {
	select {
	case <-s.done:
		return s.val
	case <-ctx.Done():
		var zero T
		return zero
	}
}

// waitIfStarted observes the slot without triggering a fetch.
func (s *slot[T]) waitIfStarted(ctx context.Context) (T, bool) {
	if !s.started.Load() {
		var zero T
		return zero, false
	}
	return s.wait(ctx), true
}

// Context is the single-request collaborator of the pipeline. Construction
// is synchronous: it parses the identifier and resolves it against the anime
// database. The remote fetches are explicit at-most-once slots.
type Context struct {
	mediaType ids.MediaType
	rawID     string
	parsed    ids.ParsedID
	userData  *UserData

	isAnime bool
	entry   *animedb.AnimeEntry

	cfg ContextConfig

	metadata     slot[*metadata.Metadata]
	releaseDates slot[*metadata.ReleaseDates]
	airDate      slot[*time.Time]
	seadexInfo   slot[*seadex.Listing]
}

// NewContext builds the request context for one (type, id, userData) triple.
func NewContext(mediaType ids.MediaType, rawID string, userData *UserData, cfg ContextConfig) *Context {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	c := &Context{
		mediaType: mediaType,
		rawID:     rawID,
		userData:  userData,
		cfg:       cfg,
	}
	c.metadata.done = make(chan struct{})
	c.releaseDates.done = make(chan struct{})
	c.airDate.done = make(chan struct{})
	c.seadexInfo.done = make(chan struct{})

	parsed, ok := ids.Parse(rawID, mediaType)
	if !ok {
		log.Debug().Str("id", rawID).Msg("streams: unrecognized identifier")
		return c
	}
	c.parsed = parsed

	if cfg.AnimeDB != nil {
		entry, enriched := cfg.AnimeDB.Resolve(parsed)
		if entry != nil {
			c.isAnime = true
			c.entry = entry
			c.parsed = enriched
		}
	}
	return c
}

// IsAnime reports whether the requested id resolved to an anime entry.
func (c *Context) IsAnime() bool { return c.isAnime }

// Entry returns the resolved anime entry, or nil.
func (c *Context) Entry() *animedb.AnimeEntry { return c.entry }

// ParsedID returns the parsed, possibly anime-enriched identifier.
func (c *Context) ParsedID() ids.ParsedID { return c.parsed }

// Season returns the requested season, or nil.
func (c *Context) Season() *int { return c.parsed.Season }

// Episode returns the requested episode, or nil.
func (c *Context) Episode() *int { return c.parsed.Episode }

// QueryType is the request type, prefixed with "anime." for anime content.
func (c *Context) QueryType() string {
	if c.isAnime {
		return "anime." + string(c.mediaType)
	}
	return string(c.mediaType)
}

// StartMetadataFetch begins the metadata lookup once. Requests whose id has
// no route to the metadata service complete the slot empty immediately.
func (c *Context) StartMetadataFetch(ctx context.Context) {
	c.metadata.start(func() *metadata.Metadata {
		if c.cfg.Metadata == nil || !c.cfg.Metadata.Configured() {
			return nil
		}
		src, value, ok := c.metadataKey()
		if !ok {
			return nil
		}
		meta, err := c.cfg.Metadata.Lookup(ctx, src, value, c.mediaType)
		if err != nil {
			log.Warn().Err(err).Str("id", c.rawID).Msg("streams: metadata fetch failed")
			return nil
		}
		return meta
	})
}

// metadataKey picks the identifier to query the metadata service with:
// the request's own id when its catalog is supported, else a cross-id from
// the anime entry.
func (c *Context) metadataKey() (ids.Source, string, bool) {
	switch c.parsed.Source {
	case ids.SourceIMDB, ids.SourceTMDB, ids.SourceTVDB:
		if c.parsed.Value != "" {
			return c.parsed.Source, c.parsed.Value, true
		}
	}
	if c.entry != nil {
		if c.entry.IMDBID != "" {
			return ids.SourceIMDB, c.entry.IMDBID, true
		}
		if !c.entry.TMDBID.Empty() {
			return ids.SourceTMDB, c.entry.TMDBID.String(), true
		}
		if !c.entry.TVDBID.Empty() {
			return ids.SourceTVDB, c.entry.TVDBID.String(), true
		}
	}
	return "", "", false
}

// StartReleaseDatesFetch begins the movie release-date lookup once. It
// awaits the metadata slot for the TMDB id.
func (c *Context) StartReleaseDatesFetch(ctx context.Context) {
	c.releaseDates.start(func() *metadata.ReleaseDates {
		if c.cfg.Metadata == nil || !c.cfg.Metadata.Configured() || c.mediaType != ids.MediaTypeMovie {
			return nil
		}
		meta := c.Metadata(ctx)
		if meta == nil || meta.TMDBID == 0 {
			return nil
		}
		dates, err := c.cfg.Metadata.MovieReleaseDates(ctx, meta.TMDBID)
		if err != nil {
			log.Warn().Err(err).Str("id", c.rawID).Msg("streams: release dates fetch failed")
			return nil
		}
		return dates
	})
}

// StartEpisodeAirDateFetch begins the episode air-date lookup once. It needs
// a series request with season and episode, and awaits the metadata slot for
// the TMDB id.
func (c *Context) StartEpisodeAirDateFetch(ctx context.Context) {
	c.airDate.start(func() *time.Time {
		if c.cfg.Metadata == nil || !c.cfg.Metadata.Configured() || c.mediaType == ids.MediaTypeMovie {
			return nil
		}
		if c.parsed.Season == nil || c.parsed.Episode == nil {
			return nil
		}
		meta := c.Metadata(ctx)
		if meta == nil || meta.TMDBID == 0 {
			return nil
		}
		when, err := c.cfg.Metadata.EpisodeAirDate(ctx, meta.TMDBID, *c.parsed.Season, *c.parsed.Episode)
		if err != nil {
			log.Warn().Err(err).Str("id", c.rawID).Msg("streams: air date fetch failed")
			return nil
		}
		return when
	})
}

// StartSeaDexFetch begins the curated-release lookup once. It requires an
// anime request with a resolved AniList id and the user not having disabled
// it.
func (c *Context) StartSeaDexFetch(ctx context.Context) {
	c.seadexInfo.start(func() *seadex.Listing {
		if c.cfg.SeaDex == nil || !c.isAnime || !c.userData.SeadexEnabled() {
			return nil
		}
		if c.entry == nil {
			return nil
		}
		anilistID, ok := c.entry.AniListID.Int()
		if !ok || anilistID <= 0 {
			return nil
		}
		listing, err := c.cfg.SeaDex.Lookup(ctx, anilistID)
		if err != nil {
			log.Warn().Err(err).Str("id", c.rawID).Msg("streams: seadex fetch failed")
			return nil
		}
		return listing
	})
}

// StartAllFetches kicks every fetch the request can use, gated by need so
// requests without matching filters or expressions stay cheap.
func (c *Context) StartAllFetches(ctx context.Context) {
	if c.needsMetadata() {
		c.StartMetadataFetch(ctx)
	}
	if c.mediaType == ids.MediaTypeMovie && c.needsReleaseDates() {
		c.StartReleaseDatesFetch(ctx)
	}
	if c.mediaType != ids.MediaTypeMovie && c.userData.hasExpressions() {
		c.StartEpisodeAirDateFetch(ctx)
	}
	c.StartSeaDexFetch(ctx)
}

func (c *Context) needsMetadata() bool {
	u := c.userData
	if u == nil {
		return false
	}
	return u.TitleMatching.Enabled ||
		u.YearMatching.Enabled ||
		u.SeasonEpisodeMatching.Enabled ||
		u.DigitalReleaseFilter.Enabled ||
		u.hasExpressions()
}

func (c *Context) needsReleaseDates() bool {
	u := c.userData
	if u == nil {
		return false
	}
	return u.DigitalReleaseFilter.Enabled || u.hasExpressions()
}

// Metadata awaits the metadata slot, starting it if needed.
func (c *Context) Metadata(ctx context.Context) *metadata.Metadata {
	c.StartMetadataFetch(ctx)
	return c.metadata.wait(ctx)
}

// ReleaseDates awaits the release-dates slot, starting it if needed.
func (c *Context) ReleaseDates(ctx context.Context) *metadata.ReleaseDates {
	c.StartReleaseDatesFetch(ctx)
	return c.releaseDates.wait(ctx)
}

// EpisodeAirDate awaits the air-date slot, starting it if needed.
func (c *Context) EpisodeAirDate(ctx context.Context) *time.Time {
	c.StartEpisodeAirDateFetch(ctx)
	return c.airDate.wait(ctx)
}

// SeaDexListing awaits the curated-release slot, starting it if needed.
func (c *Context) SeaDexListing(ctx context.Context) *seadex.Listing {
	c.StartSeaDexFetch(ctx)
	return c.seadexInfo.wait(ctx)
}

// KnownTitles returns every title the content is known under: metadata
// titles first, then the anime entry's title and synonyms, deduplicated
// case-insensitively.
func (c *Context) KnownTitles(ctx context.Context) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(t string) {
		if t == "" {
			return
		}
		key := stringutils.NormalizeForMatching(t)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}

	if meta, ok := c.metadata.waitIfStarted(ctx); ok && meta != nil {
		add(meta.Title)
		for _, t := range meta.Titles {
			add(t)
		}
	}
	if c.entry != nil {
		add(c.entry.Title)
		if c.entry.IMDB != nil {
			add(c.entry.IMDB.Title)
		}
		if c.entry.Trakt != nil {
			add(c.entry.Trakt.Title)
		}
		for _, t := range c.entry.Synonyms {
			add(t)
		}
	}
	return out
}

// AbsoluteEpisode computes the across-season episode number for anime
// series: episodes of all preceding regular seasons plus the requested
// episode, shifted past the entry's non-IMDb episode slots.
func (c *Context) AbsoluteEpisode(meta *metadata.Metadata) *int {
	if !c.isAnime || meta == nil || len(meta.Seasons) == 0 {
		return nil
	}
	if c.parsed.Season == nil || c.parsed.Episode == nil || *c.parsed.Season < 1 {
		return nil
	}

	season, episode := *c.parsed.Season, *c.parsed.Episode
	sum := 0
	for _, s := range meta.Seasons {
		if s.Number > 0 && s.Number < season {
			sum += s.EpisodeCount
		}
	}

	abs := sum + episode
	if c.entry != nil && c.entry.IMDB != nil && len(c.entry.IMDB.NonImdbEpisodes) > 0 {
		shifts := append([]int(nil), c.entry.IMDB.NonImdbEpisodes...)
		sort.Ints(shifts)
		for _, v := range shifts {
			if v < abs {
				abs++
			}
		}
	}
	return &abs
}

// ExpressionFields projects the request-level expression view. Only slots
// already started are awaited; the rest stay absent.
func (c *Context) ExpressionFields(ctx context.Context) map[string]any {
	fields := map[string]any{
		"type":      string(c.mediaType),
		"id":        c.rawID,
		"isAnime":   c.isAnime,
		"queryType": c.QueryType(),
	}
	if c.parsed.Season != nil {
		fields["season"] = *c.parsed.Season
	}
	if c.parsed.Episode != nil {
		fields["episode"] = *c.parsed.Episode
	}

	meta, metaKnown := c.metadata.waitIfStarted(ctx)
	if metaKnown && meta != nil {
		fields["title"] = meta.Title
		if meta.Year > 0 {
			fields["year"] = meta.Year
		}
		if meta.YearEnd != nil {
			fields["yearEnd"] = *meta.YearEnd
		}
		if len(meta.Genres) > 0 {
			fields["genres"] = meta.Genres
		}
		if meta.Runtime > 0 {
			fields["runtime"] = meta.Runtime
		}
		if meta.OriginalLanguage != "" {
			fields["originalLanguage"] = metadata.LanguageName(meta.OriginalLanguage)
		}
		if abs := c.AbsoluteEpisode(meta); abs != nil {
			fields["absoluteEpisode"] = *abs
		}
	}
	if _, set := fields["title"]; !set && c.entry != nil && c.entry.Title != "" {
		fields["title"] = c.entry.Title
	}
	if titles := c.KnownTitles(ctx); len(titles) > 0 {
		fields["titles"] = titles
	}

	if days := c.daysSinceRelease(ctx); days != nil {
		fields["daysSinceRelease"] = *days
	}

	if c.entry != nil {
		if v, ok := c.entry.AniListID.Int(); ok {
			fields["anilistId"] = v
		}
		if v, ok := c.entry.MALID.Int(); ok {
			fields["malId"] = v
		}
	}

	listing, seadexKnown := c.seadexInfo.waitIfStarted(ctx)
	fields["hasSeaDex"] = seadexKnown && !listing.Empty()

	return fields
}

// daysSinceRelease is the whole-day age of the content: the episode air
// date for series, else the movie's first known release date.
func (c *Context) daysSinceRelease(ctx context.Context) *int {
	var when *time.Time
	if c.mediaType == ids.MediaTypeMovie {
		if dates, ok := c.releaseDates.waitIfStarted(ctx); ok && dates != nil {
			when = firstDate(dates.Theatrical, dates.Digital, dates.Physical)
		}
	} else if aired, ok := c.airDate.waitIfStarted(ctx); ok {
		when = aired
	}
	if when == nil {
		return nil
	}
	days := int(c.cfg.Clock().Sub(*when).Hours() / 24)
	return &days
}

func firstDate(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}
