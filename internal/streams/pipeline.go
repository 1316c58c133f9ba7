// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/ids"
)

// Fetcher produces the raw candidate streams for a request, typically by
// fanning out to the configured upstream addons.
type Fetcher interface {
	Fetch(ctx context.Context, mediaType ids.MediaType, id string, userData *UserData) ([]*ParsedStream, error)
}

// StageObserver receives per-stage timings and stream counts. A nil
// observer is valid and observes nothing.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, in, out int)
}

// Result is the pipeline's answer for one request. Message is set when
// there is nothing playable to show.
type Result struct {
	Streams []*ParsedStream `json:"streams"`
	Message string          `json:"message,omitempty"`
}

// Pipeline runs the full per-request flow: resolve the id, start the
// background fetches, collect streams, annotate, filter, sort and
// deduplicate.
type Pipeline struct {
	fetcher  Fetcher
	cfg      ContextConfig
	observer StageObserver
}

// NewPipeline wires a pipeline. fetcher is required; observer may be nil.
func NewPipeline(fetcher Fetcher, cfg ContextConfig, observer StageObserver) *Pipeline {
	return &Pipeline{fetcher: fetcher, cfg: cfg, observer: observer}
}

func (p *Pipeline) observe(stage string, started time.Time, in, out int) {
	if p.observer != nil {
		p.observer.ObserveStage(stage, time.Since(started), in, out)
	}
}

// Process handles one stream request end to end. Fetch failures degrade to
// an explanatory Result rather than an error; only a dead context aborts.
func (p *Pipeline) Process(ctx context.Context, mediaType ids.MediaType, id string, userData *UserData) (*Result, error) {
	rc := NewContext(mediaType, id, userData, p.cfg)
	rc.StartAllFetches(ctx)

	fetchStart := time.Now()
	fetched, err := p.fetcher.Fetch(ctx, mediaType, id, userData)
	p.observe("fetch", fetchStart, 0, len(fetched))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("id", id).Msg("streams: fetch failed")
		return &Result{Message: fmt.Sprintf("Failed to fetch streams: %v", err)}, nil
	}
	if len(fetched) == 0 {
		return &Result{Message: "No streams found."}, nil
	}

	// Error and statistic entries ride along untouched and reattach at
	// the end, after the playable streams.
	playable := make([]*ParsedStream, 0, len(fetched))
	var untouched []*ParsedStream
	for _, s := range fetched {
		if s.passesUntouched() {
			untouched = append(untouched, s)
			continue
		}
		playable = append(playable, s)
	}

	seadexStart := time.Now()
	tagSeaDex(playable, rc.SeaDexListing(ctx))
	p.observe("seadex", seadexStart, len(playable), len(playable))

	programs := compileUserPrograms(userData)
	envs := newEnvBuilder(ctx, rc)

	filterStart := time.Now()
	fc := p.filterContext(ctx, rc, userData)
	filtered := applyFilters(playable, fc, programs, envs)
	p.observe("filter", filterStart, len(playable), len(filtered))

	precomputeStart := time.Now()
	tagKeywords(filtered, compilePreferredKeywords(userDataKeywords(userData)))
	tagPreferredRegexes(filtered, compilePreferredRegexes(userDataRegexes(userData), userData != nil && userData.AllowRegex))
	tagPreferredExpressions(filtered, programs.preferred, envs)
	if userData != nil {
		scoreRankedExpressions(filtered, userData.RankedStreamExpressions, programs.ranked, envs)
	}
	p.observe("precompute", precomputeStart, len(filtered), len(filtered))

	sortStart := time.Now()
	sortStreams(filtered, userData)
	p.observe("sort", sortStart, len(filtered), len(filtered))

	dedupStart := time.Now()
	preDedup := len(filtered)
	if userData != nil {
		filtered = deduplicateStreams(filtered, userData.Deduplicator)
	}
	p.observe("deduplicate", dedupStart, preDedup, len(filtered))

	result := &Result{Streams: append(filtered, untouched...)}
	if len(filtered) == 0 {
		result.Message = "No streams matched your filters."
	}
	return result, nil
}

// filterContext resolves the request facts the drop rules need, awaiting
// only the fetches that were started.
func (p *Pipeline) filterContext(ctx context.Context, rc *Context, userData *UserData) *filterContext {
	fc := &filterContext{
		userData:  userData,
		mediaType: rc.mediaType,
		isAnime:   rc.isAnime,
		season:    rc.Season(),
		episode:   rc.Episode(),
		now:       rc.cfg.Clock(),
	}
	if userData == nil {
		return fc
	}

	needsTitles := userData.TitleMatching.Enabled
	needsYears := userData.YearMatching.Enabled
	needsEpisodes := userData.SeasonEpisodeMatching.Enabled
	if needsTitles || needsYears || needsEpisodes {
		if meta, ok := rc.metadata.waitIfStarted(ctx); ok && meta != nil {
			fc.year = meta.Year
			fc.yearEnd = meta.YearEnd
			fc.absolute = rc.AbsoluteEpisode(meta)
		}
		fc.knownTitles = rc.KnownTitles(ctx)
	}
	if userData.DigitalReleaseFilter.Enabled && rc.mediaType == ids.MediaTypeMovie {
		if dates, ok := rc.releaseDates.waitIfStarted(ctx); ok {
			fc.releaseDates = dates
		}
	}
	return fc
}

func userDataKeywords(u *UserData) []string {
	if u == nil {
		return nil
	}
	return u.PreferredKeywords
}

func userDataRegexes(u *UserData) []RegexPattern {
	if u == nil {
		return nil
	}
	return u.PreferredRegexPatterns
}
