// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/internal/metadata"
	"github.com/tributary/tributary/internal/streamexpr"
	"github.com/tributary/tributary/pkg/stringutils"
)

// unknownValue is the literal users put in attribute lists to target streams
// the parser extracted nothing for.
const unknownValue = "Unknown"

// userPrograms bundles the user's compiled expression lists. Positions are
// preserved; expressions that fail to compile leave a nil slot so the
// surviving ones keep their index.
type userPrograms struct {
	included  []*streamexpr.Program
	required  []*streamexpr.Program
	excluded  []*streamexpr.Program
	preferred []*streamexpr.Program
	ranked    []*streamexpr.Program
}

func compileUserPrograms(u *UserData) *userPrograms {
	if u == nil {
		return &userPrograms{}
	}
	rankedSrc := make([]string, len(u.RankedStreamExpressions))
	for i, r := range u.RankedStreamExpressions {
		rankedSrc[i] = r.Expression
	}
	return &userPrograms{
		included:  compilePrograms(u.IncludedStreamExpressions),
		required:  compilePrograms(u.RequiredStreamExpressions),
		excluded:  compilePrograms(u.ExcludedStreamExpressions),
		preferred: compilePrograms(u.PreferredStreamExpressions),
		ranked:    compilePrograms(rankedSrc),
	}
}

func compilePrograms(expressions []string) []*streamexpr.Program {
	if len(expressions) == 0 {
		return nil
	}
	out := make([]*streamexpr.Program, len(expressions))
	for i, src := range expressions {
		if strings.TrimSpace(src) == "" {
			continue
		}
		p, err := streamexpr.Compile(src)
		if err != nil {
			log.Warn().Err(err).Str("expression", src).Msg("streams: expression did not compile")
			continue
		}
		out[i] = p
	}
	return out
}

func hasPrograms(programs []*streamexpr.Program) bool {
	for _, p := range programs {
		if p != nil {
			return true
		}
	}
	return false
}

func matchesAny(programs []*streamexpr.Program, env streamexpr.Env) bool {
	for _, p := range programs {
		if p == nil {
			continue
		}
		ok, err := p.Match(env)
		if err != nil {
			log.Debug().Err(err).Str("expression", p.Source()).Msg("streams: filter expression evaluation failed")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// filterContext carries the request-level facts the drop rules compare
// streams against.
type filterContext struct {
	userData     *UserData
	mediaType    ids.MediaType
	isAnime      bool
	knownTitles  []string
	year         int
	yearEnd      *int
	season       *int
	episode      *int
	absolute     *int
	releaseDates *metadata.ReleaseDates
	now          time.Time
}

// applyFilters runs every drop rule over the streams. Streams selected by an
// included expression are immune to all of them.
func applyFilters(streams []*ParsedStream, fc *filterContext, programs *userPrograms, envs *envBuilder) []*ParsedStream {
	u := fc.userData
	if u == nil {
		return streams
	}

	requireGate := hasPrograms(programs.required)
	needEnv := requireGate || hasPrograms(programs.included) || hasPrograms(programs.excluded)

	kept := make([]*ParsedStream, 0, len(streams))
	for _, s := range streams {
		var env streamexpr.Env
		if needEnv {
			env = envs.envFor(s)
		}
		if !needEnv || !matchesAny(programs.included, env) {
			if needEnv && matchesAny(programs.excluded, env) {
				continue
			}
			if requireGate && !matchesAny(programs.required, env) {
				continue
			}
			if excludedByAttributes(s, u) {
				continue
			}
			if missesRequiredAttributes(s, u) {
				continue
			}
			if titleMismatch(s, fc) {
				continue
			}
			if yearMismatch(s, fc) {
				continue
			}
			if seasonEpisodeMismatch(s, fc) {
				continue
			}
			if digitalReleaseBlocked(s, fc) {
				continue
			}
		}
		kept = append(kept, s)
	}
	return kept
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// containsEncodeFold compares encodes through their alias-folded form, so
// excluding "x265" also drops releases tagged "HEVC".
func containsEncodeFold(list []string, v string) bool {
	cv := canonicalEncode(v)
	for _, item := range list {
		if canonicalEncode(item) == cv {
			return true
		}
	}
	return false
}

func anyFold(list []string, values []string) bool {
	for _, v := range values {
		if containsFold(list, v) {
			return true
		}
	}
	return false
}

func scalarOrUnknown(v string) string {
	if v == "" {
		return unknownValue
	}
	return v
}

func listOrUnknown(values []string) []string {
	if len(values) == 0 {
		return []string{unknownValue}
	}
	return values
}

func excludedByAttributes(s *ParsedStream, u *UserData) bool {
	pf := s.ParsedFile
	if pf == nil {
		pf = &ParsedFile{}
	}
	if containsFold(u.ExcludedResolutions, scalarOrUnknown(pf.Resolution)) {
		return true
	}
	if containsFold(u.ExcludedQualities, scalarOrUnknown(pf.Quality)) {
		return true
	}
	if containsEncodeFold(u.ExcludedEncodes, scalarOrUnknown(pf.Encode)) {
		return true
	}
	if anyFold(u.ExcludedVisualTags, listOrUnknown(pf.VisualTags)) {
		return true
	}
	if anyFold(u.ExcludedAudioTags, listOrUnknown(pf.AudioTags)) {
		return true
	}
	if anyFold(u.ExcludedLanguages, listOrUnknown(pf.Languages)) {
		return true
	}
	if containsFold(u.ExcludedStreamTypes, string(s.Type)) {
		return true
	}
	return false
}

func missesRequiredAttributes(s *ParsedStream, u *UserData) bool {
	pf := s.ParsedFile
	if pf == nil {
		pf = &ParsedFile{}
	}
	if len(u.RequiredResolutions) > 0 && !containsFold(u.RequiredResolutions, scalarOrUnknown(pf.Resolution)) {
		return true
	}
	if len(u.RequiredQualities) > 0 && !containsFold(u.RequiredQualities, scalarOrUnknown(pf.Quality)) {
		return true
	}
	if len(u.RequiredLanguages) > 0 && !anyFold(u.RequiredLanguages, listOrUnknown(pf.Languages)) {
		return true
	}
	return false
}

// titleMismatch drops streams whose parsed title matches none of the known
// titles. Streams the parser got no title out of pass.
func titleMismatch(s *ParsedStream, fc *filterContext) bool {
	if !fc.userData.TitleMatching.Enabled || len(fc.knownTitles) == 0 {
		return false
	}
	if s.ParsedFile == nil || s.ParsedFile.Title == "" {
		return false
	}
	streamTitle := stringutils.NormalizeForMatching(s.ParsedFile.Title)
	if streamTitle == "" {
		return false
	}

	mode := fc.userData.TitleMatching.Mode
	for _, known := range fc.knownTitles {
		knownNorm := stringutils.NormalizeForMatching(known)
		if knownNorm == "" {
			continue
		}
		switch mode {
		case "contains":
			if strings.Contains(streamTitle, knownNorm) || strings.Contains(knownNorm, streamTitle) {
				return false
			}
		case "fuzzy":
			if fuzzy.MatchNormalizedFold(knownNorm, streamTitle) || fuzzy.MatchNormalizedFold(streamTitle, knownNorm) {
				return false
			}
		default:
			if streamTitle == knownNorm {
				return false
			}
		}
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// yearMismatch drops streams whose parsed year falls outside the content's
// release window. Series are matched against their run, open-ended when
// still airing.
func yearMismatch(s *ParsedStream, fc *filterContext) bool {
	if !fc.userData.YearMatching.Enabled || fc.year == 0 {
		return false
	}
	if s.ParsedFile == nil || s.ParsedFile.Year == 0 {
		return false
	}
	tolerance := 1
	if fc.userData.YearMatching.Tolerance != nil {
		tolerance = *fc.userData.YearMatching.Tolerance
	}

	streamYear := s.ParsedFile.Year
	if fc.mediaType == ids.MediaTypeMovie {
		return absInt(streamYear-fc.year) > tolerance
	}
	if streamYear < fc.year-tolerance {
		return true
	}
	if fc.yearEnd != nil && streamYear > *fc.yearEnd+tolerance {
		return true
	}
	return false
}

// seasonEpisodeMismatch drops streams whose parsed numbering contradicts
// the request. Files carrying the computed absolute episode number pass,
// and season packs (no episode) are kept.
func seasonEpisodeMismatch(s *ParsedStream, fc *filterContext) bool {
	if !fc.userData.SeasonEpisodeMatching.Enabled {
		return false
	}
	if fc.mediaType == ids.MediaTypeMovie {
		return false
	}
	if fc.season == nil && fc.episode == nil {
		return false
	}
	pf := s.ParsedFile
	if pf == nil {
		return false
	}
	if fc.absolute != nil && pf.Episode > 0 && pf.Episode == *fc.absolute {
		return false
	}
	if fc.season != nil && pf.Season > 0 && pf.Season != *fc.season {
		return true
	}
	if fc.episode != nil && pf.Episode > 0 && pf.Episode != *fc.episode {
		return true
	}
	return false
}

// homeReleaseQualities are the qualities that cannot legitimately exist
// before a movie's home release.
var homeReleaseQualities = map[string]struct{}{
	"bluray": {},
	"web-dl": {},
	"webdl":  {},
	"web":    {},
	"webrip": {},
	"hdtv":   {},
	"dvd":    {},
	"dvdrip": {},
	"bdrip":  {},
	"brrip":  {},
	"remux":  {},
}

// digitalReleaseBlocked drops home-release-quality streams for movies whose
// digital or physical release is still ahead. Theatrical-sourced qualities
// survive.
func digitalReleaseBlocked(s *ParsedStream, fc *filterContext) bool {
	if !fc.userData.DigitalReleaseFilter.Enabled {
		return false
	}
	if fc.mediaType != ids.MediaTypeMovie || fc.releaseDates == nil {
		return false
	}
	home := earliestDate(fc.releaseDates.Digital, fc.releaseDates.Physical)
	if home == nil || !home.After(fc.now) {
		return false
	}
	if s.ParsedFile == nil {
		return false
	}
	_, blocked := homeReleaseQualities[strings.ToLower(s.ParsedFile.Quality)]
	return blocked
}

func earliestDate(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}
