// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/seadex"
	"github.com/tributary/tributary/internal/streamexpr"
)

// tagSeaDex marks streams found in the curated listing. Matching runs on
// info-hashes first; release groups are consulted only when not a single
// stream matched by hash, so a hash hit always outranks the fuzzier group
// signal.
func tagSeaDex(streams []*ParsedStream, listing *seadex.Listing) {
	if listing.Empty() {
		return
	}

	hashMatched := false
	for _, s := range streams {
		hash := s.InfoHash()
		if hash == "" || !listing.AllHashes.Has(hash) {
			continue
		}
		s.SeaDex = &SeaDexTag{
			IsBest:   listing.BestHashes.Has(hash),
			IsSeadex: true,
		}
		hashMatched = true
	}
	if hashMatched {
		return
	}

	for _, s := range streams {
		group := s.ReleaseGroup()
		if group == "" {
			continue
		}
		inAll := listing.AllGroups.Has(group)
		inBest := listing.BestGroups.Has(group)
		if !inAll && !inBest {
			continue
		}
		s.SeaDex = &SeaDexTag{
			IsBest:   inBest,
			IsSeadex: inAll,
		}
	}
}

// matchFields are the textual stream attributes keyword and regex matching
// runs over.
func matchFields(s *ParsedStream) []string {
	fields := []string{s.Filename, s.FolderName, s.Indexer}
	if s.ParsedFile != nil {
		fields = append(fields, s.ParsedFile.ReleaseGroup)
	}
	return fields
}

// compilePreferredKeywords folds the keyword list into one case-insensitive
// alternation. Empty lists return nil.
func compilePreferredKeywords(keywords []string) *regexp.Regexp {
	var quoted []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	if len(quoted) == 0 {
		return nil
	}
	re, err := regexp.Compile(`(?i)(` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		log.Warn().Err(err).Msg("streams: preferred keywords did not compile")
		return nil
	}
	return re
}

// tagKeywords sets KeywordMatched on every stream one of the preferred
// keywords appears in.
func tagKeywords(streams []*ParsedStream, re *regexp.Regexp) {
	if re == nil {
		return
	}
	for _, s := range streams {
		for _, field := range matchFields(s) {
			if field != "" && re.MatchString(field) {
				s.KeywordMatched = true
				break
			}
		}
	}
}

// userRegex is one compiled preferred pattern. Negated patterns claim the
// streams they do NOT match.
type userRegex struct {
	name    string
	source  string
	index   int
	re      *regexp.Regexp
	negated bool
}

// parseUserPattern understands the /pattern/flags form with flags drawn
// from i, m, s and n (negate). Anything else is taken as a plain pattern.
func parseUserPattern(raw string) (pattern string, inline string, negated bool) {
	if len(raw) > 2 && raw[0] == '/' {
		if end := strings.LastIndexByte(raw, '/'); end > 0 {
			flags := raw[end+1:]
			valid := true
			for _, f := range flags {
				switch f {
				case 'i', 'm', 's':
					inline += string(f)
				case 'n':
					negated = true
				default:
					valid = false
				}
				if !valid {
					break
				}
			}
			if valid {
				return raw[1:end], inline, negated
			}
		}
	}
	return raw, "", false
}

// compilePreferredRegexes compiles the user's pattern list. When regex use
// is not allowed for this user the whole list is dropped. Individual
// patterns that fail to compile are skipped with a warning.
func compilePreferredRegexes(patterns []RegexPattern, allowRegex bool) []userRegex {
	if len(patterns) == 0 {
		return nil
	}
	if !allowRegex {
		log.Debug().Int("patterns", len(patterns)).Msg("streams: regex patterns skipped, not allowed for user")
		return nil
	}

	out := make([]userRegex, 0, len(patterns))
	for i, p := range patterns {
		raw := strings.TrimSpace(p.Pattern)
		if raw == "" {
			continue
		}
		pattern, inline, negated := parseUserPattern(raw)
		if inline != "" {
			pattern = fmt.Sprintf("(?%s)%s", inline, pattern)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", raw).Msg("streams: preferred regex did not compile")
			continue
		}
		out = append(out, userRegex{
			name:    p.Name,
			source:  raw,
			index:   i,
			re:      re,
			negated: negated,
		})
	}
	return out
}

// tagPreferredRegexes annotates each stream with the first pattern that
// claims it. Pattern order is the user's list order, so lower indexes win.
func tagPreferredRegexes(streams []*ParsedStream, regexes []userRegex) {
	if len(regexes) == 0 {
		return
	}
	for _, s := range streams {
		fields := matchFields(s)
		for _, r := range regexes {
			matched := false
			for _, field := range fields {
				if field != "" && r.re.MatchString(field) {
					matched = true
					break
				}
			}
			if r.negated {
				matched = !matched
			}
			if matched {
				s.RegexMatched = &RegexMatch{Name: r.name, Pattern: r.source, Index: r.index}
				break
			}
		}
	}
}

// tagPreferredExpressions annotates each stream with the index of the first
// expression that selects it. A stream claimed by an earlier expression is
// invisible to later ones.
func tagPreferredExpressions(streams []*ParsedStream, programs []*streamexpr.Program, envs *envBuilder) {
	for i, program := range programs {
		if program == nil {
			continue
		}
		for _, s := range streams {
			if s.StreamExpressionMatched != nil {
				continue
			}
			ok, err := program.Match(envs.envFor(s))
			if err != nil {
				log.Debug().Err(err).Str("expression", program.Source()).Msg("streams: preferred expression evaluation failed")
				continue
			}
			if ok {
				idx := i
				s.StreamExpressionMatched = &idx
			}
		}
	}
}

// scoreRankedExpressions sums, per stream, the scores of every ranked
// expression that selects it. Streams no expression selects keep a nil
// score, which sorts apart from an earned 0.
func scoreRankedExpressions(streams []*ParsedStream, ranked []RankedExpression, programs []*streamexpr.Program, envs *envBuilder) {
	for i, program := range programs {
		if program == nil {
			continue
		}
		for _, s := range streams {
			ok, err := program.Match(envs.envFor(s))
			if err != nil {
				log.Debug().Err(err).Str("expression", program.Source()).Msg("streams: ranked expression evaluation failed")
				continue
			}
			if !ok {
				continue
			}
			if s.StreamExpressionScore == nil {
				score := 0.0
				s.StreamExpressionScore = &score
			}
			*s.StreamExpressionScore += ranked[i].Score
		}
	}
}
