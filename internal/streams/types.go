// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package streams implements the per-request stream pipeline: fetch results
// from addons, annotate them against curated release data, then filter, sort
// and deduplicate them according to the requesting user's configuration.
package streams

import "strings"

// StreamType classifies how a stream is acquired or what it represents.
type StreamType string

const (
	StreamTypeDebrid    StreamType = "debrid"
	StreamTypeP2P       StreamType = "p2p"
	StreamTypeUsenet    StreamType = "usenet"
	StreamTypeHTTP      StreamType = "http"
	StreamTypeLive      StreamType = "live"
	StreamTypeYouTube   StreamType = "youtube"
	StreamTypeExternal  StreamType = "external"
	StreamTypeError     StreamType = "error"
	StreamTypeStatistic StreamType = "statistic"
)

// ParsedFile carries the release attributes parsed out of a stream's file or
// folder name.
type ParsedFile struct {
	Title         string   `json:"title,omitempty"`
	Year          int      `json:"year,omitempty"`
	Season        int      `json:"season,omitempty"`
	Episode       int      `json:"episode,omitempty"`
	Resolution    string   `json:"resolution,omitempty"`
	Quality       string   `json:"quality,omitempty"`
	Encode        string   `json:"encode,omitempty"`
	VisualTags    []string `json:"visualTags,omitempty"`
	AudioTags     []string `json:"audioTags,omitempty"`
	AudioChannels []string `json:"audioChannels,omitempty"`
	Languages     []string `json:"languages,omitempty"`
	ReleaseGroup  string   `json:"releaseGroup,omitempty"`
}

// Torrent holds the torrent-side attributes of a stream.
type Torrent struct {
	InfoHash string `json:"infoHash,omitempty"`
	Seeders  *int   `json:"seeders,omitempty"`
}

// StreamService identifies the debrid or usenet service a stream goes
// through. Cached reports whether the service already holds the content.
type StreamService struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName,omitempty"`
	Cached    bool   `json:"cached"`
}

// SeaDexTag marks a stream found in the curated release database.
type SeaDexTag struct {
	IsBest   bool `json:"isBest"`
	IsSeadex bool `json:"isSeadex"`
}

// RegexMatch records which preferred regex pattern claimed a stream.
type RegexMatch struct {
	Name    string `json:"name,omitempty"`
	Pattern string `json:"pattern"`
	Index   int    `json:"index"`
}

// ParsedStream is one playable result flowing through the pipeline. The
// annotation fields at the bottom are written by the precompute stages and
// live only for the request.
type ParsedStream struct {
	ID         string         `json:"id"`
	Addon      string         `json:"addon,omitempty"`
	Filename   string         `json:"filename,omitempty"`
	FolderName string         `json:"folderName,omitempty"`
	Indexer    string         `json:"indexer,omitempty"`
	ParsedFile *ParsedFile    `json:"parsedFile,omitempty"`
	Torrent    *Torrent       `json:"torrent,omitempty"`
	Size       int64          `json:"size,omitempty"`
	FolderSize int64          `json:"folderSize,omitempty"`
	Age        int            `json:"age,omitempty"`
	Type       StreamType     `json:"type"`
	Service    *StreamService `json:"service,omitempty"`
	Library    bool           `json:"library,omitempty"`
	Proxied    bool           `json:"proxied,omitempty"`
	Private    bool           `json:"private,omitempty"`
	Message    string         `json:"message,omitempty"`
	URL        string         `json:"url,omitempty"`

	SeaDex                  *SeaDexTag  `json:"seadex,omitempty"`
	RegexMatched            *RegexMatch `json:"regexMatched,omitempty"`
	KeywordMatched          bool        `json:"keywordMatched,omitempty"`
	StreamExpressionMatched *int        `json:"streamExpressionMatched,omitempty"`
	StreamExpressionScore   *float64    `json:"streamExpressionScore,omitempty"`
}

// Cached reports whether the stream is a service hit.
func (s *ParsedStream) Cached() bool {
	return s.Service != nil && s.Service.Cached
}

// Uncached reports whether the stream goes through a service that does not
// hold the content yet.
func (s *ParsedStream) Uncached() bool {
	return s.Service != nil && !s.Service.Cached
}

// InfoHash returns the stream's torrent info-hash in lowercase, or "".
func (s *ParsedStream) InfoHash() string {
	if s.Torrent == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s.Torrent.InfoHash))
}

// ReleaseGroup returns the parsed release group in lowercase, or "".
func (s *ParsedStream) ReleaseGroup() string {
	if s.ParsedFile == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s.ParsedFile.ReleaseGroup))
}

// passesUntouched reports whether the stream bypasses filtering, annotation
// and deduplication. Error and statistic entries are surfaced to the user
// as-is.
func (s *ParsedStream) passesUntouched() bool {
	return s.Type == StreamTypeError || s.Type == StreamTypeStatistic
}

// RegexPattern is one named preferred pattern. The pattern may be written
// plain or in /pattern/flags form, where the synthetic n flag negates the
// match.
type RegexPattern struct {
	Name    string `json:"name,omitempty"`
	Pattern string `json:"pattern"`
}

// RankedExpression adds score to every stream its expression selects.
type RankedExpression struct {
	Expression string  `json:"expression"`
	Score      float64 `json:"score"`
}

// SortCriterion is one sort key with its direction, "desc" by default.
type SortCriterion struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"`
}

// SortCriteria holds the ordered sort keys applied to every request.
type SortCriteria struct {
	Global []SortCriterion `json:"global,omitempty"`
}

// Deduplicator group policies.
const (
	DedupSingleResult = "single_result"
	DedupPerService   = "per_service"
	DedupDisabled     = "disabled"
)

// Deduplicator multi-group behaviours.
const (
	MultiGroupAggressive   = "aggressive"
	MultiGroupConservative = "conservative"
	MultiGroupKeepAll      = "keep_all"
)

// Deduplicator configures duplicate collapsing. Keys is a subset of
// {filename, infoHash, size, smartDetect}; an empty list falls back to
// smartDetect. Cached, Uncached and P2P pick the per-class policy.
type Deduplicator struct {
	Enabled             bool     `json:"enabled"`
	Keys                []string `json:"keys,omitempty"`
	MultiGroupBehaviour string   `json:"multiGroupBehaviour,omitempty"`
	Cached              string   `json:"cached,omitempty"`
	Uncached            string   `json:"uncached,omitempty"`
	P2P                 string   `json:"p2p,omitempty"`
}

// TitleMatching drops streams whose parsed title does not correspond to the
// requested content. Modes: exact (normalized equality), contains
// (normalized containment either way), fuzzy (normalized fold matching).
type TitleMatching struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode,omitempty"`
}

// YearMatching drops streams whose parsed year falls outside the content's
// release year, within Tolerance years (default 1). Streams without a
// parsed year pass.
type YearMatching struct {
	Enabled   bool `json:"enabled"`
	Tolerance *int `json:"tolerance,omitempty"`
}

// SeasonEpisodeMatching drops streams whose parsed season or episode
// contradicts the requested one. Absolute-numbered anime files are matched
// against the computed absolute episode.
type SeasonEpisodeMatching struct {
	Enabled bool `json:"enabled"`
}

// DigitalReleaseFilter drops home-release-quality streams for movies whose
// digital release has not happened yet.
type DigitalReleaseFilter struct {
	Enabled bool `json:"enabled"`
}

// UserData is the per-user configuration subset the pipeline consumes.
type UserData struct {
	PreferredResolutions   []string `json:"preferredResolutions,omitempty"`
	ExcludedResolutions    []string `json:"excludedResolutions,omitempty"`
	RequiredResolutions    []string `json:"requiredResolutions,omitempty"`
	PreferredQualities     []string `json:"preferredQualities,omitempty"`
	ExcludedQualities      []string `json:"excludedQualities,omitempty"`
	RequiredQualities      []string `json:"requiredQualities,omitempty"`
	PreferredEncodes       []string `json:"preferredEncodes,omitempty"`
	ExcludedEncodes        []string `json:"excludedEncodes,omitempty"`
	PreferredVisualTags    []string `json:"preferredVisualTags,omitempty"`
	ExcludedVisualTags     []string `json:"excludedVisualTags,omitempty"`
	PreferredAudioTags     []string `json:"preferredAudioTags,omitempty"`
	ExcludedAudioTags      []string `json:"excludedAudioTags,omitempty"`
	PreferredAudioChannels []string `json:"preferredAudioChannels,omitempty"`
	PreferredLanguages     []string `json:"preferredLanguages,omitempty"`
	ExcludedLanguages      []string `json:"excludedLanguages,omitempty"`
	RequiredLanguages      []string `json:"requiredLanguages,omitempty"`
	ExcludedStreamTypes    []string `json:"excludedStreamTypes,omitempty"`

	PreferredKeywords          []string           `json:"preferredKeywords,omitempty"`
	PreferredRegexPatterns     []RegexPattern     `json:"preferredRegexPatterns,omitempty"`
	PreferredStreamExpressions []string           `json:"preferredStreamExpressions,omitempty"`
	RankedStreamExpressions    []RankedExpression `json:"rankedStreamExpressions,omitempty"`
	IncludedStreamExpressions  []string           `json:"includedStreamExpressions,omitempty"`
	RequiredStreamExpressions  []string           `json:"requiredStreamExpressions,omitempty"`
	ExcludedStreamExpressions  []string           `json:"excludedStreamExpressions,omitempty"`

	Deduplicator          Deduplicator          `json:"deduplicator,omitempty"`
	EnableSeadex          *bool                 `json:"enableSeadex,omitempty"`
	TitleMatching         TitleMatching         `json:"titleMatching,omitempty"`
	YearMatching          YearMatching          `json:"yearMatching,omitempty"`
	SeasonEpisodeMatching SeasonEpisodeMatching `json:"seasonEpisodeMatching,omitempty"`
	DigitalReleaseFilter  DigitalReleaseFilter  `json:"digitalReleaseFilter,omitempty"`
	SortCriteria          SortCriteria          `json:"sortCriteria,omitempty"`

	// AllowRegex gates user-supplied regex patterns. Denied patterns are
	// treated as empty.
	AllowRegex bool `json:"allowRegex,omitempty"`
}

// SeadexEnabled reports whether curated-release tagging is on. It defaults
// to on; only an explicit false disables it.
func (u *UserData) SeadexEnabled() bool {
	return u == nil || u.EnableSeadex == nil || *u.EnableSeadex
}

// hasExpressions reports whether any expression list is populated.
func (u *UserData) hasExpressions() bool {
	if u == nil {
		return false
	}
	return len(u.PreferredStreamExpressions) > 0 ||
		len(u.RankedStreamExpressions) > 0 ||
		len(u.IncludedStreamExpressions) > 0 ||
		len(u.RequiredStreamExpressions) > 0 ||
		len(u.ExcludedStreamExpressions) > 0
}
