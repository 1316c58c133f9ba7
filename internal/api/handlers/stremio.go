// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"fmt"
	"strings"

	"github.com/tributary/tributary/internal/streams"
)

// StremioStream is the wire shape served to Stremio clients. Release info
// rides in the description as emoji-prefixed stats, the convention the
// addon ecosystem parses.
type StremioStream struct {
	Name          string         `json:"name,omitempty"`
	Description   string         `json:"description,omitempty"`
	URL           string         `json:"url,omitempty"`
	InfoHash      string         `json:"infoHash,omitempty"`
	ExternalURL   string         `json:"externalUrl,omitempty"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// BehaviorHints carries the playback hints Stremio understands.
type BehaviorHints struct {
	BingeGroup  string `json:"bingeGroup,omitempty"`
	Filename    string `json:"filename,omitempty"`
	VideoSize   int64  `json:"videoSize,omitempty"`
	NotWebReady bool   `json:"notWebReady,omitempty"`
}

// StremioStreamsResponse is the body of a /stream answer. Streams is always
// present, empty on no results.
type StremioStreamsResponse struct {
	Streams []StremioStream `json:"streams"`
}

const serviceName = "Tributary"

// ToStremioResponse renders a pipeline result for Stremio. A result message
// with no streams becomes a single informational entry so the client shows
// something actionable instead of a blank list.
func ToStremioResponse(result *streams.Result) StremioStreamsResponse {
	resp := StremioStreamsResponse{Streams: []StremioStream{}}
	if result == nil {
		return resp
	}

	for _, s := range result.Streams {
		resp.Streams = append(resp.Streams, toStremioStream(s))
	}

	if len(resp.Streams) == 0 && result.Message != "" {
		resp.Streams = append(resp.Streams, StremioStream{
			Name:        "[⚠️] " + serviceName,
			Description: result.Message,
			ExternalURL: "https://github.com/tributary/tributary",
		})
	}

	return resp
}

func toStremioStream(s *streams.ParsedStream) StremioStream {
	if s.Type == streams.StreamTypeError || s.Type == streams.StreamTypeStatistic {
		return StremioStream{
			Name:        "[⚠️] " + serviceName,
			Description: s.Message,
			ExternalURL: "https://github.com/tributary/tributary",
		}
	}

	out := StremioStream{
		Name:        streamName(s),
		Description: streamDescription(s),
		URL:         s.URL,
	}

	if s.Type == streams.StreamTypeP2P {
		out.InfoHash = s.InfoHash()
		out.URL = ""
	}

	hints := BehaviorHints{
		BingeGroup:  bingeGroup(s),
		Filename:    s.Filename,
		VideoSize:   s.Size,
		NotWebReady: s.Type == streams.StreamTypeP2P,
	}
	if hints != (BehaviorHints{}) {
		out.BehaviorHints = &hints
	}

	return out
}

// streamName builds the short label column: service tag, addon identity and
// resolution. "+" marks a service cache hit, "⏳" a download the service
// still has to run.
func streamName(s *streams.ParsedStream) string {
	var b strings.Builder

	switch {
	case s.Service != nil && s.Service.Cached:
		fmt.Fprintf(&b, "[%s+] ", serviceShort(s))
	case s.Service != nil:
		fmt.Fprintf(&b, "[%s⏳] ", serviceShort(s))
	case s.Type == streams.StreamTypeP2P:
		b.WriteString("[P2P] ")
	}

	b.WriteString(serviceName)

	if s.ParsedFile != nil && s.ParsedFile.Resolution != "" {
		b.WriteString(" " + s.ParsedFile.Resolution)
	}

	return b.String()
}

func serviceShort(s *streams.ParsedStream) string {
	if s.Service.ShortName != "" {
		return s.Service.ShortName
	}
	return strings.ToUpper(s.Service.ID)
}

// streamDescription lays out the release facts line by line:
//
//	🎬 title and episode
//	filename
//	🎥 quality 🎞️ encode
//	📺 visual tags
//	🎧 audio tags 🔊 channels
//	📦 size 📡 indexer 👤 seeders
//	language flags
func streamDescription(s *streams.ParsedStream) string {
	var lines []string
	pf := s.ParsedFile

	if title := titleLine(s); title != "" {
		lines = append(lines, "🎬 "+title)
	}
	if s.Filename != "" {
		lines = append(lines, s.Filename)
	}

	if pf != nil {
		if release := joinParts(" ", emojiPart("🎥", pf.Quality), emojiPart("🎞️", pf.Encode)); release != "" {
			lines = append(lines, release)
		}
		if len(pf.VisualTags) > 0 {
			lines = append(lines, "📺 "+strings.Join(pf.VisualTags, " | "))
		}
		if audio := audioLine(pf); audio != "" {
			lines = append(lines, audio)
		}
	}

	if stats := statsLine(s); stats != "" {
		lines = append(lines, stats)
	}
	if pf != nil && len(pf.Languages) > 0 {
		lines = append(lines, languageFlags(pf.Languages))
	}

	return strings.Join(lines, "\n")
}

func titleLine(s *streams.ParsedStream) string {
	pf := s.ParsedFile
	if pf == nil || pf.Title == "" {
		return ""
	}

	title := pf.Title
	switch {
	case pf.Season > 0 && pf.Episode > 0:
		title = fmt.Sprintf("%s S%02dE%02d", title, pf.Season, pf.Episode)
	case pf.Season > 0:
		title = fmt.Sprintf("%s S%02d", title, pf.Season)
	case pf.Episode > 0:
		title = fmt.Sprintf("%s E%02d", title, pf.Episode)
	case pf.Year > 0:
		title = fmt.Sprintf("%s (%d)", title, pf.Year)
	}
	return title
}

func audioLine(pf *streams.ParsedFile) string {
	return joinParts(" ",
		emojiPart("🎧", strings.Join(pf.AudioTags, " | ")),
		emojiPart("🔊", strings.Join(pf.AudioChannels, " | ")),
	)
}

func statsLine(s *streams.ParsedStream) string {
	size := s.Size
	if size == 0 {
		size = s.FolderSize
	}

	seeders := ""
	if s.Torrent != nil && s.Torrent.Seeders != nil {
		seeders = fmt.Sprintf("%d", *s.Torrent.Seeders)
	}

	return joinParts(" ",
		emojiPart("📦", formatBytes(size)),
		emojiPart("📡", s.Indexer),
		emojiPart("👤", seeders),
	)
}

// bingeGroup keys Stremio's next-episode auto-pick: episodes sharing the
// group are assumed to be the same release flavor.
func bingeGroup(s *streams.ParsedStream) string {
	parts := []string{"tributary"}
	if pf := s.ParsedFile; pf != nil {
		for _, p := range []string{pf.Resolution, pf.Quality, pf.Encode, pf.ReleaseGroup} {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, "|")
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// formatBytes renders a byte count the way the ecosystem's description
// parsers read it back: two decimals, 1024 steps, plain unit labels.
func formatBytes(n int64) string {
	if n <= 0 {
		return ""
	}
	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[unit])
}

var languageFlag = map[string]string{
	"english":    "🇬🇧",
	"german":     "🇩🇪",
	"french":     "🇫🇷",
	"spanish":    "🇪🇸",
	"italian":    "🇮🇹",
	"russian":    "🇷🇺",
	"japanese":   "🇯🇵",
	"chinese":    "🇨🇳",
	"korean":     "🇰🇷",
	"portuguese": "🇵🇹",
	"dutch":      "🇳🇱",
	"polish":     "🇵🇱",
	"swedish":    "🇸🇪",
	"czech":      "🇨🇿",
	"hungarian":  "🇭🇺",
	"turkish":    "🇹🇷",
	"multi":      "🌎",
}

// languageFlags renders languages as flag emojis where one exists, plain
// names otherwise.
func languageFlags(languages []string) string {
	parts := make([]string, 0, len(languages))
	for _, lang := range languages {
		if flag, ok := languageFlag[strings.ToLower(lang)]; ok {
			parts = append(parts, flag)
			continue
		}
		parts = append(parts, lang)
	}
	return strings.Join(parts, " ")
}

func emojiPart(emoji, value string) string {
	if value == "" {
		return ""
	}
	return emoji + " " + value
}

func joinParts(sep string, parts ...string) string {
	joined := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			joined = append(joined, p)
		}
	}
	return strings.Join(joined, sep)
}
