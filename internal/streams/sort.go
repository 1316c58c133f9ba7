// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// defaultResolutionOrder ranks resolutions best first when the user has no
// preferred list.
var defaultResolutionOrder = []string{
	"2160p", "1440p", "1080p", "720p", "576p", "480p", "360p", "240p", "144p",
}

// defaultQualityOrder ranks source qualities best first when the user has no
// preferred list.
var defaultQualityOrder = []string{
	"remux", "bluray", "web-dl", "web", "webrip", "hdtv", "dvdrip", "dvd",
	"scr", "telesync", "ts", "cam",
}

var streamTypeRank = map[StreamType]float64{
	StreamTypeDebrid:   7,
	StreamTypeUsenet:   6,
	StreamTypeP2P:      5,
	StreamTypeHTTP:     4,
	StreamTypeLive:     3,
	StreamTypeYouTube:  2,
	StreamTypeExternal: 1,
}

// sortStreams orders streams by the user's criteria, most significant
// first. Each key is descending unless its direction says "asc"; streams
// tied on every key keep their current relative order.
func sortStreams(streams []*ParsedStream, u *UserData) {
	if u == nil || len(u.SortCriteria.Global) == 0 {
		return
	}
	criteria := u.SortCriteria.Global
	sort.SliceStable(streams, func(i, j int) bool {
		for _, c := range criteria {
			ri := keyRank(c.Key, streams[i], u)
			rj := keyRank(c.Key, streams[j], u)
			if ri == rj {
				continue
			}
			if strings.EqualFold(c.Direction, "asc") {
				return ri < rj
			}
			return ri > rj
		}
		return false
	})
}

// keyRank maps one stream onto a comparable rank for a sort key. Higher is
// better; streams missing the keyed attribute entirely rank negative
// infinity where the key is about an earned position, zero otherwise.
func keyRank(key string, s *ParsedStream, u *UserData) float64 {
	pf := s.ParsedFile
	if pf == nil {
		pf = &ParsedFile{}
	}

	switch key {
	case "cached":
		return boolRank(s.Cached())
	case "library":
		return boolRank(s.Library)
	case "resolution":
		order := u.PreferredResolutions
		if len(order) == 0 {
			order = defaultResolutionOrder
		}
		return scalarListRank(order, pf.Resolution)
	case "quality":
		if len(u.PreferredQualities) > 0 {
			return scalarListRank(u.PreferredQualities, pf.Quality)
		}
		return scalarListRank(defaultQualityOrder, pf.Quality)
	case "encode":
		if len(u.PreferredEncodes) > 0 {
			return encodeListRank(u.PreferredEncodes, pf.Encode)
		}
		return boolRank(pf.Encode != "")
	case "visualTag":
		return listRank(u.PreferredVisualTags, pf.VisualTags)
	case "audioTag":
		return listRank(u.PreferredAudioTags, pf.AudioTags)
	case "language":
		return listRank(u.PreferredLanguages, pf.Languages)
	case "audioChannel":
		if len(u.PreferredAudioChannels) > 0 {
			return listRank(u.PreferredAudioChannels, pf.AudioChannels)
		}
		return maxChannels(pf.AudioChannels)
	case "seadex":
		switch {
		case s.SeaDex == nil:
			return 0
		case s.SeaDex.IsBest:
			return 2
		case s.SeaDex.IsSeadex:
			return 1
		default:
			return 0
		}
	case "keyword":
		return boolRank(s.KeywordMatched)
	case "regexPatterns":
		if s.RegexMatched == nil {
			return math.Inf(-1)
		}
		return -float64(s.RegexMatched.Index)
	case "streamExpression":
		// Earned scores and match positions share one axis: scores are
		// user-chosen magnitudes, positions count down from -1.
		if s.StreamExpressionScore != nil {
			return *s.StreamExpressionScore
		}
		if s.StreamExpressionMatched != nil {
			return -float64(*s.StreamExpressionMatched + 1)
		}
		return math.Inf(-1)
	case "streamType":
		return streamTypeRank[s.Type]
	case "size":
		return float64(s.Size)
	case "seeders":
		if s.Torrent == nil || s.Torrent.Seeders == nil {
			return math.Inf(-1)
		}
		return float64(*s.Torrent.Seeders)
	case "age":
		return float64(s.Age)
	default:
		return 0
	}
}

func boolRank(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// scalarListRank ranks a value by its position in a best-first list:
// earlier entries rank higher, absent values rank zero.
func scalarListRank(order []string, value string) float64 {
	if value == "" {
		return 0
	}
	for i, item := range order {
		if strings.EqualFold(item, value) {
			return float64(len(order) - i)
		}
	}
	return 0
}

// encodeListRank ranks an encode by its position in a best-first list,
// folding aliases so a "x265" preference ranks releases tagged "HEVC".
func encodeListRank(order []string, value string) float64 {
	if value == "" {
		return 0
	}
	cv := canonicalEncode(value)
	for i, item := range order {
		if canonicalEncode(item) == cv {
			return float64(len(order) - i)
		}
	}
	return 0
}

// listRank ranks a multi-valued attribute by the best list position any of
// its values reaches. Without a preference list it degrades to presence.
func listRank(order []string, values []string) float64 {
	if len(order) == 0 {
		return boolRank(len(values) > 0)
	}
	best := 0.0
	for _, v := range values {
		if r := scalarListRank(order, v); r > best {
			best = r
		}
	}
	return best
}

// maxChannels ranks audio channel layouts numerically, so "7.1" beats
// "5.1" beats "2.0".
func maxChannels(channels []string) float64 {
	best := 0.0
	for _, c := range channels {
		if v, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil && v > best {
			best = v
		}
	}
	return best
}
