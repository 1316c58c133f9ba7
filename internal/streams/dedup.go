// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tributary/tributary/pkg/stringutils"
)

// deduplicateStreams collapses duplicate copies of the same underlying
// release. Streams are grouped by the configured keys, each group is thinned
// per service class, then the multi-group behaviour decides whether cached
// copies push out uncached ones. Runs after sorting so "first" means "best".
func deduplicateStreams(streams []*ParsedStream, d Deduplicator) []*ParsedStream {
	if !d.Enabled || len(streams) < 2 {
		return streams
	}
	keys := d.Keys
	if len(keys) == 0 {
		keys = []string{"smartDetect"}
	}

	var order []string
	groups := make(map[string][]*ParsedStream)
	for _, s := range streams {
		key := dedupKey(s, keys)
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	drop := make(map[*ParsedStream]struct{})
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}

		var cached, uncached, p2p []*ParsedStream
		for _, s := range members {
			switch {
			case s.Cached():
				cached = append(cached, s)
			case s.Uncached():
				uncached = append(uncached, s)
			default:
				p2p = append(p2p, s)
			}
		}
		applyGroupPolicy(d.Cached, cached, drop)
		applyGroupPolicy(d.Uncached, uncached, drop)
		applyGroupPolicy(d.P2P, p2p, drop)

		var survivors []*ParsedStream
		for _, s := range members {
			if _, dropped := drop[s]; !dropped {
				survivors = append(survivors, s)
			}
		}
		applyMultiGroup(d.MultiGroupBehaviour, survivors, drop)
	}

	if len(drop) == 0 {
		return streams
	}
	kept := make([]*ParsedStream, 0, len(streams)-len(drop))
	for _, s := range streams {
		if _, dropped := drop[s]; !dropped {
			kept = append(kept, s)
		}
	}
	return kept
}

// dedupKey builds the grouping key. Streams where every configured key part
// comes up empty return "" and are never grouped.
func dedupKey(s *ParsedStream, keys []string) string {
	parts := make([]string, 0, len(keys))
	empty := true
	for _, k := range keys {
		var part string
		switch k {
		case "infoHash":
			part = s.InfoHash()
		case "filename":
			part = stringutils.NormalizeForMatching(trimVideoExt(s.Filename))
		case "size":
			if s.Size > 0 {
				part = strconv.FormatInt(s.Size, 10)
			}
		case "smartDetect":
			part = smartKey(s)
		}
		if part != "" {
			empty = false
		}
		parts = append(parts, k+":"+part)
	}
	if empty {
		return ""
	}
	return strings.Join(parts, "|")
}

// smartKey picks the strongest identity signal available: the info-hash,
// else the normalized filename, else parsed title plus year, resolution and
// size.
func smartKey(s *ParsedStream) string {
	if h := s.InfoHash(); h != "" {
		return "hash:" + h
	}
	if f := stringutils.NormalizeForMatching(trimVideoExt(s.Filename)); f != "" {
		return "file:" + f
	}
	if pf := s.ParsedFile; pf != nil && pf.Title != "" {
		return fmt.Sprintf("meta:%s|%d|%s|%d",
			stringutils.NormalizeForMatching(pf.Title), pf.Year, strings.ToLower(pf.Resolution), s.Size)
	}
	return ""
}

var videoExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m2ts": {}, ".mov": {},
	".webm": {}, ".wmv": {}, ".flv": {}, ".mpg": {}, ".mpeg": {}, ".m4v": {},
}

// trimVideoExt drops a trailing container extension so the same file listed
// with and without it lands in one group.
func trimVideoExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := videoExtensions[ext]; ok {
		return name[:len(name)-len(ext)]
	}
	return name
}

func serviceKey(s *ParsedStream) string {
	if s.Service != nil {
		return s.Service.ID
	}
	return s.Addon
}

// applyGroupPolicy thins one service class of a duplicate group. Member
// order is the current stream order, so keeping the first keeps the best.
func applyGroupPolicy(policy string, members []*ParsedStream, drop map[*ParsedStream]struct{}) {
	if len(members) < 2 {
		return
	}
	switch policy {
	case DedupSingleResult:
		for _, s := range members[1:] {
			drop[s] = struct{}{}
		}
	case DedupPerService:
		seen := make(map[string]struct{})
		for _, s := range members {
			key := serviceKey(s)
			if _, dup := seen[key]; dup {
				drop[s] = struct{}{}
				continue
			}
			seen[key] = struct{}{}
		}
	}
}

// applyMultiGroup resolves cached against uncached copies of one release.
// Aggressive drops every uncached survivor once any cached copy exists;
// conservative only drops an uncached copy whose own service also has a
// cached one.
func applyMultiGroup(behaviour string, survivors []*ParsedStream, drop map[*ParsedStream]struct{}) {
	switch behaviour {
	case MultiGroupAggressive:
		anyCached := false
		for _, s := range survivors {
			if s.Cached() {
				anyCached = true
				break
			}
		}
		if !anyCached {
			return
		}
		for _, s := range survivors {
			if s.Uncached() {
				drop[s] = struct{}{}
			}
		}
	case MultiGroupConservative:
		cachedServices := make(map[string]struct{})
		for _, s := range survivors {
			if s.Cached() {
				cachedServices[s.Service.ID] = struct{}{}
			}
		}
		for _, s := range survivors {
			if !s.Uncached() {
				continue
			}
			if _, ok := cachedServices[s.Service.ID]; ok {
				drop[s] = struct{}{}
			}
		}
	}
}
