// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"context"

	"github.com/tributary/tributary/internal/streamexpr"
)

// envBuilder produces per-stream expression environments. The request-level
// fields are snapshotted once; only the stream view varies.
type envBuilder struct {
	base map[string]any
}

func newEnvBuilder(ctx context.Context, c *Context) *envBuilder {
	return &envBuilder{base: c.ExpressionFields(ctx)}
}

func (b *envBuilder) envFor(s *ParsedStream) streamexpr.Env {
	fields := make(map[string]any, len(b.base)+18)
	for k, v := range b.base {
		fields[k] = v
	}
	addStreamShorthand(fields, s)
	return streamexpr.NewEnv(fields, streamView(s))
}

// addStreamShorthand exposes the common stream attributes as bare names so
// expressions can say `resolution == "2160p"` instead of spelling out the
// stream path every time.
func addStreamShorthand(fields map[string]any, s *ParsedStream) {
	fields["filename"] = s.Filename
	fields["folderName"] = s.FolderName
	fields["indexer"] = s.Indexer
	fields["size"] = s.Size
	fields["age"] = s.Age
	fields["infoHash"] = s.InfoHash()
	fields["cached"] = s.Cached()
	fields["library"] = s.Library
	fields["proxied"] = s.Proxied
	fields["private"] = s.Private
	if s.Torrent != nil && s.Torrent.Seeders != nil {
		fields["seeders"] = *s.Torrent.Seeders
	}
	if pf := s.ParsedFile; pf != nil {
		fields["resolution"] = pf.Resolution
		fields["quality"] = pf.Quality
		fields["encode"] = pf.Encode
		fields["releaseGroup"] = pf.ReleaseGroup
		fields["visualTags"] = pf.VisualTags
		fields["audioTags"] = pf.AudioTags
		fields["audioChannels"] = pf.AudioChannels
		fields["languages"] = pf.Languages
	}
}

// streamView is the full stream projection reachable under `stream.` in
// expressions. Absent sub-objects stay absent so `stream.service?.id` and
// friends come back nil instead of zero values.
func streamView(s *ParsedStream) map[string]any {
	view := map[string]any{
		"id":             s.ID,
		"addon":          s.Addon,
		"filename":       s.Filename,
		"folderName":     s.FolderName,
		"indexer":        s.Indexer,
		"size":           s.Size,
		"folderSize":     s.FolderSize,
		"age":            s.Age,
		"type":           string(s.Type),
		"library":        s.Library,
		"proxied":        s.Proxied,
		"private":        s.Private,
		"message":        s.Message,
		"url":            s.URL,
		"keywordMatched": s.KeywordMatched,
	}
	if pf := s.ParsedFile; pf != nil {
		view["title"] = pf.Title
		view["year"] = pf.Year
		view["season"] = pf.Season
		view["episode"] = pf.Episode
		view["resolution"] = pf.Resolution
		view["quality"] = pf.Quality
		view["encode"] = pf.Encode
		view["releaseGroup"] = pf.ReleaseGroup
		view["visualTags"] = pf.VisualTags
		view["audioTags"] = pf.AudioTags
		view["audioChannels"] = pf.AudioChannels
		view["languages"] = pf.Languages
	}
	if t := s.Torrent; t != nil {
		torrent := map[string]any{"infoHash": s.InfoHash()}
		if t.Seeders != nil {
			torrent["seeders"] = *t.Seeders
		}
		view["torrent"] = torrent
	}
	if svc := s.Service; svc != nil {
		view["service"] = map[string]any{
			"id":        svc.ID,
			"shortName": svc.ShortName,
			"cached":    svc.Cached,
		}
	}
	if tag := s.SeaDex; tag != nil {
		view["seadex"] = map[string]any{
			"isBest":   tag.IsBest,
			"isSeadex": tag.IsSeadex,
		}
	}
	if m := s.RegexMatched; m != nil {
		view["regexMatched"] = map[string]any{
			"name":  m.Name,
			"index": m.Index,
		}
	}
	return view
}
