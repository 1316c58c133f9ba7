// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"strings"
	"time"

	"github.com/moistari/rls"

	"github.com/tributary/tributary/pkg/stringutils"
)

// releaseCache memoizes rls parses. Parsing is the most expensive step in
// the pipeline and the same release names recur across requests for
// popular content.
var releaseCache = stringutils.NewNormalizer(5*time.Minute, rls.ParseString)

// ParseFile derives release attributes from a stream's file and folder
// names. The filename drives the parse; attributes it lacks are filled from
// the folder name. Both empty yields nil.
func ParseFile(filename, folderName string) *ParsedFile {
	name := filename
	if name == "" {
		name = folderName
	}
	if name == "" {
		return nil
	}

	parsed := fromRelease(releaseCache.Normalize(name))
	if filename != "" && folderName != "" && folderName != filename {
		fillMissing(parsed, fromRelease(releaseCache.Normalize(folderName)))
	}
	return parsed
}

func fromRelease(r rls.Release) *ParsedFile {
	pf := &ParsedFile{
		Title:        r.Title,
		Year:         r.Year,
		Season:       r.Series,
		Episode:      r.Episode,
		Resolution:   normalizeResolution(r.Resolution),
		Quality:      r.Source,
		ReleaseGroup: r.Group,
		VisualTags:   append([]string(nil), r.HDR...),
		AudioTags:    append([]string(nil), r.Audio...),
		Languages:    append([]string(nil), r.Language...),
	}
	if len(r.Codec) > 0 {
		pf.Encode = r.Codec[0]
	}
	if r.Channels != "" {
		pf.AudioChannels = []string{r.Channels}
	}
	return pf
}

// fillMissing copies attributes the folder parse found but the file parse
// did not.
func fillMissing(dst, src *ParsedFile) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if dst.Season == 0 {
		dst.Season = src.Season
	}
	if dst.Episode == 0 {
		dst.Episode = src.Episode
	}
	if dst.Resolution == "" {
		dst.Resolution = src.Resolution
	}
	if dst.Quality == "" {
		dst.Quality = src.Quality
	}
	if dst.Encode == "" {
		dst.Encode = src.Encode
	}
	if dst.ReleaseGroup == "" {
		dst.ReleaseGroup = src.ReleaseGroup
	}
	if len(dst.VisualTags) == 0 {
		dst.VisualTags = src.VisualTags
	}
	if len(dst.AudioTags) == 0 {
		dst.AudioTags = src.AudioTags
	}
	if len(dst.AudioChannels) == 0 {
		dst.AudioChannels = src.AudioChannels
	}
	if len(dst.Languages) == 0 {
		dst.Languages = src.Languages
	}
}

func normalizeResolution(res string) string {
	res = strings.ToLower(strings.TrimSpace(res))
	switch res {
	case "4k", "uhd":
		return "2160p"
	case "2k":
		return "1440p"
	}
	return res
}

// encodeAliases folds equivalent encode names so user lists match however
// the release spells it. x264, H.264, H264 and AVC name the same codec,
// as do x265, H.265, H265 and HEVC.
var encodeAliases = map[string]string{
	"X264":  "AVC",
	"H.264": "AVC",
	"H264":  "AVC",
	"AVC":   "AVC",
	"X265":  "HEVC",
	"H.265": "HEVC",
	"H265":  "HEVC",
	"HEVC":  "HEVC",
}

// canonicalEncode returns the matching form of an encode value. Unknown
// encodes compare by their uppercased spelling.
func canonicalEncode(v string) string {
	upper := strings.ToUpper(strings.TrimSpace(v))
	if canonical, ok := encodeAliases[upper]; ok {
		return canonical
	}
	return upper
}
