// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package addons

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog/log"

	"github.com/tributary/tributary/internal/streams"
	"github.com/tributary/tributary/pkg/hashutil"
)

type streamsResponse struct {
	Streams []stremioStream `json:"streams"`
}

type behaviorHints struct {
	Filename  string `json:"filename"`
	VideoSize int64  `json:"videoSize"`
}

// stremioStream is the wire shape addons answer with. Older addons put the
// release text in title, newer ones in description.
type stremioStream struct {
	URL           string         `json:"url"`
	YouTubeID     string         `json:"ytId"`
	InfoHash      string         `json:"infoHash"`
	FileIdx       int            `json:"fileIdx"`
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	ExternalURL   string         `json:"externalUrl"`
	BehaviorHints *behaviorHints `json:"behaviorHints"`
}

// Addons pack seeders, size and indexer into the description as emoji
// prefixed stats, one convention across the ecosystem.
var (
	seedersPattern = regexp.MustCompile(`👤\s*(\d+)`)
	sizePattern    = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGTP]?i?B)`)
	indexerPattern = regexp.MustCompile(`⚙️\s*([^\n]+)`)
)

// convertStream maps one addon stream onto a pipeline stream. Entries with
// no playable handle at all come back nil.
func convertStream(addonName string, index int, raw stremioStream) *streams.ParsedStream {
	desc := raw.Description
	if desc == "" {
		desc = raw.Title
	}

	var hints behaviorHints
	if raw.BehaviorHints != nil {
		hints = *raw.BehaviorHints
	}

	// The description's text lines carry the torrent name and, for packs,
	// the selected file on the second line. An explicit filename hint wins
	// and demotes the first line to the folder.
	filename := strings.TrimSpace(hints.Filename)
	folder := ""
	text := textLines(desc)
	switch {
	case filename != "":
		if len(text) > 0 && text[0] != filename {
			folder = text[0]
		}
	case len(text) >= 2:
		folder, filename = text[0], text[1]
	case len(text) == 1:
		filename = text[0]
	}

	// Magnet links are torrent handles, not playable URLs.
	infoHash := hashutil.Normalize(raw.InfoHash)
	playURL := strings.TrimSpace(raw.URL)
	if strings.HasPrefix(playURL, "magnet:") {
		if infoHash == "" {
			if m, err := metainfo.ParseMagnetUri(playURL); err != nil {
				log.Debug().Err(err).Str("addon", addonName).Msg("addons: unparseable magnet url")
			} else {
				infoHash = hashutil.Normalize(m.InfoHash.HexString())
				if filename == "" {
					filename = m.DisplayName
				}
			}
		}
		playURL = ""
	}

	service := serviceFromName(raw.Name)

	var typ streams.StreamType
	switch {
	case raw.YouTubeID != "":
		typ = streams.StreamTypeYouTube
		playURL = "https://www.youtube.com/watch?v=" + url.QueryEscape(raw.YouTubeID)
	case playURL == "" && infoHash == "" && raw.ExternalURL != "":
		typ = streams.StreamTypeExternal
		playURL = raw.ExternalURL
	case playURL == "" && infoHash != "":
		typ = streams.StreamTypeP2P
	case playURL != "" && service != nil:
		typ = streams.StreamTypeDebrid
	case playURL != "":
		typ = streams.StreamTypeHTTP
	default:
		return nil
	}

	size := hints.VideoSize
	if size == 0 {
		size = parseSize(desc)
	}

	var torrent *streams.Torrent
	if infoHash != "" {
		torrent = &streams.Torrent{InfoHash: infoHash}
		if seeders, ok := parseSeeders(desc); ok {
			torrent.Seeders = &seeders
		}
	}

	pf := streams.ParseFile(filename, folder)
	if pf != nil && pf.Resolution == "" {
		pf.Resolution = detectResolution(raw.Name + " " + desc)
	}

	id := fmt.Sprintf("%s:%d", slug(addonName), index)
	if infoHash != "" {
		id = fmt.Sprintf("%s:%s:%d", slug(addonName), infoHash, raw.FileIdx)
	}

	return &streams.ParsedStream{
		ID:         id,
		Addon:      addonName,
		Filename:   filename,
		FolderName: folder,
		Indexer:    parseIndexer(desc),
		ParsedFile: pf,
		Torrent:    torrent,
		Size:       size,
		Type:       typ,
		Service:    service,
		URL:        playURL,
	}
}

func textLines(desc string) []string {
	var out []string
	for _, line := range strings.Split(desc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isStatLine(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func isStatLine(line string) bool {
	return strings.ContainsRune(line, '👤') ||
		strings.ContainsRune(line, '💾') ||
		strings.ContainsRune(line, '⚙')
}

var sizeMultipliers = map[string]float64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
	"PB": 1 << 50,
}

func parseSize(desc string) int64 {
	m := sizePattern.FindStringSubmatch(desc)
	if len(m) != 3 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	unit := strings.ReplaceAll(strings.ToUpper(m[2]), "I", "")
	mult, ok := sizeMultipliers[unit]
	if !ok {
		return 0
	}
	return int64(value * mult)
}

func parseSeeders(desc string) (int, bool) {
	m := seedersPattern.FindStringSubmatch(desc)
	if len(m) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseIndexer(desc string) string {
	m := indexerPattern.FindStringSubmatch(desc)
	if len(m) != 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var serviceTagPattern = regexp.MustCompile(`\[([A-Z]{2,3})(\+|⏳| download)\]`)

var serviceIDs = map[string]string{
	"RD": "realdebrid",
	"AD": "alldebrid",
	"PM": "premiumize",
	"TB": "torbox",
	"DL": "debridlink",
	"OC": "offcloud",
	"ED": "easydebrid",
	"EN": "easynews",
}

// serviceFromName reads the bracket tag debrid-aware addons prefix stream
// names with: "[RD+]" marks a cache hit, "[RD download]" content the
// service still has to grab.
func serviceFromName(name string) *streams.StreamService {
	m := serviceTagPattern.FindStringSubmatch(name)
	if len(m) != 3 {
		return nil
	}
	short := m[1]
	id, ok := serviceIDs[short]
	if !ok {
		id = strings.ToLower(short)
	}
	return &streams.StreamService{
		ID:        id,
		ShortName: short,
		Cached:    m[2] == "+",
	}
}

// detectResolution backstops release parsing for addons that only state the
// resolution in their stream label.
func detectResolution(s string) string {
	release := strings.ToLower(s)
	switch {
	case strings.Contains(release, "2160p") || strings.Contains(release, "4k"):
		return "2160p"
	case strings.Contains(release, "1440p") || strings.Contains(release, "2k"):
		return "1440p"
	case strings.Contains(release, "1080p"):
		return "1080p"
	case strings.Contains(release, "720p"):
		return "720p"
	case strings.Contains(release, "576p"):
		return "576p"
	case strings.Contains(release, "480p"):
		return "480p"
	default:
		return ""
	}
}
