// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/streams"
)

func intPtr(v int) *int {
	return &v
}

func TestStreamName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream *streams.ParsedStream
		want   string
	}{
		{
			name: "cached service with short name",
			stream: &streams.ParsedStream{
				Type:       streams.StreamTypeDebrid,
				Service:    &streams.StreamService{ID: "realdebrid", ShortName: "RD", Cached: true},
				ParsedFile: &streams.ParsedFile{Resolution: "1080p"},
			},
			want: "[RD+] Tributary 1080p",
		},
		{
			name: "uncached service falls back to upper id",
			stream: &streams.ParsedStream{
				Type:    streams.StreamTypeDebrid,
				Service: &streams.StreamService{ID: "tb", Cached: false},
			},
			want: "[TB⏳] Tributary",
		},
		{
			name: "p2p stream",
			stream: &streams.ParsedStream{
				Type:       streams.StreamTypeP2P,
				ParsedFile: &streams.ParsedFile{Resolution: "2160p"},
			},
			want: "[P2P] Tributary 2160p",
		},
		{
			name: "plain http stream",
			stream: &streams.ParsedStream{
				Type: streams.StreamTypeHTTP,
			},
			want: "Tributary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, streamName(tt.stream))
		})
	}
}

func TestStreamDescriptionFullyTagged(t *testing.T) {
	t.Parallel()

	stream := &streams.ParsedStream{
		Type:     streams.StreamTypeDebrid,
		Filename: "Inception.2010.1080p.BluRay.x265-SPARKS.mkv",
		Indexer:  "RARBG",
		Size:     2147483648,
		Torrent:  &streams.Torrent{InfoHash: "ABC123", Seeders: intPtr(142)},
		ParsedFile: &streams.ParsedFile{
			Title:         "Inception",
			Year:          2010,
			Resolution:    "1080p",
			Quality:       "BluRay",
			Encode:        "x265",
			VisualTags:    []string{"HDR10", "DV"},
			AudioTags:     []string{"DDP", "Atmos"},
			AudioChannels: []string{"5.1"},
			Languages:     []string{"English", "Japanese"},
			ReleaseGroup:  "SPARKS",
		},
	}

	want := strings.Join([]string{
		"🎬 Inception (2010)",
		"Inception.2010.1080p.BluRay.x265-SPARKS.mkv",
		"🎥 BluRay 🎞️ x265",
		"📺 HDR10 | DV",
		"🎧 DDP | Atmos 🔊 5.1",
		"📦 2.00 GB 📡 RARBG 👤 142",
		"🇬🇧 🇯🇵",
	}, "\n")

	assert.Equal(t, want, streamDescription(stream))
}

func TestStreamDescriptionEpisode(t *testing.T) {
	t.Parallel()

	stream := &streams.ParsedStream{
		Type:     streams.StreamTypeDebrid,
		Filename: "Breaking.Bad.S01E05.720p.mkv",
		ParsedFile: &streams.ParsedFile{
			Title:   "Breaking Bad",
			Season:  1,
			Episode: 5,
		},
	}

	desc := streamDescription(stream)
	lines := strings.Split(desc, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "🎬 Breaking Bad S01E05", lines[0])
	assert.Equal(t, "Breaking.Bad.S01E05.720p.mkv", lines[1])
}

func TestStreamDescriptionMinimal(t *testing.T) {
	t.Parallel()

	stream := &streams.ParsedStream{
		Type:     streams.StreamTypeHTTP,
		Filename: "movie.mkv",
	}

	assert.Equal(t, "movie.mkv", streamDescription(stream))
}

func TestStreamDescriptionFolderSizeFallback(t *testing.T) {
	t.Parallel()

	stream := &streams.ParsedStream{
		Type:       streams.StreamTypeDebrid,
		FolderSize: 1073741824,
	}

	assert.Equal(t, "📦 1.00 GB", streamDescription(stream))
}

func TestTitleLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pf   *streams.ParsedFile
		want string
	}{
		{name: "nil parsed file", pf: nil, want: ""},
		{name: "no title", pf: &streams.ParsedFile{Year: 2010}, want: ""},
		{name: "movie with year", pf: &streams.ParsedFile{Title: "Dune", Year: 2021}, want: "Dune (2021)"},
		{name: "season and episode", pf: &streams.ParsedFile{Title: "Dark", Season: 2, Episode: 8}, want: "Dark S02E08"},
		{name: "season pack", pf: &streams.ParsedFile{Title: "Dark", Season: 3}, want: "Dark S03"},
		{name: "absolute episode", pf: &streams.ParsedFile{Title: "One Piece", Episode: 1071}, want: "One Piece E1071"},
		{name: "bare title", pf: &streams.ParsedFile{Title: "Tenet"}, want: "Tenet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, titleLine(&streams.ParsedStream{ParsedFile: tt.pf}))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int64
		want string
	}{
		{name: "zero", n: 0, want: ""},
		{name: "negative", n: -5, want: ""},
		{name: "sub kilobyte", n: 512, want: "512 B"},
		{name: "exact kilobyte", n: 1024, want: "1.00 KB"},
		{name: "fractional kilobyte", n: 1536, want: "1.50 KB"},
		{name: "megabytes", n: 734003200, want: "700.00 MB"},
		{name: "gigabytes", n: 2684354560, want: "2.50 GB"},
		{name: "terabytes", n: 1099511627776, want: "1.00 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatBytes(tt.n))
		})
	}
}

func TestBingeGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream *streams.ParsedStream
		want   string
	}{
		{
			name: "full release attributes",
			stream: &streams.ParsedStream{
				ParsedFile: &streams.ParsedFile{
					Resolution:   "1080p",
					Quality:      "BluRay",
					Encode:       "x265",
					ReleaseGroup: "SPARKS",
				},
			},
			want: "tributary|1080p|BluRay|x265|SPARKS",
		},
		{
			name: "resolution only",
			stream: &streams.ParsedStream{
				ParsedFile: &streams.ParsedFile{Resolution: "720p"},
			},
			want: "tributary|720p",
		},
		{
			name:   "no parsed file",
			stream: &streams.ParsedStream{},
			want:   "",
		},
		{
			name: "empty parsed file",
			stream: &streams.ParsedStream{
				ParsedFile: &streams.ParsedFile{},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, bingeGroup(tt.stream))
		})
	}
}

func TestLanguageFlags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "🇬🇧 🇯🇵 🌎", languageFlags([]string{"English", "Japanese", "Multi"}))
	assert.Equal(t, "🇩🇪 Klingon", languageFlags([]string{"german", "Klingon"}))
}

func TestToStremioResponseEmpty(t *testing.T) {
	t.Parallel()

	resp := ToStremioResponse(nil)
	require.NotNil(t, resp.Streams)
	assert.Empty(t, resp.Streams)

	resp = ToStremioResponse(&streams.Result{})
	require.NotNil(t, resp.Streams)
	assert.Empty(t, resp.Streams)
}

func TestToStremioResponseMessageOnly(t *testing.T) {
	t.Parallel()

	resp := ToStremioResponse(&streams.Result{Message: "No upstream addons configured"})

	require.Len(t, resp.Streams, 1)
	assert.Equal(t, "[⚠️] Tributary", resp.Streams[0].Name)
	assert.Equal(t, "No upstream addons configured", resp.Streams[0].Description)
	assert.NotEmpty(t, resp.Streams[0].ExternalURL)
	assert.Empty(t, resp.Streams[0].URL)
}

func TestToStremioResponseMessageIgnoredWithStreams(t *testing.T) {
	t.Parallel()

	resp := ToStremioResponse(&streams.Result{
		Streams: []*streams.ParsedStream{
			{Type: streams.StreamTypeHTTP, URL: "https://example.com/video.mkv"},
		},
		Message: "partial failure",
	})

	require.Len(t, resp.Streams, 1)
	assert.Equal(t, "https://example.com/video.mkv", resp.Streams[0].URL)
}

func TestToStremioStreamErrorEntry(t *testing.T) {
	t.Parallel()

	out := toStremioStream(&streams.ParsedStream{
		Type:    streams.StreamTypeError,
		Message: "Provider timed out",
	})

	assert.Equal(t, "[⚠️] Tributary", out.Name)
	assert.Equal(t, "Provider timed out", out.Description)
	assert.Empty(t, out.URL)
	assert.Nil(t, out.BehaviorHints)
}

func TestToStremioStreamP2P(t *testing.T) {
	t.Parallel()

	out := toStremioStream(&streams.ParsedStream{
		Type:     streams.StreamTypeP2P,
		Filename: "show.mkv",
		Torrent:  &streams.Torrent{InfoHash: "1ABCDEF0123456789ABCDEF0123456789ABCDEF0"},
		URL:      "magnet:should-not-survive",
	})

	assert.Equal(t, "1abcdef0123456789abcdef0123456789abcdef0", out.InfoHash)
	assert.Empty(t, out.URL)
	require.NotNil(t, out.BehaviorHints)
	assert.True(t, out.BehaviorHints.NotWebReady)
	assert.Equal(t, "show.mkv", out.BehaviorHints.Filename)
}

func TestToStremioStreamDebrid(t *testing.T) {
	t.Parallel()

	out := toStremioStream(&streams.ParsedStream{
		Type:     streams.StreamTypeDebrid,
		Filename: "movie.mkv",
		Size:     2048,
		URL:      "https://debrid.example/dl/abc",
		Service:  &streams.StreamService{ID: "realdebrid", ShortName: "RD", Cached: true},
		ParsedFile: &streams.ParsedFile{
			Resolution: "1080p",
		},
	})

	assert.Equal(t, "[RD+] Tributary 1080p", out.Name)
	assert.Equal(t, "https://debrid.example/dl/abc", out.URL)
	assert.Empty(t, out.InfoHash)
	require.NotNil(t, out.BehaviorHints)
	assert.Equal(t, "tributary|1080p", out.BehaviorHints.BingeGroup)
	assert.Equal(t, "movie.mkv", out.BehaviorHints.Filename)
	assert.Equal(t, int64(2048), out.BehaviorHints.VideoSize)
	assert.False(t, out.BehaviorHints.NotWebReady)
}
