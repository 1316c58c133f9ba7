// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package streams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/internal/seadex"
)

type fakeFetcher struct {
	streams []*ParsedStream
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ ids.MediaType, _ string, _ *UserData) ([]*ParsedStream, error) {
	return f.streams, f.err
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
}

func (r *recordingObserver) ObserveStage(stage string, _ time.Duration, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingObserver) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stages...)
}

func TestPipelineProcess(t *testing.T) {
	t.Parallel()

	fetched := []*ParsedStream{
		{ID: "cam", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Resolution: "1080p", Quality: "CAM"}},
		{ID: "uhd", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Resolution: "2160p", Quality: "WEB-DL"}},
		{ID: "best", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Resolution: "1080p", Quality: "WEB-DL"}, Torrent: &Torrent{InfoHash: "bbbb"}},
		{ID: "dupe", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Resolution: "1080p", Quality: "WEB-DL"}, Torrent: &Torrent{InfoHash: "BBBB"}},
		{ID: "broken", Type: StreamTypeError, Message: "addon timed out"},
	}
	userData := &UserData{
		ExcludedQualities: []string{"CAM"},
		SortCriteria: SortCriteria{Global: []SortCriterion{
			{Key: "seadex"},
			{Key: "resolution"},
		}},
		Deduplicator: Deduplicator{
			Enabled: true,
			Keys:    []string{"infoHash"},
			P2P:     DedupSingleResult,
		},
	}

	observer := &recordingObserver{}
	pipeline := NewPipeline(
		&fakeFetcher{streams: fetched},
		ContextConfig{
			SeaDex: &fakeSeaDex{listing: &seadex.Listing{
				BestHashes: seadex.Set{"bbbb": {}},
				AllHashes:  seadex.Set{"bbbb": {}},
			}},
			AnimeDB: &fakeResolver{entry: testAnimeEntry()},
		},
		observer,
	)

	result, err := pipeline.Process(context.Background(), ids.MediaTypeSeries, "tt22248376:1:2", userData)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []string{"best", "uhd", "broken"}, streamIDs(result.Streams),
		"curated first, duplicate and cam dropped, error entry reattached last")
	assert.Empty(t, result.Message)

	best := result.Streams[0]
	require.NotNil(t, best.SeaDex)
	assert.True(t, best.SeaDex.IsBest)

	assert.Equal(t,
		[]string{"fetch", "seadex", "filter", "precompute", "sort", "deduplicate"},
		observer.seen())
}

func TestPipelineExpressionOrdering(t *testing.T) {
	t.Parallel()

	fetched := []*ParsedStream{
		{ID: "hd", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Resolution: "1080p"}},
		{ID: "uhd", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Resolution: "2160p"}},
	}
	userData := &UserData{
		PreferredStreamExpressions: []string{`resolution == "2160p"`},
		SortCriteria: SortCriteria{Global: []SortCriterion{
			{Key: "streamExpression"},
		}},
	}

	pipeline := NewPipeline(&fakeFetcher{streams: fetched}, ContextConfig{}, nil)
	result, err := pipeline.Process(context.Background(), ids.MediaTypeSeries, "tt0944947:1:2", userData)
	require.NoError(t, err)

	assert.Equal(t, []string{"uhd", "hd"}, streamIDs(result.Streams))
	require.NotNil(t, result.Streams[0].StreamExpressionMatched)
	assert.Zero(t, *result.Streams[0].StreamExpressionMatched)
}

func TestPipelineNoStreams(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(&fakeFetcher{}, ContextConfig{}, nil)
	result, err := pipeline.Process(context.Background(), ids.MediaTypeMovie, "tt0133093", nil)
	require.NoError(t, err)

	assert.Empty(t, result.Streams)
	assert.Equal(t, "No streams found.", result.Message)
}

func TestPipelineFetchFailure(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(&fakeFetcher{err: errors.New("all addons down")}, ContextConfig{}, nil)
	result, err := pipeline.Process(context.Background(), ids.MediaTypeMovie, "tt0133093", nil)
	require.NoError(t, err, "upstream failure degrades to a message, not an error")

	assert.Empty(t, result.Streams)
	assert.Contains(t, result.Message, "all addons down")
}

func TestPipelineContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(&fakeFetcher{err: context.Canceled}, ContextConfig{}, nil)
	_, err := pipeline.Process(ctx, ids.MediaTypeMovie, "tt0133093", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineAllFilteredMessage(t *testing.T) {
	t.Parallel()

	fetched := []*ParsedStream{
		{ID: "cam", Type: StreamTypeP2P, ParsedFile: &ParsedFile{Quality: "CAM"}},
		{ID: "broken", Type: StreamTypeError, Message: "addon timed out"},
	}
	userData := &UserData{ExcludedQualities: []string{"CAM"}}

	pipeline := NewPipeline(&fakeFetcher{streams: fetched}, ContextConfig{}, nil)
	result, err := pipeline.Process(context.Background(), ids.MediaTypeMovie, "tt0133093", userData)
	require.NoError(t, err)

	assert.Equal(t, []string{"broken"}, streamIDs(result.Streams))
	assert.Equal(t, "No streams matched your filters.", result.Message)
}
