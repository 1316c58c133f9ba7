// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/internal/streams"
)

type fakeProcessor struct {
	result *streams.Result
	err    error

	calls        int
	gotMediaType ids.MediaType
	gotID        string
	gotUserData  *streams.UserData
}

func (f *fakeProcessor) Process(_ context.Context, mediaType ids.MediaType, id string, userData *streams.UserData) (*streams.Result, error) {
	f.calls++
	f.gotMediaType = mediaType
	f.gotID = id
	f.gotUserData = userData

	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &streams.Result{Streams: []*streams.ParsedStream{}}, nil
}

// newStreamsRouter mirrors the server's route layout for both surfaces.
func newStreamsRouter(processor *fakeProcessor) chi.Router {
	h := NewStreamsHandler(processor)

	r := chi.NewRouter()
	r.Get("/stream/{mediaType}/{id}", h.HandleStremioStream)
	r.Route("/u/{userData}", func(r chi.Router) {
		r.Get("/stream/{mediaType}/{id}", h.HandleStremioStream)
	})
	r.Route("/api/v1/streams", h.Routes)
	return r
}

func TestHandleStremioStreamSuccess(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{
		result: &streams.Result{
			Streams: []*streams.ParsedStream{
				{
					Type:     streams.StreamTypeDebrid,
					Filename: "The.Matrix.1999.1080p.mkv",
					URL:      "https://debrid.example/dl/matrix",
					Service:  &streams.StreamService{ID: "realdebrid", ShortName: "RD", Cached: true},
				},
			},
		},
	}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/stream/movie/tt0133093.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp StremioStreamsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Streams, 1)
	assert.Equal(t, "https://debrid.example/dl/matrix", resp.Streams[0].URL)

	assert.Equal(t, ids.MediaTypeMovie, processor.gotMediaType)
	assert.Equal(t, "tt0133093", processor.gotID, "the .json suffix should be trimmed")
	assert.Nil(t, processor.gotUserData)
}

func TestHandleStremioStreamEpisodeID(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/stream/series/tt0903747:1:5.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ids.MediaTypeSeries, processor.gotMediaType)
	assert.Equal(t, "tt0903747:1:5", processor.gotID)
}

func TestHandleStremioStreamUnknownMediaType(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/stream/music/abc.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StremioStreamsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Streams)
	assert.Zero(t, processor.calls)
}

func TestHandleStremioStreamProcessorError(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{err: errors.New("metadata lookup failed")}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/stream/movie/tt0133093.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "Stremio clients get a valid empty list, never an error status")

	var resp StremioStreamsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Streams)
}

func TestHandleStremioStreamWithUserData(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	blob := base64.RawURLEncoding.EncodeToString([]byte(`{"preferredResolutions":["1080p"],"deduplicator":{"enabled":true}}`))

	req := httptest.NewRequest(http.MethodGet, "/u/"+blob+"/stream/movie/tt0133093.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, processor.gotUserData)
	assert.Equal(t, []string{"1080p"}, processor.gotUserData.PreferredResolutions)
	assert.True(t, processor.gotUserData.Deduplicator.Enabled)
}

func TestHandleStremioStreamBadUserData(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/u/!!!not-base64/stream/movie/tt0133093.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid configuration")
	assert.Zero(t, processor.calls)
}

func TestHandleStreamsGet(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{
		result: &streams.Result{
			Streams: []*streams.ParsedStream{
				{ID: "s1", Type: streams.StreamTypeP2P, Addon: "torrentio"},
			},
		},
	}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/movie/tt0133093", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result streams.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Len(t, result.Streams, 1)
	assert.Equal(t, "s1", result.Streams[0].ID)
	assert.Equal(t, "torrentio", result.Streams[0].Addon)

	assert.Nil(t, processor.gotUserData, "GET runs with default settings")
}

func TestHandleStreamsPost(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	body := strings.NewReader(`{"excludedQualities":["CAM"],"sortCriteria":{"global":[{"key":"size"}]}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/streams/series/tt0903747:1:5", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, processor.gotUserData)
	assert.Equal(t, []string{"CAM"}, processor.gotUserData.ExcludedQualities)
	require.Len(t, processor.gotUserData.SortCriteria.Global, 1)
	assert.Equal(t, "size", processor.gotUserData.SortCriteria.Global[0].Key)
}

func TestHandleStreamsPostEmptyBody(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/streams/movie/tt0133093", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, processor.gotUserData, "an empty body still selects explicit defaults")
}

func TestHandleStreamsPostMalformedBody(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/streams/movie/tt0133093", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, processor.calls)
}

func TestHandleStreamsUnsupportedMediaType(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/podcast/whatever", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported media type")
	assert.Zero(t, processor.calls)
}

func TestHandleStreamsProcessorError(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{err: errors.New("all fetchers failed")}
	router := newStreamsRouter(processor)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/movie/tt0133093", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to process stream request")
}

func TestDecodeUserData(t *testing.T) {
	t.Parallel()

	payload := `{"preferredResolutions":["2160p","1080p"],"titleMatching":{"enabled":true,"mode":"exact"}}`

	t.Run("empty means defaults", func(t *testing.T) {
		t.Parallel()

		userData, err := DecodeUserData("")
		require.NoError(t, err)
		assert.Nil(t, userData)
	})

	t.Run("raw url encoding", func(t *testing.T) {
		t.Parallel()

		userData, err := DecodeUserData(base64.RawURLEncoding.EncodeToString([]byte(payload)))
		require.NoError(t, err)
		require.NotNil(t, userData)
		assert.Equal(t, []string{"2160p", "1080p"}, userData.PreferredResolutions)
		assert.True(t, userData.TitleMatching.Enabled)
		assert.Equal(t, "exact", userData.TitleMatching.Mode)
	})

	t.Run("padded url encoding", func(t *testing.T) {
		t.Parallel()

		userData, err := DecodeUserData(base64.URLEncoding.EncodeToString([]byte(payload)))
		require.NoError(t, err)
		require.NotNil(t, userData)
		assert.Equal(t, []string{"2160p", "1080p"}, userData.PreferredResolutions)
	})

	t.Run("standard encoding", func(t *testing.T) {
		t.Parallel()

		userData, err := DecodeUserData(base64.StdEncoding.EncodeToString([]byte(payload)))
		require.NoError(t, err)
		require.NotNil(t, userData)
		assert.Equal(t, []string{"2160p", "1080p"}, userData.PreferredResolutions)
	})

	t.Run("invalid base64", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeUserData("!!!definitely-not-base64!!!")
		require.Error(t, err)
	})

	t.Run("valid base64 invalid json", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeUserData(base64.RawURLEncoding.EncodeToString([]byte("not json at all")))
		require.Error(t, err)
	})
}
