// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/ids"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusCreated, map[string]string{"hello": "world"})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hello":"world"}`, rec.Body.String())
}

func TestRespondJSONNilBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusNoContent, nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "nothing here")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"nothing here"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"tributary"}`))
		rec := httptest.NewRecorder()

		var dest payload
		require.True(t, DecodeJSON(rec, req, &dest))
		assert.Equal(t, "tributary", dest.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		rec := httptest.NewRecorder()

		var dest payload
		require.False(t, DecodeJSON(rec, req, &dest))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty body fails", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()

		var dest payload
		require.False(t, DecodeJSON(rec, req, &dest))
	})
}

func TestDecodeJSONOptional(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	t.Run("empty body succeeds", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()

		var dest payload
		require.True(t, DecodeJSONOptional(rec, req, &dest))
		assert.Empty(t, dest.Name)
	})

	t.Run("malformed body still fails", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[`))
		rec := httptest.NewRecorder()

		var dest payload
		require.False(t, DecodeJSONOptional(rec, req, &dest))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func requestWithParam(name, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(name, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestParseStringParam(t *testing.T) {
	t.Parallel()

	t.Run("present", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		value, ok := ParseStringParam(rec, requestWithParam("id", "  tt0133093  "), "id", "stream id")
		require.True(t, ok)
		assert.Equal(t, "tt0133093", value)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		_, ok := ParseStringParam(rec, requestWithParam("other", "x"), "id", "stream id")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "stream id is required")
	})
}

func TestParseMediaType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    string
		want     ids.MediaType
		wantOK   bool
		wantCode int
	}{
		{name: "movie", value: "movie", want: ids.MediaTypeMovie, wantOK: true},
		{name: "series", value: "series", want: ids.MediaTypeSeries, wantOK: true},
		{name: "anime", value: "anime", want: ids.MediaTypeAnime, wantOK: true},
		{name: "unsupported", value: "music", wantOK: false, wantCode: http.StatusBadRequest},
		{name: "empty", value: "", wantOK: false, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			got, ok := ParseMediaType(rec, requestWithParam("mediaType", tt.value))
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			} else {
				assert.Equal(t, tt.wantCode, rec.Code)
			}
		})
	}
}

func TestParseOptionalIntQuery(t *testing.T) {
	t.Parallel()

	t.Run("missing yields nil", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		value, ok := ParseOptionalIntQuery(rec, req, "season")
		require.True(t, ok)
		assert.Nil(t, value)
	})

	t.Run("present", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/?season=3", nil)

		value, ok := ParseOptionalIntQuery(rec, req, "season")
		require.True(t, ok)
		require.NotNil(t, value)
		assert.Equal(t, 3, *value)
	})

	t.Run("zero is valid", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/?season=0", nil)

		value, ok := ParseOptionalIntQuery(rec, req, "season")
		require.True(t, ok)
		require.NotNil(t, value)
		assert.Equal(t, 0, *value, "season 0 addresses specials")
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/?season=three", nil)

		_, ok := ParseOptionalIntQuery(rec, req, "season")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid season")
	})

	t.Run("negative", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/?episode=-2", nil)

		_, ok := ParseOptionalIntQuery(rec, req, "episode")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
