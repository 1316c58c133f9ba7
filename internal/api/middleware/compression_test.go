// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func largeJSONHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

func TestSelectiveCompress_Gzip(t *testing.T) {
	t.Parallel()

	body := `{"streams":[` + strings.Repeat(`{"name":"Tributary 1080p"},`, 200) + `{}]}`
	handler := SelectiveCompress(1024, 5, true, true)(largeJSONHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie/tt0111161.json", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))
}

func TestSelectiveCompress_Zstd(t *testing.T) {
	t.Parallel()

	body := strings.Repeat(`{"title":"a"},`, 500)
	handler := SelectiveCompress(1024, 5, true, true)(largeJSONHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "zstd", rec.Header().Get("Content-Encoding"))

	zr, err := zstd.NewReader(rec.Body)
	require.NoError(t, err)
	defer zr.Close()
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))
}

func TestSelectiveCompress_Brotli(t *testing.T) {
	t.Parallel()

	body := strings.Repeat(`{"title":"a"},`, 500)
	handler := SelectiveCompress(1024, 5, false, true)(largeJSONHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "br, gzip")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))

	decoded, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, body, string(decoded))
}

func TestSelectiveCompress_SmallResponseStaysIdentity(t *testing.T) {
	t.Parallel()

	body := `{"streams":[]}`
	handler := SelectiveCompress(1024, 5, true, true)(largeJSONHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, body, rec.Body.String())
}

func TestSelectiveCompress_SkipsBinaryContentTypes(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte{0x89, 0x50, 0x4e, 0x47}, 2048)
	handler := SelectiveCompress(1024, 5, true, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, body, rec.Body.Bytes())
}

func TestSelectiveCompress_NoAcceptEncoding(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("x", 4096)
	handler := SelectiveCompress(1024, 5, true, true)(largeJSONHandler(body))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, body, rec.Body.String())
}

func TestNegotiateAlgorithm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		acceptEncoding string
		preferZstd     bool
		preferBrotli   bool
		expected       CompressionAlgorithm
	}{
		{"empty header", "", true, true, AlgorithmNone},
		{"gzip only", "gzip", true, true, AlgorithmGzip},
		{"zstd wins when preferred", "gzip, zstd", true, true, AlgorithmZstd},
		{"zstd ignored when not preferred", "gzip, zstd", false, false, AlgorithmGzip},
		{"brotli over gzip", "gzip, br", false, true, AlgorithmBrotli},
		{"deflate fallback", "deflate", true, true, AlgorithmDeflate},
		{"wildcard picks strongest", "*", true, true, AlgorithmZstd},
		{"q=0 disables encoding", "gzip;q=0, deflate", true, true, AlgorithmDeflate},
		{"quality values respected", "gzip;q=0.5", true, true, AlgorithmGzip},
		{"unknown encodings ignored", "compress, identity", true, true, AlgorithmNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := negotiateAlgorithm(tt.acceptEncoding, tt.preferZstd, tt.preferBrotli)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseAcceptEncoding(t *testing.T) {
	t.Parallel()

	t.Run("quality values", func(t *testing.T) {
		t.Parallel()

		quality := parseAcceptEncoding("gzip;q=0.8, br;q=1.0, zstd")
		assert.InDelta(t, 0.8, quality["gzip"], 0.001)
		assert.InDelta(t, 1.0, quality["br"], 0.001)
		assert.InDelta(t, 1.0, quality["zstd"], 0.001)
	})

	t.Run("malformed quality defaults to 1", func(t *testing.T) {
		t.Parallel()

		quality := parseAcceptEncoding("gzip;q=potato")
		assert.InDelta(t, 1.0, quality["gzip"], 0.001)
	})

	t.Run("wildcard does not override explicit entries", func(t *testing.T) {
		t.Parallel()

		quality := parseAcceptEncoding("gzip;q=0, *")
		assert.Zero(t, quality["gzip"])
		assert.InDelta(t, 1.0, quality["br"], 0.001)
	})
}
