// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package animedb

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary/tributary/internal/ids"
)

type corpusServer struct {
	mu      sync.Mutex
	etag    string
	payload []byte
	heads   int
	gets    int
}

func (s *corpusServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		w.Header().Set("ETag", s.etag)
		switch r.Method {
		case http.MethodHead:
			s.heads++
		case http.MethodGet:
			s.gets++
			w.Write(s.payload)
		}
	}
}

func (s *corpusServer) counts() (heads, gets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heads, s.gets
}

func (s *corpusServer) serve(etag string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.etag = etag
	s.payload = payload
}

func newRefreshTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(Config{
		DataDir:         t.TempDir(),
		DetailLevel:     DetailRequired,
		EpisodeTieBreak: true,
	})
	require.NoError(t, err)
	return db
}

func mappingsTestSource(url string) *source {
	return &source{
		name:     SourceNameMappings,
		url:      url,
		filename: "anime-list-full.json",
		interval: time.Hour,
		parse: func(c *corpora, r io.Reader) error {
			mappings, err := loadMappings(r)
			if err != nil {
				return err
			}
			c.mappings = mappings
			return nil
		},
	}
}

func TestRefreshDownloadsAndLoads(t *testing.T) {
	t.Parallel()

	server := &corpusServer{}
	server.serve("v1", []byte(`[{"mal_id": 1, "type": "TV"}]`))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)

	require.NoError(t, db.refreshSource(context.Background(), src))

	_, gets := server.counts()
	assert.Equal(t, 1, gets)

	dataPath := db.dataPath(src.filename)
	assert.True(t, fileExists(dataPath))
	assert.Equal(t, "v1", readTag(dataPath+".etag"))

	entry := db.GetEntryByID(ids.SourceMAL, "1", intp(1), nil)
	require.NotNil(t, entry)
}

func TestRefreshUnchangedETagSkipsDownload(t *testing.T) {
	t.Parallel()

	server := &corpusServer{}
	server.serve("v1", []byte(`[{"mal_id": 1, "type": "TV"}]`))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)

	require.NoError(t, db.refreshSource(context.Background(), src))
	require.NoError(t, db.refreshSource(context.Background(), src))

	heads, gets := server.counts()
	assert.Equal(t, 2, heads)
	assert.Equal(t, 1, gets, "unchanged corpus must not be re-downloaded")
}

func TestRefreshChangedETagRedownloads(t *testing.T) {
	t.Parallel()

	server := &corpusServer{}
	server.serve("v1", []byte(`[{"mal_id": 1, "type": "TV"}]`))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)

	require.NoError(t, db.refreshSource(context.Background(), src))

	server.serve("v2", []byte(`[{"mal_id": 2, "type": "TV"}]`))
	require.NoError(t, db.refreshSource(context.Background(), src))

	_, gets := server.counts()
	assert.Equal(t, 2, gets)
	assert.Equal(t, "v2", readTag(db.dataPath(src.filename)+".etag"))

	assert.Nil(t, db.GetEntryByID(ids.SourceMAL, "1", intp(1), nil))
	assert.NotNil(t, db.GetEntryByID(ids.SourceMAL, "2", intp(1), nil))
}

func TestRefreshColdStartLoadsLocalFileWithoutDownload(t *testing.T) {
	t.Parallel()

	server := &corpusServer{}
	server.serve("v1", []byte(`[{"mal_id": 1, "type": "TV"}]`))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)
	require.NoError(t, db.refreshSource(context.Background(), src))

	// A restart: fresh database over the same data directory.
	restarted, err := New(Config{
		DataDir:         db.cfg.DataDir,
		DetailLevel:     DetailRequired,
		EpisodeTieBreak: true,
	})
	require.NoError(t, err)

	_, getsBefore := server.counts()
	require.NoError(t, restarted.refreshSource(context.Background(), src))
	_, getsAfter := server.counts()

	assert.Equal(t, getsBefore, getsAfter, "warm file with matching etag must load from disk")
	assert.NotNil(t, restarted.GetEntryByID(ids.SourceMAL, "1", intp(1), nil))
}

func TestRefreshCorruptLocalFileForcesRefetch(t *testing.T) {
	t.Parallel()

	server := &corpusServer{}
	server.serve("v1", []byte(`[{"mal_id": 1, "type": "TV"}]`))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)

	dataPath := db.dataPath(src.filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(dataPath), 0o755))
	require.NoError(t, os.WriteFile(dataPath, []byte(`{corrupt`), 0o644))
	require.NoError(t, os.WriteFile(dataPath+".etag", []byte("v1"), 0o644))

	// The cache-hit pass fails to parse and drops the local copy.
	err := db.refreshOnce(context.Background(), src)
	require.Error(t, err)
	assert.False(t, fileExists(dataPath))
	assert.Empty(t, readTag(dataPath+".etag"))

	// The next pass refetches from the remote.
	require.NoError(t, db.refreshOnce(context.Background(), src))
	_, gets := server.counts()
	assert.Equal(t, 1, gets)
	assert.NotNil(t, db.GetEntryByID(ids.SourceMAL, "1", intp(1), nil))
}

func TestRefreshFreshDownloadParseFailureKeepsFile(t *testing.T) {
	t.Parallel()

	server := &corpusServer{}
	server.serve("v1", []byte(`{"wrong": "shape"}`))
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)

	err := db.refreshOnce(context.Background(), src)
	require.Error(t, err)

	// A freshly downloaded payload is not deleted; only stale local copies
	// are dropped to force a refetch.
	assert.True(t, fileExists(db.dataPath(src.filename)))
}

func TestRefreshZstdPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(`[{"mal_id": 7, "type": "TV"}]`))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	server := &corpusServer{}
	server.serve("v1", buf.Bytes())
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL + "/anime-list-full.json.zst")

	require.NoError(t, db.refreshOnce(context.Background(), src))
	assert.NotNil(t, db.GetEntryByID(ids.SourceMAL, "7", intp(1), nil))
}

func TestRefreshOnceServerError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	db := newRefreshTestDB(t)
	src := mappingsTestSource(ts.URL)

	err := db.refreshOnce(context.Background(), src)
	require.Error(t, err)
	assert.Nil(t, db.GetEntryByID(ids.SourceMAL, "1", intp(1), nil))
}

func TestDetailLevelNoneSkipsInit(t *testing.T) {
	t.Parallel()

	db, err := New(Config{
		DataDir:     t.TempDir(),
		DetailLevel: DetailNone,
	})
	require.NoError(t, err)

	assert.Empty(t, db.sources)
	require.NoError(t, db.Init(context.Background()))
	assert.Nil(t, db.scheduler)
	assert.Empty(t, db.Stats())
	assert.Nil(t, db.GetEntryByID(ids.SourceMAL, "1", intp(1), nil))
}

func TestNewFailsOnUnwritableDataDir(t *testing.T) {
	t.Parallel()

	// A file where the data dir should go makes MkdirAll fail regardless
	// of the uid the tests run as.
	blocking := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(blocking, []byte("not a directory"), 0o644))

	_, err := New(Config{DataDir: blocking, DetailLevel: DetailRequired})
	require.Error(t, err)
}
