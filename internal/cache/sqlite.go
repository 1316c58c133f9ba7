// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
)

const (
	sqliteBusyTimeout  = 5 * time.Second
	sqliteSetupTimeout = 5 * time.Second
	sweepInterval      = 5 * time.Minute
)

var sqliteDriverInit sync.Once

func registerCacheConnectionHook() {
	sqliteDriverInit.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			ctx, cancel := context.WithTimeout(context.Background(), sqliteSetupTimeout)
			defer cancel()

			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				fmt.Sprintf("PRAGMA busy_timeout = %d", int(sqliteBusyTimeout/time.Millisecond)),
			}
			for _, pragma := range pragmas {
				if _, err := conn.ExecContext(ctx, pragma, nil); err != nil {
					return fmt.Errorf("connection hook exec %q: %w", pragma, err)
				}
			}
			return nil
		})
	})
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at);
`

// SQLite is the persistent Store used when entries should survive restarts.
// Expired rows are filtered on read and collected by a background sweep.
type SQLite struct {
	db         *sql.DB
	defaultTTL time.Duration

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewSQLite opens (and creates if needed) the cache database at dbPath.
func NewSQLite(dbPath string, defaultTTL time.Duration) (*SQLite, error) {
	if defaultTTL <= 0 {
		defaultTTL = DefaultMemoryTTL
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}

	registerCacheConnectionHook()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database at %s: %w", dbPath, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteSetupTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	s := &SQLite{
		db:         db,
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop()

	log.Debug().Str("path", dbPath).Msg("cache: sqlite store ready")
	return s, nil
}

func (s *SQLite) Get(ctx context.Context, key string, dest any) (bool, error) {
	var (
		payload   []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key).
		Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: read %s: %w", key, err)
	}

	if expiresAt.Valid && expiresAt.Int64 <= time.Now().UnixMilli() {
		// Lazy delete; the sweep would get it eventually.
		_, _ = s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
		return false, nil
	}

	if err := unmarshalValue(key, payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := marshalValue(key, value)
	if err != nil {
		return err
	}

	now := time.Now()
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, payload, expiresAt, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, key string, value any) error {
	payload, err := marshalValue(key, value)
	if err != nil {
		return err
	}

	now := time.Now()

	// Drop an already-expired row first so the upsert below cannot revive it
	// with a deadline in the past.
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		key, now.UnixMilli()); err != nil {
		return fmt.Errorf("cache: update %s: %w", key, err)
	}

	// On conflict expires_at is left untouched, which preserves the
	// remaining TTL. A fresh row gets the default TTL.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, payload, now.Add(s.defaultTTL).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: update %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM cache_entries WHERE expires_at IS NULL OR expires_at > ?",
		time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("cache: list keys: %w", err)
	}
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("cache: list keys: %w", err)
		}
		if ok, _ := path.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: list keys: %w", err)
	}

	sort.Strings(matched)
	return matched, nil
}

func (s *SQLite) WaitUntilReady(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *SQLite) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sqliteSetupTimeout)
			res, err := s.db.ExecContext(ctx,
				"DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= ?",
				time.Now().UnixMilli())
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("cache: sweep failed")
				continue
			}
			if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
				log.Debug().Int64("deleted", deleted).Msg("cache: swept expired entries")
			}
		}
	}
}
