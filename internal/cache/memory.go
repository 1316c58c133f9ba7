// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

// DefaultMemoryTTL applies when callers pass a non-positive default.
const DefaultMemoryTTL = 15 * time.Minute

type memoryEntry struct {
	payload  []byte
	deadline time.Time // zero means no expiry
}

// Memory is the in-process Store. Entries live in a TTL cache; deadlines are
// carried alongside each payload so Update can preserve remaining TTL and
// Keys can filter entries the reaper has not collected yet.
type Memory struct {
	defaultTTL time.Duration
	cache      *ttlcache.Cache[string, memoryEntry]

	mu        sync.Mutex
	deadlines map[string]time.Time

	closed atomic.Bool
}

// NewMemory returns a ready Memory store with the given default TTL.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = DefaultMemoryTTL
	}

	return &Memory{
		defaultTTL: defaultTTL,
		cache: ttlcache.New(ttlcache.Options[string, memoryEntry]{}.
			SetDefaultTTL(defaultTTL)),
		deadlines: make(map[string]time.Time),
	}
}

func (m *Memory) Get(ctx context.Context, key string, dest any) (bool, error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	entry, ok := m.cache.Get(key)
	if !ok {
		m.forget(key)
		return false, nil
	}
	if expired(entry.deadline, time.Now()) {
		m.cache.Delete(key)
		m.forget(key)
		return false, nil
	}
	if err := unmarshalValue(key, entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}

	payload, err := marshalValue(key, value)
	if err != nil {
		return err
	}
	return m.store(key, payload, ttl)
}

func (m *Memory) Update(ctx context.Context, key string, value any) error {
	if m.closed.Load() {
		return ErrClosed
	}

	payload, err := marshalValue(key, value)
	if err != nil {
		return err
	}

	existing, ok := m.cache.Get(key)
	if !ok || expired(existing.deadline, time.Now()) {
		return m.store(key, payload, m.defaultTTL)
	}

	remaining := ttlcache.NoTTL
	if !existing.deadline.IsZero() {
		remaining = time.Until(existing.deadline)
	}
	m.cache.Set(key, memoryEntry{payload: payload, deadline: existing.deadline}, remaining)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.cache.Delete(key)
	m.forget(key)
	return nil
}

func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	// Validate the pattern up front so a bad one fails loudly instead of
	// silently matching nothing.
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	now := time.Now()

	m.mu.Lock()
	candidates := make([]string, 0, len(m.deadlines))
	for key, deadline := range m.deadlines {
		if expired(deadline, now) {
			delete(m.deadlines, key)
			continue
		}
		candidates = append(candidates, key)
	}
	m.mu.Unlock()

	matched := make([]string, 0, len(candidates))
	for _, key := range candidates {
		if _, ok := m.cache.Get(key); !ok {
			m.forget(key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	return matched, nil
}

func (m *Memory) WaitUntilReady(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	m.cache.Close()

	m.mu.Lock()
	m.deadlines = make(map[string]time.Time)
	m.mu.Unlock()
	return nil
}

func (m *Memory) store(key string, payload []byte, ttl time.Duration) error {
	entry := memoryEntry{payload: payload}
	cacheTTL := ttlcache.NoTTL
	if ttl > 0 {
		entry.deadline = time.Now().Add(ttl)
		cacheTTL = ttl
	}
	m.cache.Set(key, entry, cacheTTL)

	m.mu.Lock()
	m.deadlines[key] = entry.deadline
	m.mu.Unlock()
	return nil
}

func (m *Memory) forget(key string) {
	m.mu.Lock()
	delete(m.deadlines, key)
	m.mu.Unlock()
}

func expired(deadline time.Time, now time.Time) bool {
	return !deadline.IsZero() && now.After(deadline)
}
