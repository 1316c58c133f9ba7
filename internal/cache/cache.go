// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cache provides the shared key/value store used to memoize upstream
// responses. Values round-trip through JSON so the in-memory and persistent
// backends serve the same callers interchangeably.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store closed")

// Store is the shared cache contract.
type Store interface {
	// Get unmarshals the value stored at key into dest. The boolean is false
	// when the key is absent or expired. dest may be nil to probe existence.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl. A non-positive ttl keeps the entry
	// until it is deleted.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Update replaces the value at key while keeping its remaining TTL. A
	// missing or expired key behaves like Set with the store's default TTL.
	Update(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Keys lists live keys matching pattern. Pattern syntax is path.Match:
	// '*' matches any run of characters, '?' a single character.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// WaitUntilReady blocks until the store can serve reads or ctx ends.
	WaitUntilReady(ctx context.Context) error

	Close() error
}

// maxKeyLength bounds stored key size; longer composite keys are digested.
const maxKeyLength = 200

// Key joins parts into a cache key. Tails that would push the key past a
// sane length are collapsed into an xxhash digest so arbitrarily long
// composites (addon URLs, config blobs) stay bounded.
func Key(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}

	tail := strings.Join(parts, ":")
	if len(prefix)+1+len(tail) <= maxKeyLength {
		return prefix + ":" + tail
	}
	return prefix + ":" + strconv.FormatUint(xxhash.Sum64String(tail), 16)
}

// FetchFunc builds a value for GetOrFetch on cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// GetOrFetch returns the value cached at key or, on miss, builds it with
// fetch, stores it for ttl and returns it. Concurrent callers for the same
// key share a single fetch through the caller-owned singleflight group.
func GetOrFetch[T any](ctx context.Context, store Store, group *singleflight.Group, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var cached T
	if ok, err := store.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	result, err, _ := group.Do(key, func() (any, error) {
		// Re-check under the flight; a concurrent caller may have filled it.
		var again T
		if ok, err := store.Get(ctx, key, &again); err == nil && ok {
			return again, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, key, value, ttl); err != nil {
			return nil, fmt.Errorf("store %s: %w", key, err)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected value type %T for %s", result, key)
	}
	return value, nil
}

func marshalValue(key string, value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return payload, nil
}

func unmarshalValue(key string, payload []byte, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}
