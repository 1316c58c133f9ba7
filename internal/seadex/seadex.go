// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package seadex queries releases.moe, the community database of curated
// anime releases, and condenses each entry into hash and release-group sets
// the stream pipeline tags against.
package seadex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tributary/tributary/internal/buildinfo"
	"github.com/tributary/tributary/internal/cache"
	"github.com/tributary/tributary/pkg/httphelpers"
)

const (
	defaultBaseURL = "https://releases.moe"

	requestTimeout = 10 * time.Second

	listingTTL = 12 * time.Hour

	// Private-tracker torrents carry this placeholder instead of a hash.
	redactedHash = "<redacted>"
)

// Set is a string set that serializes as a sorted JSON array, keeping cached
// payloads stable across runs.
type Set map[string]struct{}

func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s Set) add(v string) { s[v] = struct{}{} }

func (s Set) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return json.Marshal(keys)
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	out := make(Set, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	*s = out
	return nil
}

// Listing is the curated release picture for one AniList id. Hashes are
// lowercase hex info-hashes, groups are lowercase release-group names.
type Listing struct {
	BestHashes Set `json:"bestHashes"`
	AllHashes  Set `json:"allHashes"`
	BestGroups Set `json:"bestGroups"`
	AllGroups  Set `json:"allGroups"`
}

func newListing() *Listing {
	return &Listing{
		BestHashes: make(Set),
		AllHashes:  make(Set),
		BestGroups: make(Set),
		AllGroups:  make(Set),
	}
}

// Empty reports whether the listing names no release at all, which is how a
// title absent from the database comes back.
func (l *Listing) Empty() bool {
	return l == nil || (len(l.AllHashes) == 0 && len(l.AllGroups) == 0)
}

type Config struct {
	// BaseURL overrides the API root. Mostly for tests.
	BaseURL string

	// Store memoizes listings when set.
	Store cache.Store
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	store      cache.Store
	group      singleflight.Group
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		store:      cfg.Store,
	}
}

// Lookup fetches the curated listing for one AniList id. A title the
// database does not know yields an empty listing, not an error.
func (c *Client) Lookup(ctx context.Context, anilistID int) (*Listing, error) {
	if anilistID <= 0 {
		return nil, fmt.Errorf("seadex: anilist id %d out of range", anilistID)
	}

	key := cache.Key("seadex", strconv.Itoa(anilistID))
	return c.cached(ctx, key, func(ctx context.Context) (*Listing, error) {
		params := url.Values{
			"page":      []string{"1"},
			"perPage":   []string{"1"},
			"skipTotal": []string{"1"},
			"filter":    []string{fmt.Sprintf("alID=%d", anilistID)},
			"expand":    []string{"trs"},
		}
		var resp recordsResponse
		if err := c.request(ctx, "api/collections/entries/records", params, &resp); err != nil {
			return nil, err
		}

		listing := newListing()
		for _, item := range resp.Items {
			for _, tr := range item.Expand.Torrents {
				hash := strings.ToLower(strings.TrimSpace(tr.InfoHash))
				if hash != "" && hash != redactedHash {
					listing.AllHashes.add(hash)
					if tr.IsBest {
						listing.BestHashes.add(hash)
					}
				}
				// Groups are kept even for redacted hashes; they are the
				// only handle on private releases.
				group := strings.ToLower(strings.TrimSpace(tr.ReleaseGroup))
				if group != "" {
					listing.AllGroups.add(group)
					if tr.IsBest {
						listing.BestGroups.add(group)
					}
				}
			}
		}
		return listing, nil
	})
}

func (c *Client) cached(ctx context.Context, key string, fetch cache.FetchFunc[*Listing]) (*Listing, error) {
	if c.store == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, c.store, &c.group, key, listingTTL, fetch)
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", endpoint, err)
	}
	defer httphelpers.DrainAndClose(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("seadex request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response from %s: %w", endpoint, err)
	}
	return nil
}

type recordsResponse struct {
	Items []struct {
		Expand struct {
			Torrents []torrentRecord `json:"trs"`
		} `json:"expand"`
	} `json:"items"`
}

type torrentRecord struct {
	InfoHash     string `json:"infoHash"`
	ReleaseGroup string `json:"releaseGroup"`
	IsBest       bool   `json:"isBest"`
}
