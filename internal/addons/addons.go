// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package addons fans one stream request out to the configured upstream
// Stremio addons and converts their responses into pipeline streams. An
// addon that fails or times out degrades to a synthetic error entry naming
// it; only a dead request context aborts the whole fetch.
package addons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tributary/tributary/internal/buildinfo"
	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/internal/streams"
	"github.com/tributary/tributary/pkg/httphelpers"
	"github.com/tributary/tributary/pkg/redact"
)

const defaultTimeout = 15 * time.Second

// Addon is one configured upstream. URL points at the addon root and also
// accepts the forms addons are usually shared in: a stremio:// scheme or a
// full manifest.json URL.
type Addon struct {
	Name    string        `json:"name"`
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

func (a Addon) baseURL() string {
	u := strings.TrimSpace(a.URL)
	if rest, ok := strings.CutPrefix(u, "stremio://"); ok {
		u = "https://" + rest
	}
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/manifest.json")
	return strings.TrimSuffix(u, "/")
}

type Config struct {
	Addons []Addon

	// Timeout bounds each addon request unless the addon sets its own.
	Timeout time.Duration
}

// Client implements the pipeline's fetcher against upstream Stremio addons.
type Client struct {
	addons     []Addon
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		addons:     cfg.Addons,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Fetch queries every configured addon in parallel and returns their
// streams in addon order. Failed addons contribute an error entry instead
// of their streams.
func (c *Client) Fetch(ctx context.Context, mediaType ids.MediaType, id string, _ *streams.UserData) ([]*streams.ParsedStream, error) {
	if len(c.addons) == 0 {
		return nil, nil
	}

	results := make([][]*streams.ParsedStream, len(c.addons))
	g, gctx := errgroup.WithContext(ctx)
	for i, addon := range c.addons {
		g.Go(func() error {
			timeout := addon.Timeout
			if timeout <= 0 {
				timeout = c.timeout
			}
			fetchCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			fetched, err := c.fetchOne(fetchCtx, addon, mediaType, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(redact.URLError(err)).Str("addon", addon.Name).Str("id", id).Msg("addons: fetch failed")
				results[i] = []*streams.ParsedStream{errorStream(addon, timeout, err)}
				return nil
			}
			results[i] = fetched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	out := make([]*streams.ParsedStream, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, a Addon, mediaType ids.MediaType, id string) ([]*streams.ParsedStream, error) {
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", a.baseURL(), mediaType, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %w", a.Name, err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s returned %d: %s", a.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload streamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", a.Name, err)
	}

	out := make([]*streams.ParsedStream, 0, len(payload.Streams))
	seen := make(map[string]struct{}, len(payload.Streams))
	for i, raw := range payload.Streams {
		s := convertStream(a.Name, i, raw)
		if s == nil {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// errorStream surfaces a failed addon to the user as a stream entry, so a
// partial result page still says which upstream is missing from it.
func errorStream(a Addon, timeout time.Duration, err error) *streams.ParsedStream {
	msg := fmt.Sprintf("Addon %s failed.", a.Name)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("Addon %s timed out after %s.", a.Name, timeout)
	}
	return &streams.ParsedStream{
		ID:      fmt.Sprintf("%s:error", slug(a.Name)),
		Addon:   a.Name,
		Type:    streams.StreamTypeError,
		Message: msg,
	}
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
