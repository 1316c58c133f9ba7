// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metadata resolves content identifiers to title metadata, release
// dates and episode air dates through the TMDB API.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/tributary/tributary/internal/buildinfo"
	"github.com/tributary/tributary/internal/cache"
	"github.com/tributary/tributary/internal/ids"
	"github.com/tributary/tributary/pkg/httphelpers"
	"github.com/tributary/tributary/pkg/redact"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"

	requestTimeout = 15 * time.Second

	metadataTTL    = 24 * time.Hour
	releaseDateTTL = 12 * time.Hour
	airDateTTL     = 24 * time.Hour
)

var (
	ErrNotConfigured = errors.New("tmdb api key not configured")
	ErrNotFound      = errors.New("tmdb: no results")
)

// Metadata is the resolved title record the stream pipeline consumes.
type Metadata struct {
	TMDBID           int           `json:"tmdbId"`
	Type             ids.MediaType `json:"type"`
	Title            string        `json:"title"`
	Titles           []string      `json:"titles,omitempty"`
	Year             int           `json:"year,omitempty"`
	YearEnd          *int          `json:"yearEnd,omitempty"`
	Genres           []string      `json:"genres,omitempty"`
	Runtime          int           `json:"runtime,omitempty"`
	OriginalLanguage string        `json:"originalLanguage,omitempty"`
	Seasons          []Season      `json:"seasons,omitempty"`
}

// Season is one season's episode count, used for absolute episode math.
type Season struct {
	Number       int `json:"number"`
	EpisodeCount int `json:"episodeCount"`
}

// ReleaseDates carries the earliest per-channel release dates of a movie.
type ReleaseDates struct {
	Theatrical *time.Time `json:"theatrical,omitempty"`
	Digital    *time.Time `json:"digital,omitempty"`
	Physical   *time.Time `json:"physical,omitempty"`
}

type Config struct {
	APIKey string

	// BaseURL overrides the API root. Mostly for tests.
	BaseURL string

	// Store memoizes upstream responses when set.
	Store cache.Store
}

type Client struct {
	baseURL    string
	apiKey     string
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
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
		store:      cfg.Store,
	}
}

// Configured reports whether the client has an API key to work with.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Lookup resolves an identifier to its metadata record. TMDB ids resolve
// directly using the caller's media type; IMDb and TVDB ids go through the
// find endpoint, which also discloses whether the result is a movie or
// a show.
func (c *Client) Lookup(ctx context.Context, src ids.Source, value string, mediaType ids.MediaType) (*Metadata, error) {
	switch src {
	case ids.SourceTMDB:
		id, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("tmdb id %q: %w", value, err)
		}
		if mediaType == ids.MediaTypeMovie {
			return c.movie(ctx, id)
		}
		return c.tv(ctx, id)
	case ids.SourceIMDB, ids.SourceTVDB:
		id, found, err := c.find(ctx, src, value)
		if err != nil {
			return nil, err
		}
		if found == ids.MediaTypeMovie {
			return c.movie(ctx, id)
		}
		return c.tv(ctx, id)
	default:
		return nil, fmt.Errorf("metadata lookup for source %q not supported", src)
	}
}

// MovieReleaseDates returns the earliest theatrical, digital and physical
// release dates across all regions.
func (c *Client) MovieReleaseDates(ctx context.Context, tmdbID int) (*ReleaseDates, error) {
	key := cache.Key("tmdb:releases", strconv.Itoa(tmdbID))
	return fetchCached(ctx, c, key, releaseDateTTL, func(ctx context.Context) (*ReleaseDates, error) {
		var resp releaseDatesResponse
		endpoint := fmt.Sprintf("movie/%d/release_dates", tmdbID)
		if err := c.request(ctx, endpoint, nil, &resp); err != nil {
			return nil, err
		}

		out := &ReleaseDates{}
		for _, region := range resp.Results {
			for _, rd := range region.ReleaseDates {
				when, err := time.Parse(time.RFC3339, rd.ReleaseDate)
				if err != nil {
					continue
				}
				switch rd.Type {
				case releaseTypePremiere, releaseTypeTheatricalLimited, releaseTypeTheatrical:
					out.Theatrical = earliest(out.Theatrical, when)
				case releaseTypeDigital:
					out.Digital = earliest(out.Digital, when)
				case releaseTypePhysical:
					out.Physical = earliest(out.Physical, when)
				}
			}
		}
		return out, nil
	})
}

// EpisodeAirDate returns the air date of one episode, or nil when TMDB does
// not know it.
func (c *Client) EpisodeAirDate(ctx context.Context, tmdbID, season, episode int) (*time.Time, error) {
	key := cache.Key("tmdb:airdate", strconv.Itoa(tmdbID), strconv.Itoa(season), strconv.Itoa(episode))
	rec, err := fetchCached(ctx, c, key, airDateTTL, func(ctx context.Context) (*airDateRecord, error) {
		var resp episodeResponse
		endpoint := fmt.Sprintf("tv/%d/season/%d/episode/%d", tmdbID, season, episode)
		if err := c.request(ctx, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		return &airDateRecord{AirDate: resp.AirDate}, nil
	})
	if err != nil {
		return nil, err
	}
	if rec.AirDate == "" {
		return nil, nil
	}
	when, err := time.Parse("2006-01-02", rec.AirDate)
	if err != nil {
		return nil, fmt.Errorf("parse air date %q: %w", rec.AirDate, err)
	}
	return &when, nil
}

type airDateRecord struct {
	AirDate string `json:"airDate"`
}

func (c *Client) find(ctx context.Context, src ids.Source, value string) (int, ids.MediaType, error) {
	externalSource := "imdb_id"
	if src == ids.SourceTVDB {
		externalSource = "tvdb_id"
	}

	key := cache.Key("tmdb:find", string(src), value)
	rec, err := fetchCached(ctx, c, key, metadataTTL, func(ctx context.Context) (*findRecord, error) {
		var resp findResponse
		params := url.Values{"external_source": []string{externalSource}}
		if err := c.request(ctx, "find/"+url.PathEscape(value), params, &resp); err != nil {
			return nil, err
		}
		switch {
		case len(resp.MovieResults) > 0:
			return &findRecord{ID: resp.MovieResults[0].ID, Type: ids.MediaTypeMovie}, nil
		case len(resp.TVResults) > 0:
			return &findRecord{ID: resp.TVResults[0].ID, Type: ids.MediaTypeSeries}, nil
		default:
			return nil, fmt.Errorf("%w for %s id %s", ErrNotFound, src, value)
		}
	})
	if err != nil {
		return 0, "", err
	}
	return rec.ID, rec.Type, nil
}

type findRecord struct {
	ID   int           `json:"id"`
	Type ids.MediaType `json:"type"`
}

func (c *Client) movie(ctx context.Context, id int) (*Metadata, error) {
	key := cache.Key("tmdb:movie", strconv.Itoa(id))
	return fetchCached(ctx, c, key, metadataTTL, func(ctx context.Context) (*Metadata, error) {
		var resp movieResponse
		params := url.Values{"append_to_response": []string{"alternative_titles"}}
		if err := c.request(ctx, "movie/"+strconv.Itoa(id), params, &resp); err != nil {
			return nil, err
		}

		return &Metadata{
			TMDBID:           resp.ID,
			Type:             ids.MediaTypeMovie,
			Title:            resp.Title,
			Titles:           collectTitles(resp.Title, resp.OriginalTitle, resp.AlternativeTitles.Titles),
			Year:             yearOf(resp.ReleaseDate),
			Genres:           genreNames(resp.Genres),
			Runtime:          resp.Runtime,
			OriginalLanguage: resp.OriginalLanguage,
		}, nil
	})
}

func (c *Client) tv(ctx context.Context, id int) (*Metadata, error) {
	key := cache.Key("tmdb:tv", strconv.Itoa(id))
	return fetchCached(ctx, c, key, metadataTTL, func(ctx context.Context) (*Metadata, error) {
		var resp tvResponse
		params := url.Values{"append_to_response": []string{"alternative_titles"}}
		if err := c.request(ctx, "tv/"+strconv.Itoa(id), params, &resp); err != nil {
			return nil, err
		}

		meta := &Metadata{
			TMDBID:           resp.ID,
			Type:             ids.MediaTypeSeries,
			Title:            resp.Name,
			Titles:           collectTitles(resp.Name, resp.OriginalName, resp.AlternativeTitles.Results),
			Year:             yearOf(resp.FirstAirDate),
			Genres:           genreNames(resp.Genres),
			OriginalLanguage: resp.OriginalLanguage,
		}
		if len(resp.EpisodeRunTime) > 0 {
			meta.Runtime = resp.EpisodeRunTime[0]
		}
		if !resp.InProduction {
			if end := yearOf(resp.LastAirDate); end > 0 {
				meta.YearEnd = &end
			}
		}
		for _, s := range resp.Seasons {
			meta.Seasons = append(meta.Seasons, Season{
				Number:       s.SeasonNumber,
				EpisodeCount: s.EpisodeCount,
			})
		}
		return meta, nil
	})
}

// fetchCached memoizes a fetch through the shared cache with singleflight
// collapsing. Without a store the fetch runs directly.
func fetchCached[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fetch cache.FetchFunc[T]) (T, error) {
	if c.store == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, c.store, &c.group, key, ttl, fetch)
}

func (c *Client) request(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", endpoint, redact.URLError(err))
	}
	defer httphelpers.DrainAndClose(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response from %s: %w", endpoint, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w at %s", ErrNotFound, endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response from %s: %w", endpoint, err)
	}
	return nil
}

type genre struct {
	Name string `json:"name"`
}

type altTitle struct {
	Title string `json:"title"`
}

type findResponse struct {
	MovieResults []struct {
		ID int `json:"id"`
	} `json:"movie_results"`
	TVResults []struct {
		ID int `json:"id"`
	} `json:"tv_results"`
}

type movieResponse struct {
	ID                int     `json:"id"`
	Title             string  `json:"title"`
	OriginalTitle     string  `json:"original_title"`
	ReleaseDate       string  `json:"release_date"`
	Runtime           int     `json:"runtime"`
	OriginalLanguage  string  `json:"original_language"`
	Genres            []genre `json:"genres"`
	AlternativeTitles struct {
		Titles []altTitle `json:"titles"`
	} `json:"alternative_titles"`
}

type tvResponse struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	OriginalName     string  `json:"original_name"`
	FirstAirDate     string  `json:"first_air_date"`
	LastAirDate      string  `json:"last_air_date"`
	InProduction     bool    `json:"in_production"`
	EpisodeRunTime   []int   `json:"episode_run_time"`
	OriginalLanguage string  `json:"original_language"`
	Genres           []genre `json:"genres"`
	Seasons          []struct {
		SeasonNumber int `json:"season_number"`
		EpisodeCount int `json:"episode_count"`
	} `json:"seasons"`
	AlternativeTitles struct {
		Results []altTitle `json:"results"`
	} `json:"alternative_titles"`
}

// TMDB release date type codes.
const (
	releaseTypePremiere          = 1
	releaseTypeTheatricalLimited = 2
	releaseTypeTheatrical        = 3
	releaseTypeDigital           = 4
	releaseTypePhysical          = 5
)

type releaseDatesResponse struct {
	Results []struct {
		ISO31661     string `json:"iso_3166_1"`
		ReleaseDates []struct {
			Type        int    `json:"type"`
			ReleaseDate string `json:"release_date"`
		} `json:"release_dates"`
	} `json:"results"`
}

type episodeResponse struct {
	AirDate string `json:"air_date"`
}

func collectTitles(title, original string, alts []altTitle) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	add(title)
	add(original)
	for _, alt := range alts {
		add(alt.Title)
	}
	return out
}

func genreNames(genres []genre) []string {
	if len(genres) == 0 {
		return nil
	}
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		out = append(out, g.Name)
	}
	return out
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

func earliest(current *time.Time, candidate time.Time) *time.Time {
	if current == nil || candidate.Before(*current) {
		return &candidate
	}
	return current
}
