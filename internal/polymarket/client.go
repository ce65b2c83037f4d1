// Package polymarket wraps the Polymarket Gamma market API and the data API
// trade feed.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for a Client built with zero options.
const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultCacheTTL = 5 * time.Minute
	DefaultPageSize = 100
	DefaultMaxPages = 5
)

// ErrMarketNotFound is returned when Gamma has no market with the given id.
var ErrMarketNotFound = errors.New("market not found")

// StatusError is a non-2xx response from Gamma.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gamma error: %s returned status %d", e.Path, e.Status)
}

// Options configure a Client.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	PageSize int
	MaxPages int
}

type cacheEntry struct {
	value   any
	fetched time.Time
}

// Client queries the Gamma API. List results are cached per instance for
// CacheTTL; on upstream failure a stale entry is served when one exists.
type Client struct {
	baseURL  string
	http     *http.Client
	ttl      time.Duration
	pageSize int
	maxPages int

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewClient creates a Gamma client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGammaURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     &http.Client{Timeout: opts.Timeout},
		ttl:      opts.CacheTTL,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// cached returns a fresh cache entry, or calls fetch and stores its result.
// A failed fetch falls back to a stale entry when there is one.
func (c *Client) cached(key string, fetch func() (any, error)) (any, error) {
	c.mu.Lock()
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		return entry.value, nil
	}

	value, err := fetch()
	if err != nil {
		if ok {
			log.Warn().Err(err).Str("key", key).Msg("Gamma fetch failed, serving stale cache")
			return entry.value, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{value: value, fetched: c.now()}
	c.mu.Unlock()
	return value, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gamma request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("url", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Gamma request complete")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Path: path, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gamma decode failed: %w", err)
	}
	return nil
}

func (c *Client) fetchMarkets(ctx context.Context, limit, offset int) ([]Market, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var raw []gammaMarket
	if err := c.getJSON(ctx, "/markets", q, &raw); err != nil {
		return nil, err
	}
	markets := make([]Market, 0, len(raw))
	for _, g := range raw {
		markets = append(markets, g.toMarket())
	}
	return markets, nil
}

// ListTrending returns active markets by descending 24h volume.
func (c *Client) ListTrending(ctx context.Context, limit int) ([]Market, error) {
	if limit <= 0 {
		limit = 10
	}
	v, err := c.cached("trending:"+strconv.Itoa(limit), func() (any, error) {
		markets, err := c.fetchMarkets(ctx, limit, 0)
		if err != nil {
			return nil, err
		}
		sortByVolume(markets)
		return markets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Market), nil
}

// AllMarkets pages through active markets up to MaxPages pages. The result
// may be incomplete for large catalogues.
func (c *Client) AllMarkets(ctx context.Context) ([]Market, error) {
	v, err := c.cached("all", func() (any, error) {
		var all []Market
		for page := 0; page < c.maxPages; page++ {
			markets, err := c.fetchMarkets(ctx, c.pageSize, page*c.pageSize)
			if err != nil {
				if page > 0 {
					log.Warn().Err(err).Int("page", page).Msg("Market pagination stopped early")
					break
				}
				return nil, err
			}
			all = append(all, markets...)
			if len(markets) < c.pageSize {
				break
			}
		}
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Market), nil
}

// Search ranks active markets against a free-text query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Market, error) {
	markets, err := c.AllMarkets(ctx)
	if err != nil {
		return nil, err
	}
	return RankMarkets(markets, query, limit), nil
}

// GetMarket fetches a single market, bypassing the cache.
func (c *Client) GetMarket(ctx context.Context, id string) (*Market, error) {
	var raw gammaMarket
	if err := c.getJSON(ctx, "/markets/"+url.PathEscape(id), nil, &raw); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, ErrMarketNotFound
		}
		return nil, err
	}
	m := raw.toMarket()
	return &m, nil
}

// Tags lists Gamma category tags.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	v, err := c.cached("tags", func() (any, error) {
		var tags []Tag
		if err := c.getJSON(ctx, "/tags", nil, &tags); err != nil {
			return nil, err
		}
		return tags, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Tag), nil
}

func sortByVolume(markets []Market) {
	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Volume24h > markets[j].Volume24h
	})
}

// Score rates how well a market matches the query. Zero means no textual
// match. Phrase match in the question is worth 100, each query word found
// 20, a slug match 10, plus log10(volume24h+1).
func Score(m *Market, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	question := strings.ToLower(m.Question)
	slug := strings.ToLower(m.Slug)

	var text float64
	if strings.Contains(question, q) {
		text += 100
	}
	for _, w := range strings.Fields(q) {
		if strings.Contains(question, w) {
			text += 20
		}
	}
	if strings.Contains(slug, strings.ReplaceAll(q, " ", "-")) {
		text += 10
	}
	if text == 0 {
		return 0
	}
	return text + math.Log10(math.Max(m.Volume24h, 0)+1)
}

// RankMarkets returns up to limit markets with a textual match, best first.
func RankMarkets(markets []Market, query string, limit int) []Market {
	type scored struct {
		m     Market
		score float64
	}
	var hits []scored
	for i := range markets {
		if s := Score(&markets[i], query); s > 0 {
			hits = append(hits, scored{m: markets[i], score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Market, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}
