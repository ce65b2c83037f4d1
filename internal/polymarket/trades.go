package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDataURL is the Polymarket data API.
const DefaultDataURL = "https://data-api.polymarket.com"

// TradeFeed polls the data API for the latest taker trades.
type TradeFeed struct {
	baseURL string
	client  *http.Client
}

// NewTradeFeed creates a TradeFeed.
func NewTradeFeed(baseURL string, timeout time.Duration) *TradeFeed {
	if baseURL == "" {
		baseURL = DefaultDataURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TradeFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Latest returns the most recent limit trades, newest first.
func (f *TradeFeed) Latest(ctx context.Context, limit int) ([]Trade, error) {
	endpoint := fmt.Sprintf("%s/trades?limit=%s&takerOnly=true", f.baseURL, strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var raw []dataTrade
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	trades := make([]Trade, 0, len(raw))
	for _, r := range raw {
		trades = append(trades, r.toTrade())
	}
	log.Debug().Int("count", len(trades)).Msg("Trades fetched")
	return trades, nil
}
