package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/pool"
)

// ---------------------------------------------------------------------------
// Enrichment Client — off-chain metadata and creator-history fetchers
// ---------------------------------------------------------------------------

// Config configures the enrichment client.
type Config struct {
	// HistoryEndpoint is the base URL of the creator-history API.
	HistoryEndpoint string `yaml:"history_endpoint"`
	TimeoutMs       int    `yaml:"timeout_ms"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryEndpoint: "https://frontend-api.pump.fun",
		TimeoutMs:       5000,
	}
}

// Metadata is the off-chain token description fetched from the metadata URI.
type Metadata struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Twitter     string `json:"twitter"`
	Website     string `json:"website"`
}

// createdCoin is one entry of the creator's prior launches.
type createdCoin struct {
	USDMarketCap float64 `json:"usd_market_cap"`
	Complete     bool    `json:"complete"`
}

// Client fetches token metadata and creator launch history over HTTP.
// Callers bound concurrency; the client itself only bounds latency.
type Client struct {
	config Config
	http   *http.Client

	// Stats.
	metadataFetches atomic.Int64
	historyFetches  atomic.Int64
	failures        atomic.Int64
}

// NewClient creates an enrichment client.
func NewClient(config Config) *Client {
	if config.TimeoutMs <= 0 {
		config.TimeoutMs = 5000
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: time.Duration(config.TimeoutMs) * time.Millisecond},
	}
}

// FetchMetadata GETs the token metadata JSON at its URI.
func (c *Client) FetchMetadata(ctx context.Context, uri string) (*Metadata, error) {
	c.metadataFetches.Add(1)

	body, err := c.get(ctx, uri)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("enrich: parse metadata: %w", err)
	}
	return &meta, nil
}

// FetchCreatorHistory fetches the creator's prior launches and reduces them
// to the statistics the filters evaluate. A creator with no prior launches
// yields a zero-count history, not an error.
func (c *Client) FetchCreatorHistory(ctx context.Context, wallet string) (*pool.CreatorHistory, error) {
	c.historyFetches.Add(1)

	endpoint := fmt.Sprintf("%s/coins/user-created-coins/%s?offset=0&limit=100",
		c.config.HistoryEndpoint, url.PathEscape(wallet))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}

	var coins []createdCoin
	if err := json.Unmarshal(body, &coins); err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("enrich: parse creator history: %w", err)
	}

	history := &pool.CreatorHistory{TokenCount: len(coins)}
	if len(coins) == 0 {
		return history, nil
	}

	var totalMcap float64
	var migrated int
	for _, coin := range coins {
		totalMcap += coin.USDMarketCap
		if coin.Complete {
			migrated++
		}
	}
	history.AverageMarketCap = totalMcap / float64(len(coins))
	history.MigrationPercentage = float64(migrated) / float64(len(coins)) * 100.0

	log.Debug().
		Str("creator", wallet).
		Int("tokens", history.TokenCount).
		Float64("avg_mcap", history.AverageMarketCap).
		Float64("migration_pct", history.MigrationPercentage).
		Msg("enrich: creator history fetched")
	return history, nil
}

// FetchSOLPrice returns the current SOL/USD price.
func (c *Client) FetchSOLPrice(ctx context.Context) (float64, error) {
	body, err := c.get(ctx, c.config.HistoryEndpoint+"/sol-price")
	if err != nil {
		c.failures.Add(1)
		return 0, err
	}
	var resp struct {
		SolPrice float64 `json:"solPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.failures.Add(1)
		return 0, fmt.Errorf("enrich: parse sol price: %w", err)
	}
	if resp.SolPrice <= 0 {
		return 0, fmt.Errorf("enrich: non-positive sol price %v", resp.SolPrice)
	}
	return resp.SolPrice, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("enrich: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrich: fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("enrich: fetch %s: HTTP %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("enrich: read response: %w", err)
	}
	return body, nil
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	MetadataFetches int64 `json:"metadata_fetches"`
	HistoryFetches  int64 `json:"history_fetches"`
	Failures        int64 `json:"failures"`
}

func (c *Client) Stats() Stats {
	return Stats{
		MetadataFetches: c.metadataFetches.Load(),
		HistoryFetches:  c.historyFetches.Load(),
		Failures:        c.failures.Load(),
	}
}
