package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Relay Client — transaction submission through a block-engine relay
// ---------------------------------------------------------------------------

const relayMainnetURL = "https://mainnet.block-engine.jito.wtf/api/v1/transactions"

// RelayConfig configures the relay submission client.
type RelayConfig struct {
	Endpoint  string          `yaml:"endpoint"`
	TipSOL    decimal.Decimal `yaml:"tip_sol"` // tip carried by each relayed tx
	TimeoutMs int             `yaml:"timeout_ms"`
}

// DefaultRelayConfig returns production defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Endpoint:  relayMainnetURL,
		TipSOL:    decimal.NewFromFloat(0.001),
		TimeoutMs: 5000,
	}
}

// RelayClient posts signed transactions to a fixed relay endpoint. The relay
// response body is opaque and is logged verbatim; callers only learn
// success or failure.
type RelayClient struct {
	config     RelayConfig
	httpClient *http.Client

	// Stats.
	txSent      atomic.Int64
	txFailed    atomic.Int64
	totalTipLam atomic.Int64
}

// NewRelayClient creates a relay submission client.
func NewRelayClient(config RelayConfig) *RelayClient {
	if config.Endpoint == "" {
		config.Endpoint = relayMainnetURL
	}
	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RelayClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send submits one base64-encoded signed transaction with preflight skipped.
func (c *RelayClient) Send(ctx context.Context, txBase64 string) error {
	if txBase64 == "" {
		return fmt.Errorf("relay: empty transaction")
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendTransaction",
		Params: []any{
			txBase64,
			map[string]any{"encoding": "base64", "skipPreflight": true},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("relay: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.txFailed.Add(1)
		return fmt.Errorf("relay: HTTP error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.txFailed.Add(1)
		return fmt.Errorf("relay: read response: %w", err)
	}

	// The relay's body is not parsed for submission outcome, only logged.
	log.Info().
		Int("status", resp.StatusCode).
		Str("response", string(respBody)).
		Msg("relay: response")

	if resp.StatusCode != 200 {
		c.txFailed.Add(1)
		return fmt.Errorf("relay: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	c.txSent.Add(1)
	c.totalTipLam.Add(c.config.TipSOL.Mul(decimal.NewFromInt(1_000_000_000)).IntPart())
	return nil
}

// RelayStats returns relay client statistics.
type RelayStats struct {
	TxSent      int64  `json:"tx_sent"`
	TxFailed    int64  `json:"tx_failed"`
	TotalTipSOL string `json:"total_tip_sol"`
}

func (c *RelayClient) Stats() RelayStats {
	tip := decimal.NewFromInt(c.totalTipLam.Load()).Div(decimal.NewFromInt(1_000_000_000))
	return RelayStats{
		TxSent:      c.txSent.Load(),
		TxFailed:    c.txFailed.Load(),
		TotalTipSOL: tip.String(),
	}
}
