package pool

import (
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curvex-trading/curvex/internal/codec"
	"github.com/curvex-trading/curvex/internal/solana"
)

// Launch-time placeholders used until the first trade reports real reserves.
const (
	freshMarketCap = 4_900
	freshReserves  = 1_073_000_000
)

// CreatorHistory summarizes a creator's prior launches, fetched during
// enrichment. Absent history leaves the filter statistics unevaluable.
type CreatorHistory struct {
	AverageMarketCap    float64 `json:"average_market_cap"`
	TokenCount          int     `json:"token_count"`
	MigrationPercentage float64 `json:"migration_percentage"`
}

// Token is one pooled asset, keyed by its derived pool address.
type Token struct {
	Pool         solana.Pubkey `json:"pool"`
	Mint         solana.Pubkey `json:"mint"`
	BondingCurve solana.Pubkey `json:"bonding_curve"`
	Creator      solana.Pubkey `json:"creator"`

	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
	Image       string `json:"image"`
	MetadataURI string `json:"metadata_uri"`
	Twitter     string `json:"twitter,omitempty"`
	Website     string `json:"website,omitempty"`
	Token2022   bool   `json:"token_2022"`

	CreatedAt time.Time `json:"created_at"`

	MarketCap    uint64 `json:"market_cap"`
	AllTimeHigh  uint64 `json:"all_time_high"`
	Reserves     uint64 `json:"reserves"`
	USDMarketCap uint64 `json:"usd_market_cap"`

	History *CreatorHistory `json:"history,omitempty"`
}

// NewToken builds a fresh asset from a launch event. Metadata and creator
// history are filled in by enrichment afterwards.
func NewToken(ev *codec.CreateEvent) *Token {
	return &Token{
		Pool:         solana.PoolAddress(ev.Mint),
		Mint:         ev.Mint,
		BondingCurve: ev.BondingCurve,
		Creator:      ev.User,
		Name:         ev.Name,
		Ticker:       ev.Symbol,
		MetadataURI:  ev.URI,
		Token2022:    ev.Token2022,
		CreatedAt:    time.Now().UTC(),
		MarketCap:    freshMarketCap,
		AllTimeHigh:  freshMarketCap,
		Reserves:     freshReserves,
	}
}

// ApplyTrade folds a trade into the asset and recomputes the USD market cap
// at the given SOL price. The all-time-high only moves up.
func (t *Token) ApplyTrade(ev *codec.TradeEvent, solPrice float64) {
	t.MarketCap = ev.SolReservesBefore
	t.Reserves = ev.TokenReserves
	t.USDMarketCap = usdMarketCap(t.MarketCap, solPrice, t.Reserves)
	if t.USDMarketCap > t.AllTimeHigh {
		t.AllTimeHigh = t.USDMarketCap
	}
}

// usdMarketCap computes mcap * price * 1e6 / reserves with wide intermediate
// precision, saturating at the uint64 limit.
func usdMarketCap(mcap uint64, solPrice float64, reserves uint64) uint64 {
	if reserves == 0 || solPrice <= 0 {
		return 0
	}
	v := decimal.NewFromBigInt(new(big.Int).SetUint64(mcap), 0).
		Mul(decimal.NewFromFloat(solPrice)).
		Mul(decimal.NewFromInt(1_000_000)).
		Div(decimal.NewFromBigInt(new(big.Int).SetUint64(reserves), 0))

	max := decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
	if v.GreaterThanOrEqual(max) {
		return math.MaxUint64
	}
	if v.IsNegative() {
		return 0
	}
	return v.BigInt().Uint64()
}
