package codec

import (
	"github.com/curvex-trading/curvex/internal/solana"
)

// Kind identifies a decoded event variant.
type Kind string

const (
	KindCreate Kind = "create"
	KindBuy    Kind = "buy"
	KindSell   Kind = "sell"
)

// Event is a decoded domain event. Concrete types: *CreateEvent, *TradeEvent.
type Event interface {
	EventKind() Kind
}

// CreateEvent is the canonical shape for a token launch, normalized from
// both the legacy and the extended wire schemas.
type CreateEvent struct {
	Name         string        `json:"name"`
	Symbol       string        `json:"symbol"`
	URI          string        `json:"uri"`
	Mint         solana.Pubkey `json:"mint"`
	BondingCurve solana.Pubkey `json:"bonding_curve"`
	User         solana.Pubkey `json:"user"`
	Timestamp    int64         `json:"timestamp"`
	Token2022    bool          `json:"token_2022"`
}

func (e *CreateEvent) EventKind() Kind { return KindCreate }

// TradeEvent is the canonical shape for a buy or sell, keyed by the asset's
// derived pool address.
type TradeEvent struct {
	Pool        solana.Pubkey `json:"pool"`
	IsBuy       bool          `json:"is_buy"`
	SolAmount   uint64        `json:"sol_amount"`
	TokenAmount uint64        `json:"token_amount"`
	User        solana.Pubkey `json:"user"`
	Timestamp   int64         `json:"timestamp"`

	// Reserve snapshot carried by the wire event plus the implied market cap
	// after the trade, from the price-impact computation.
	SolReservesBefore uint64 `json:"sol_reserves_before"`
	ImpliedMcapAfter  uint64 `json:"implied_mcap_after"`
	TokenReserves     uint64 `json:"token_reserves"`
}

func (e *TradeEvent) EventKind() Kind {
	if e.IsBuy {
		return KindBuy
	}
	return KindSell
}

// ---------------------------------------------------------------------------
// Wire layouts (borsh, field order is the schema)
// ---------------------------------------------------------------------------

type tradeWire struct {
	Mint                 solana.Pubkey
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 solana.Pubkey
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

type createV2Wire struct {
	Name                 string
	Symbol               string
	URI                  string
	Mint                 solana.Pubkey
	BondingCurve         solana.Pubkey
	User                 solana.Pubkey
	Creator              solana.Pubkey
	Timestamp            int64
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	TokenTotalSupply     uint64
	TokenProgram         solana.Pubkey
	MayhemMode           bool
}

type ammTradeWire struct {
	Timestamp              int64
	BaseAmount             uint64 // amount_out on buys, amount_in on sells
	QuoteLimit             uint64 // max_quote_in on buys, min_quote_out on sells
	UserBaseTokenReserves  uint64
	UserQuoteTokenReserves uint64
	PoolBaseTokenReserves  uint64
	PoolQuoteTokenReserves uint64
	QuoteAmount            uint64
	LpFeeBasisPoints       uint64
	LpFee                  uint64
	ProtocolFeeBasisPoints uint64
	ProtocolFee            uint64
	QuoteAmountWithLpFee   uint64
	UserQuoteAmount        uint64
	Pool                   solana.Pubkey
	User                   solana.Pubkey
	UserBaseTokenAccount   solana.Pubkey
	UserQuoteTokenAccount  solana.Pubkey
	ProtocolFeeRecipient   solana.Pubkey
	ProtocolFeeRecipientTA solana.Pubkey
}

// CreateArgs are the borsh arguments of a create instruction, used by the
// entry-stream ingestion path which sees instructions rather than log events.
type CreateArgs struct {
	Name       string
	Symbol     string
	URI        string
	Creator    solana.Pubkey
	MayhemMode bool
}
