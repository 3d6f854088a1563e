package curve

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/near/borsh-go"
)

// ---------------------------------------------------------------------------
// Bonding Curve Model — constant-product pricing for pre-migration tokens
// ---------------------------------------------------------------------------

// ErrCurveComplete is returned for any quote against a completed curve.
// A completed curve has migrated and no longer prices trades.
var ErrCurveComplete = errors.New("curve: complete")

// accountDiscriminator tags on-chain bonding-curve account data.
const accountDiscriminator uint64 = 6966180631402821399

// DefaultFeeBps is the protocol sell fee applied when none is configured.
const DefaultFeeBps = 100

// State is the reserve state of one bonding curve.
type State struct {
	VirtualTokenReserves uint64 `json:"virtual_token_reserves"`
	VirtualSolReserves   uint64 `json:"virtual_sol_reserves"`
	RealTokenReserves    uint64 `json:"real_token_reserves"`
	RealSolReserves      uint64 `json:"real_sol_reserves"`
	TokenTotalSupply     uint64 `json:"token_total_supply"`
	Complete             bool   `json:"complete"`
}

// DefaultState returns the launch-time reserve state every curve starts with.
func DefaultState() State {
	return State{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		RealSolReserves:      0,
		TokenTotalSupply:     1_000_000_000_000_000,
		Complete:             false,
	}
}

// rawAccount mirrors the on-chain account layout.
type rawAccount struct {
	Discriminator        uint64
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// DecodeState parses bonding-curve account data.
func DecodeState(data []byte) (State, error) {
	if len(data) < 49 {
		return State{}, fmt.Errorf("curve: account data too short: %d bytes", len(data))
	}
	var raw rawAccount
	if err := borsh.Deserialize(&raw, data); err != nil {
		return State{}, fmt.Errorf("curve: decode account: %w", err)
	}
	if raw.Discriminator != accountDiscriminator {
		return State{}, fmt.Errorf("curve: unexpected account discriminator %d", raw.Discriminator)
	}
	return State{
		VirtualTokenReserves: raw.VirtualTokenReserves,
		VirtualSolReserves:   raw.VirtualSolReserves,
		RealTokenReserves:    raw.RealTokenReserves,
		RealSolReserves:      raw.RealSolReserves,
		TokenTotalSupply:     raw.TokenTotalSupply,
		Complete:             raw.Complete,
	}, nil
}

// QuoteBuy returns the token amount received for lamports spent, using the
// constant-product invariant. All intermediate arithmetic is 128-bit wide;
// the result is clamped to the real token reserves.
func (s State) QuoteBuy(lamports uint64) (uint64, error) {
	if s.Complete {
		return 0, ErrCurveComplete
	}
	if lamports == 0 {
		return 0, nil
	}

	// A spend that would overflow the virtual SOL reserves empties the curve.
	if lamports > math.MaxUint64-s.VirtualSolReserves {
		return s.RealTokenReserves, nil
	}

	// k = vsol * vtoken, 128-bit.
	hi, lo := bits.Mul64(s.VirtualSolReserves, s.VirtualTokenReserves)
	divisor := s.VirtualSolReserves + lamports

	// hi = floor(k / 2^64) < vsol <= divisor, so the quotient fits in 64 bits.
	quot, _ := bits.Div64(hi, lo, divisor)
	newVirtualToken := quot + 1

	if newVirtualToken >= s.VirtualTokenReserves {
		return 0, nil
	}
	out := s.VirtualTokenReserves - newVirtualToken
	if out > s.RealTokenReserves {
		out = s.RealTokenReserves
	}
	return out, nil
}

// QuoteSellPrice returns the lamports received for selling a token amount,
// minus a basis-point fee. feeBps <= 0 applies DefaultFeeBps.
func (s State) QuoteSellPrice(tokens uint64, feeBps int64) (uint64, error) {
	if s.Complete {
		return 0, ErrCurveComplete
	}
	if tokens == 0 {
		return 0, nil
	}
	if feeBps <= 0 {
		feeBps = DefaultFeeBps
	}
	if feeBps > 10_000 {
		feeBps = 10_000
	}

	var gross uint64
	if tokens > math.MaxUint64-s.VirtualTokenReserves {
		// Proportional quote saturates at the SOL reserve limit.
		gross = s.VirtualSolReserves
	} else {
		hi, lo := bits.Mul64(tokens, s.VirtualSolReserves)
		divisor := s.VirtualTokenReserves + tokens
		gross, _ = bits.Div64(hi, lo, divisor)
	}

	feeHi, feeLo := bits.Mul64(gross, uint64(feeBps))
	fee, _ := bits.Div64(feeHi, feeLo, 10_000)
	return gross - fee, nil
}

// ---------------------------------------------------------------------------
// Price impact
// ---------------------------------------------------------------------------

// Impact describes how a trade moved the implied price and market cap.
type Impact struct {
	PriceBefore float64
	PriceAfter  float64
	ImpactPct   float64
	McapBefore  uint64 // lamports
	McapAfter   uint64 // lamports
}

// PriceImpact computes before/after implied prices and market caps for a
// trade against the given virtual reserves.
func PriceImpact(virtualSol, virtualToken, solAmount, tokenAmount uint64, isBuy bool, totalSupply uint64) Impact {
	vSol := float64(virtualSol)
	vToken := float64(virtualToken)

	priceBefore := vSol / vToken

	var newSol, newToken float64
	if isBuy {
		newSol = vSol + float64(solAmount)
		newToken = vToken - float64(tokenAmount)
	} else {
		newSol = vSol - float64(solAmount)
		newToken = vToken + float64(tokenAmount)
	}

	priceAfter := newSol / newToken
	impactPct := (priceAfter - priceBefore) / priceBefore * 100.0

	return Impact{
		PriceBefore: priceBefore,
		PriceAfter:  priceAfter,
		ImpactPct:   impactPct,
		McapBefore:  uint64(priceBefore * 1_000_000.0 * float64(totalSupply)),
		McapAfter:   uint64(priceAfter * 1_000_000.0 * float64(totalSupply)),
	}
}
