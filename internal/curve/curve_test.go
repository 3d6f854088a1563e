package curve

import (
	"math"
	"testing"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteBuy_LaunchState(t *testing.T) {
	s := DefaultState()

	// k = 30e9 * 1.073e15; new virtual token = k/(30e9+1e9) + 1.
	out, err := s.QuoteBuy(1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(34_612_903_225_806), out)
}

func TestQuoteBuy_ZeroInput(t *testing.T) {
	s := DefaultState()
	out, err := s.QuoteBuy(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), out)
}

func TestQuoteBuy_CompleteCurve(t *testing.T) {
	s := DefaultState()
	s.Complete = true

	_, err := s.QuoteBuy(1_000_000_000)
	assert.ErrorIs(t, err, ErrCurveComplete)

	_, err = s.QuoteBuy(0)
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestQuoteBuy_ClampedToRealReserves(t *testing.T) {
	s := DefaultState()
	s.RealTokenReserves = 1_000

	out, err := s.QuoteBuy(50_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), out)
}

func TestQuoteBuy_MonotonicAndBounded(t *testing.T) {
	s := DefaultState()

	prev := uint64(0)
	for _, lamports := range []uint64{1, 1_000, 1_000_000, 1_000_000_000, 100_000_000_000, math.MaxUint64} {
		out, err := s.QuoteBuy(lamports)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out, prev, "quote must be monotonic in spend")
		assert.LessOrEqual(t, out, s.RealTokenReserves)
		prev = out
	}
}

func TestQuoteSellPrice(t *testing.T) {
	s := State{
		VirtualTokenReserves: 1_000,
		VirtualSolReserves:   30,
		RealTokenReserves:    1_000,
	}

	// Proportional quote 500*30/1500 = 10, fee floors to zero.
	out, err := s.QuoteSellPrice(500, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), out)
}

func TestQuoteSellPrice_FeeApplied(t *testing.T) {
	s := DefaultState()

	gross, err := s.QuoteSellPrice(1_000_000_000_000, 0)
	require.NoError(t, err)

	higherFee, err := s.QuoteSellPrice(1_000_000_000_000, 500)
	require.NoError(t, err)
	assert.Less(t, higherFee, gross, "larger fee must reduce the quote")
	assert.Less(t, gross, s.VirtualSolReserves)
}

func TestQuoteSellPrice_CompleteCurve(t *testing.T) {
	s := DefaultState()
	s.Complete = true
	_, err := s.QuoteSellPrice(1, 0)
	assert.ErrorIs(t, err, ErrCurveComplete)
}

func TestDecodeState_RoundTrip(t *testing.T) {
	raw := rawAccount{
		Discriminator:        accountDiscriminator,
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		RealSolReserves:      12,
		TokenTotalSupply:     1_000_000_000_000_000,
		Complete:             true,
	}
	data, err := borsh.Serialize(raw)
	require.NoError(t, err)

	s, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, raw.VirtualSolReserves, s.VirtualSolReserves)
	assert.Equal(t, raw.RealSolReserves, s.RealSolReserves)
	assert.True(t, s.Complete)
}

func TestDecodeState_Truncated(t *testing.T) {
	_, err := DecodeState([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeState_WrongDiscriminator(t *testing.T) {
	raw := rawAccount{Discriminator: 42}
	data, err := borsh.Serialize(raw)
	require.NoError(t, err)

	_, err = DecodeState(data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "discriminator")
}

func TestPriceImpact_Buy(t *testing.T) {
	impact := PriceImpact(30_000_000_000, 1_073_000_000_000_000, 1_000_000_000, 34_612_903_225_806, true, 1_000_000_000)

	assert.Greater(t, impact.PriceAfter, impact.PriceBefore)
	assert.Greater(t, impact.ImpactPct, 0.0)
	assert.Greater(t, impact.McapAfter, impact.McapBefore)
}

func TestPriceImpact_Sell(t *testing.T) {
	impact := PriceImpact(31_000_000_000, 1_038_000_000_000_000, 1_000_000_000, 34_612_903_225_806, false, 1_000_000_000)

	assert.Less(t, impact.PriceAfter, impact.PriceBefore)
	assert.Less(t, impact.ImpactPct, 0.0)
}
