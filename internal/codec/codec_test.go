package codec

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvex-trading/curvex/internal/solana"
)

func encodeEvent(t *testing.T, disc [8]byte, wire interface{}) []byte {
	t.Helper()
	body, err := borsh.Serialize(wire)
	require.NoError(t, err)
	return append(disc[:], body...)
}

func pk(b byte) solana.Pubkey {
	var p solana.Pubkey
	for i := range p {
		p[i] = b
	}
	return p
}

func TestDecode_ShortBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecode_UnknownDiscriminator(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = 0xff
	}
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecode_Trade(t *testing.T) {
	wire := tradeWire{
		Mint:                 pk(7),
		SolAmount:            1_000_000_000,
		TokenAmount:          34_612_903_225_806,
		IsBuy:                true,
		User:                 pk(9),
		Timestamp:            1_700_000_000,
		VirtualSolReserves:   30_000_000_000,
		VirtualTokenReserves: 1_073_000_000_000_000,
	}
	ev, err := Decode(encodeEvent(t, discTrade, wire))
	require.NoError(t, err)

	trade, ok := ev.(*TradeEvent)
	require.True(t, ok)
	assert.Equal(t, KindBuy, trade.EventKind())
	assert.Equal(t, solana.PoolAddress(pk(7)), trade.Pool, "trades key on the derived pool address")
	assert.Equal(t, wire.SolAmount, trade.SolAmount)
	assert.Equal(t, wire.VirtualSolReserves, trade.SolReservesBefore)
	assert.Equal(t, wire.VirtualTokenReserves, trade.TokenReserves)
	assert.Greater(t, trade.ImpliedMcapAfter, uint64(0))
}

func TestDecode_TradeSellKind(t *testing.T) {
	wire := tradeWire{
		Mint:                 pk(7),
		SolAmount:            5,
		TokenAmount:          100,
		IsBuy:                false,
		VirtualSolReserves:   30_000_000_000,
		VirtualTokenReserves: 1_073_000_000_000_000,
	}
	ev, err := Decode(encodeEvent(t, discTrade, wire))
	require.NoError(t, err)
	assert.Equal(t, KindSell, ev.EventKind())
}

func TestDecode_CreateExtended(t *testing.T) {
	wire := createV2Wire{
		Name:                 "Curve Token",
		Symbol:               "CRV",
		URI:                  "https://meta.example/crv.json",
		Mint:                 pk(1),
		BondingCurve:         pk(2),
		User:                 pk(3),
		Creator:              pk(4),
		Timestamp:            1_700_000_123,
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		TokenTotalSupply:     1_000_000_000_000_000,
		TokenProgram:         solana.Token2022Program,
		MayhemMode:           false,
	}
	ev, err := Decode(encodeEvent(t, discCreate, wire))
	require.NoError(t, err)

	create, ok := ev.(*CreateEvent)
	require.True(t, ok)
	assert.Equal(t, "Curve Token", create.Name)
	assert.Equal(t, "CRV", create.Symbol)
	assert.Equal(t, pk(1), create.Mint)
	assert.Equal(t, pk(2), create.BondingCurve)
	assert.Equal(t, int64(1_700_000_123), create.Timestamp)
	assert.True(t, create.Token2022)
}

// legacyCreateBody builds the legacy layout by hand so the optional trailing
// flag can be controlled.
func legacyCreateBody(t *testing.T, name, symbol, uri string, mint, bc, user solana.Pubkey, flag []byte) []byte {
	t.Helper()
	var buf []byte
	for _, s := range []string{name, symbol, uri} {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		buf = append(buf, n[:]...)
		buf = append(buf, s...)
	}
	buf = append(buf, mint[:]...)
	buf = append(buf, bc[:]...)
	buf = append(buf, user[:]...)
	return append(buf, flag...)
}

func TestDecode_CreateLegacyFallback(t *testing.T) {
	body := legacyCreateBody(t, "Old Token", "OLD", "https://meta.example/old.json", pk(1), pk(2), pk(3), nil)
	ev, err := Decode(append(discCreate[:], body...))
	require.NoError(t, err)

	create, ok := ev.(*CreateEvent)
	require.True(t, ok)
	assert.Equal(t, "Old Token", create.Name)
	assert.Equal(t, pk(2), create.BondingCurve)
	assert.False(t, create.Token2022, "missing trailing flag defaults to the legacy token program")
}

func TestDecode_CreateLegacyTrailingFlag(t *testing.T) {
	body := legacyCreateBody(t, "New Old", "NO", "u", pk(1), pk(2), pk(3), []byte{1})
	ev, err := Decode(append(discCreate[:], body...))
	require.NoError(t, err)
	assert.True(t, ev.(*CreateEvent).Token2022)
}

func TestDecode_CreateTruncated(t *testing.T) {
	body := legacyCreateBody(t, "T", "T", "u", pk(1), pk(2), pk(3), nil)
	_, err := Decode(append(discCreate[:], body[:len(body)-10]...))
	assert.Error(t, err)
}

func TestDecode_PoolTradeOrientation(t *testing.T) {
	// Token reserves dwarf lamport reserves, so the larger side is the token
	// side regardless of which slot it occupies.
	wire := ammTradeWire{
		Timestamp:              1_700_000_456,
		BaseAmount:             2_000_000_000,
		QuoteAmount:            70_000_000_000_000,
		PoolBaseTokenReserves:  85_000_000_000,
		PoolQuoteTokenReserves: 600_000_000_000_000,
		Pool:                   pk(5),
		User:                   pk(6),
	}
	ev, err := Decode(encodeEvent(t, discAMMBuy, wire))
	require.NoError(t, err)

	trade := ev.(*TradeEvent)
	assert.True(t, trade.IsBuy)
	assert.Equal(t, pk(5), trade.Pool)
	assert.Equal(t, uint64(2_000_000_000), trade.SolAmount)
	assert.Equal(t, uint64(70_000_000_000_000), trade.TokenAmount)
	assert.Equal(t, uint64(85_000_000_000), trade.SolReservesBefore)
	assert.Equal(t, uint64(600_000_000_000_000), trade.TokenReserves)

	// Flip the reserve sides. The reserves reorient but the amounts stay in
	// their base/quote positions.
	wire.PoolBaseTokenReserves, wire.PoolQuoteTokenReserves = wire.PoolQuoteTokenReserves, wire.PoolBaseTokenReserves

	ev, err = Decode(encodeEvent(t, discAMMSell, wire))
	require.NoError(t, err)
	trade = ev.(*TradeEvent)
	assert.False(t, trade.IsBuy)
	assert.Equal(t, uint64(2_000_000_000), trade.SolAmount)
	assert.Equal(t, uint64(70_000_000_000_000), trade.TokenAmount)
	assert.Equal(t, uint64(85_000_000_000), trade.SolReservesBefore)
	assert.Equal(t, uint64(600_000_000_000_000), trade.TokenReserves)
}

func TestDecodeBase64(t *testing.T) {
	wire := tradeWire{
		Mint:                 pk(7),
		SolAmount:            1,
		TokenAmount:          1,
		IsBuy:                true,
		VirtualSolReserves:   30_000_000_000,
		VirtualTokenReserves: 1_073_000_000_000_000,
	}
	payload := base64.StdEncoding.EncodeToString(encodeEvent(t, discTrade, wire))

	ev, err := DecodeBase64(payload)
	require.NoError(t, err)
	assert.Equal(t, KindBuy, ev.EventKind())

	_, err = DecodeBase64("not-base64!!!")
	assert.Error(t, err)
}

func TestExtractLogPayload(t *testing.T) {
	payload, ok := ExtractLogPayload("Program data: aGVsbG8=")
	require.True(t, ok)
	assert.Equal(t, "aGVsbG8=", payload)

	_, ok = ExtractLogPayload("Program log: Instruction: Buy")
	assert.False(t, ok)
}

func TestDecodeCreateArgs(t *testing.T) {
	args := CreateArgs{
		Name:    "Args Token",
		Symbol:  "ARG",
		URI:     "https://meta.example/arg.json",
		Creator: pk(8),
	}
	body, err := borsh.Serialize(args)
	require.NoError(t, err)

	got, err := DecodeCreateArgs(append(CreateInstructionDiscriminator[:], body...))
	require.NoError(t, err)
	assert.Equal(t, args, got)

	_, err = DecodeCreateArgs([]byte{1})
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = DecodeCreateArgs(append([]byte{9, 9, 9, 9, 9, 9, 9, 9}, body...))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
