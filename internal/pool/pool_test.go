package pool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvex-trading/curvex/internal/codec"
	"github.com/curvex-trading/curvex/internal/solana"
)

func testToken(i int) *Token {
	var key solana.Pubkey
	key[0] = byte(i)
	key[1] = byte(i >> 8)
	return &Token{
		Pool:        key,
		Name:        fmt.Sprintf("token-%d", i),
		Ticker:      fmt.Sprintf("T%d", i),
		MarketCap:   freshMarketCap,
		AllTimeHigh: freshMarketCap,
		Reserves:    freshReserves,
	}
}

func TestPool_CapacityAndFIFO(t *testing.T) {
	p := New(3)
	for i := 0; i < 5; i++ {
		p.Admit(testToken(i))
	}

	assert.Equal(t, 3, p.Len(), "pool never exceeds capacity")

	// 0 and 1 were the oldest and must be gone; 2..4 survive.
	_, ok := p.Get(testToken(0).Pool)
	assert.False(t, ok)
	_, ok = p.Get(testToken(1).Pool)
	assert.False(t, ok)
	for i := 2; i < 5; i++ {
		_, ok := p.Get(testToken(i).Pool)
		assert.True(t, ok, "token %d should survive", i)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.Admitted)
	assert.Equal(t, uint64(2), stats.Evicted)
}

func TestPool_ReadmitDoesNotEvict(t *testing.T) {
	p := New(2)
	p.Admit(testToken(1))
	p.Admit(testToken(2))
	p.Admit(testToken(1)) // refresh, not a new slot

	assert.Equal(t, 2, p.Len())
	_, ok := p.Get(testToken(2).Pool)
	assert.True(t, ok)
}

func TestPool_UpdateNotFound(t *testing.T) {
	p := New(2)
	_, err := p.Update(&codec.TradeEvent{Pool: testToken(9).Pool}, 150.0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, uint64(1), p.Stats().Missed)
}

func TestPool_UpdateAppliesTrade(t *testing.T) {
	p := New(2)
	tok := testToken(1)
	p.Admit(tok)

	snap, err := p.Update(&codec.TradeEvent{
		Pool:              tok.Pool,
		IsBuy:             true,
		SolReservesBefore: 31_000_000_000,
		TokenReserves:     1_038_000_000_000_000,
	}, 150.0)
	require.NoError(t, err)
	assert.Equal(t, uint64(31_000_000_000), snap.MarketCap)
	assert.Equal(t, uint64(1_038_000_000_000_000), snap.Reserves)
	assert.Greater(t, snap.USDMarketCap, uint64(0))
}

func TestToken_AllTimeHighMonotonic(t *testing.T) {
	tok := testToken(1)

	tok.ApplyTrade(&codec.TradeEvent{
		IsBuy:             true,
		SolReservesBefore: 40_000_000_000,
		TokenReserves:     900_000_000_000_000,
	}, 150.0)
	high := tok.AllTimeHigh
	require.Greater(t, high, uint64(freshMarketCap))

	// A sell that drops the mcap must not move the high-water mark.
	tok.ApplyTrade(&codec.TradeEvent{
		IsBuy:             false,
		SolReservesBefore: 30_000_000_000,
		TokenReserves:     1_073_000_000_000_000,
	}, 150.0)
	assert.Equal(t, high, tok.AllTimeHigh)
	assert.Less(t, tok.USDMarketCap, high)
}

func TestUSDMarketCap_Saturates(t *testing.T) {
	assert.Equal(t, uint64(0), usdMarketCap(100, 150.0, 0))
	assert.Equal(t, uint64(0), usdMarketCap(100, 0, 1_000))

	// Huge mcap against one unit of reserves overflows and must clamp.
	v := usdMarketCap(1<<63, 1e9, 1)
	assert.Equal(t, uint64(1<<64-1), v)
}

func TestDupIndex_ImageAloneRejects(t *testing.T) {
	d := NewDupIndex()
	d.Record(Attributes{
		Name:        "Original",
		Ticker:      "ORIG",
		Description: "first launch",
		Image:       "ipfs://img-1",
		MetadataURI: "ipfs://meta-1",
	})

	// Everything differs except the image.
	assert.True(t, d.IsDuplicate(Attributes{
		Name:        "Different",
		Ticker:      "DIFF",
		Description: "something else",
		Image:       "ipfs://img-1",
		MetadataURI: "ipfs://meta-2",
	}))
}

func TestDupIndex_ORPredicate(t *testing.T) {
	d := NewDupIndex()
	d.Record(Attributes{
		Name:        "Original",
		Ticker:      "ORIG",
		Description: "first launch",
		Image:       "ipfs://img-1",
		MetadataURI: "ipfs://meta-1",
	})

	cases := map[string]Attributes{
		"metadata uri": {MetadataURI: "ipfs://meta-1"},
		"name alone":   {Name: "Original"},
		"desc+ticker":  {Description: "first launch", Ticker: "ORIG"},
	}
	for name, attrs := range cases {
		assert.True(t, d.IsDuplicate(attrs), name)
	}

	assert.False(t, d.IsDuplicate(Attributes{
		Name:        "Fresh",
		Ticker:      "ORIG", // ticker alone never rejects
		Description: "new",
		Image:       "ipfs://img-2",
		MetadataURI: "ipfs://meta-2",
	}))
}

func TestDupIndex_EmptyAttributesNeverMatch(t *testing.T) {
	d := NewDupIndex()
	d.Record(Attributes{Name: "OnlyName"})

	assert.False(t, d.IsDuplicate(Attributes{}))
	assert.False(t, d.IsDuplicate(Attributes{Image: ""}))
}
