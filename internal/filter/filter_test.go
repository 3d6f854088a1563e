package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvex-trading/curvex/internal/pool"
)

func history(avgMcap float64, count int, migration float64) *pool.CreatorHistory {
	return &pool.CreatorHistory{
		AverageMarketCap:    avgMcap,
		TokenCount:          count,
		MigrationPercentage: migration,
	}
}

func TestRange_HalfOpen(t *testing.T) {
	r := Range{Min: 10, Max: 20}
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(19))
	assert.False(t, r.Contains(20), "max is exclusive")
	assert.False(t, r.Contains(9))
}

func TestSet_MarketCapAloneAdmits(t *testing.T) {
	s := NewSet()
	s.Add(TagAverageDevMarketCap, Range{Min: 1_000, Max: 100_000})
	s.Add(TagTokenCount, Range{Min: 0, Max: 3})
	s.Add(TagMigrationPercentage, Range{Min: 50, Max: 101})

	// Market cap in range, everything else out of range.
	assert.True(t, s.Matches(history(50_000, 10, 5)))
}

func TestSet_MigrationAndCountTogether(t *testing.T) {
	s := NewSet()
	s.Add(TagAverageDevMarketCap, Range{Min: 1_000, Max: 2_000})
	s.Add(TagTokenCount, Range{Min: 1, Max: 10})
	s.Add(TagMigrationPercentage, Range{Min: 50, Max: 101})

	// Mcap misses but migration and count both hold.
	assert.True(t, s.Matches(history(999_999, 5, 75)))

	// Migration holds alone; count misses.
	assert.False(t, s.Matches(history(999_999, 50, 75)))
}

func TestSet_MissingHistoryFails(t *testing.T) {
	s := NewSet()
	s.Add(TagAverageDevMarketCap, Range{Min: 0, Max: 1 << 62})
	assert.False(t, s.Matches(nil), "configured but unevaluable must fail")
}

func TestSet_EmptySetAdmitsNothing(t *testing.T) {
	s := NewSet()
	assert.False(t, s.Matches(history(50_000, 1, 100)))
	assert.True(t, s.Empty())
}

func TestSet_MigrationFloored(t *testing.T) {
	s := NewSet()
	s.Add(TagMigrationPercentage, Range{Min: 50, Max: 51})
	s.Add(TagTokenCount, Range{Min: 0, Max: 100})

	assert.True(t, s.Matches(history(0, 1, 50.9)), "50.9 floors to 50")
	assert.False(t, s.Matches(history(0, 1, 49.9)))
}

func TestSet_JSONRoundTrip(t *testing.T) {
	s := NewSet()
	s.Add(TagAverageDevMarketCap, Range{Min: 5_000, Max: 80_000})
	s.Add(TagTokenCount, Range{Min: 1, Max: 4})

	data, err := json.Marshal(&s)
	require.NoError(t, err)

	var got Set
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.Filters, got.Filters)

	got.Remove(TagTokenCount)
	assert.Len(t, got.Filters, 1)
}
