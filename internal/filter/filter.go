package filter

import (
	"math"

	"github.com/curvex-trading/curvex/internal/pool"
)

// ---------------------------------------------------------------------------
// Filter/Decision Engine — range predicates over creator statistics
// ---------------------------------------------------------------------------

// Tag names one predicate in the closed tag set.
type Tag string

const (
	TagAverageDevMarketCap Tag = "AverageDevMarketCap"
	TagTokenCount          Tag = "TokenCount"
	TagMigrationPercentage Tag = "MigrationPercentage"
)

// Range is a half-open interval [Min, Max).
type Range struct {
	Min uint64 `json:"min"`
	Max uint64 `json:"max"`
}

func (r Range) Contains(v uint64) bool {
	return v >= r.Min && v < r.Max
}

// Set is an unordered collection of predicates keyed by tag. The zero value
// has no predicates and admits nothing.
type Set struct {
	Filters map[Tag]Range `json:"filters"`
}

func NewSet() Set {
	return Set{Filters: make(map[Tag]Range)}
}

func (s *Set) Add(tag Tag, r Range) {
	if s.Filters == nil {
		s.Filters = make(map[Tag]Range)
	}
	s.Filters[tag] = r
}

func (s *Set) Remove(tag Tag) {
	delete(s.Filters, tag)
}

// Matches decides admission from the creator's history. The composition is
// deliberate: the market-cap predicate alone can admit, otherwise both the
// migration and token-count predicates must hold. A predicate whose
// statistic is unavailable fails rather than passing vacuously.
func (s *Set) Matches(history *pool.CreatorHistory) bool {
	mcapOK := false
	migrationOK := false
	countOK := false

	for tag, r := range s.Filters {
		switch tag {
		case TagAverageDevMarketCap:
			mcapOK = history != nil && r.Contains(saturateU64(history.AverageMarketCap))
		case TagTokenCount:
			countOK = history != nil && history.TokenCount >= 0 && r.Contains(uint64(history.TokenCount))
		case TagMigrationPercentage:
			migrationOK = history != nil && r.Contains(saturateU64(math.Floor(history.MigrationPercentage)))
		}
	}

	return mcapOK || (migrationOK && countOK)
}

// Empty reports whether no predicates are configured.
func (s *Set) Empty() bool {
	return len(s.Filters) == 0
}

func saturateU64(f float64) uint64 {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(f)
}
