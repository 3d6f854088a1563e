package pool

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/codec"
	"github.com/curvex-trading/curvex/internal/solana"
)

// ---------------------------------------------------------------------------
// Asset Pool — bounded FIFO set of live candidates, keyed by pool address
// ---------------------------------------------------------------------------

// DefaultCapacity bounds how many assets are tracked at once.
const DefaultCapacity = 50

// ErrNotFound is returned by Update for assets that were never admitted or
// have already been evicted. Callers typically ignore it.
var ErrNotFound = errors.New("pool: token not found")

// Pool holds the most recent launches. Mutations take a single mutex held
// only for map and ring work, never across I/O.
type Pool struct {
	mu       sync.Mutex
	capacity int
	order    []solana.Pubkey
	tokens   map[solana.Pubkey]*Token

	admitted atomic.Uint64
	evicted  atomic.Uint64
	updated  atomic.Uint64
	missed   atomic.Uint64
}

// New creates a pool. Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		capacity: capacity,
		tokens:   make(map[solana.Pubkey]*Token, capacity),
	}
}

// Admit inserts a token, evicting the oldest entry when full. Re-admitting
// an existing key refreshes its value without consuming capacity.
func (p *Pool) Admit(tok *Token) {
	p.mu.Lock()
	if _, ok := p.tokens[tok.Pool]; !ok {
		p.order = append(p.order, tok.Pool)
		if len(p.order) > p.capacity {
			oldest := p.order[0]
			p.order = p.order[1:]
			delete(p.tokens, oldest)
			p.evicted.Add(1)
		}
	}
	p.tokens[tok.Pool] = tok
	p.mu.Unlock()

	p.admitted.Add(1)
	log.Debug().
		Str("pool", tok.Pool.String()).
		Str("ticker", tok.Ticker).
		Msg("pool: admitted")
}

// Update applies a trade to the matching asset and returns a copy of its new
// state for fan-out.
func (p *Pool) Update(ev *codec.TradeEvent, solPrice float64) (Token, error) {
	p.mu.Lock()
	tok, ok := p.tokens[ev.Pool]
	if !ok {
		p.mu.Unlock()
		p.missed.Add(1)
		return Token{}, ErrNotFound
	}
	tok.ApplyTrade(ev, solPrice)
	snapshot := *tok
	p.mu.Unlock()

	p.updated.Add(1)
	return snapshot, nil
}

// Get returns a copy of the token for the given pool key.
func (p *Pool) Get(key solana.Pubkey) (Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.tokens[key]
	if !ok {
		return Token{}, false
	}
	return *tok, true
}

// Len reports the current number of pooled assets.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Admitted uint64 `json:"admitted"`
	Evicted  uint64 `json:"evicted"`
	Updated  uint64 `json:"updated"`
	Missed   uint64 `json:"missed"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Size:     p.Len(),
		Capacity: p.capacity,
		Admitted: p.admitted.Load(),
		Evicted:  p.evicted.Load(),
		Updated:  p.updated.Load(),
		Missed:   p.missed.Load(),
	}
}
