package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/codec"
	"github.com/curvex-trading/curvex/internal/enrich"
	"github.com/curvex-trading/curvex/internal/filter"
	"github.com/curvex-trading/curvex/internal/pool"
	"github.com/curvex-trading/curvex/internal/stream"
)

// ---------------------------------------------------------------------------
// Pipeline — consumes the event stream and drives pool, filters and executor
// ---------------------------------------------------------------------------

// Config tunes the consumer.
type Config struct {
	// BatchSize bounds how many queued events one drain takes.
	BatchSize int `yaml:"batch_size"`
	// MaxEventAge drops events older than this at decision time.
	MaxEventAge time.Duration `yaml:"max_event_age"`
	// EnrichConcurrency bounds in-flight enrichment fetches.
	EnrichConcurrency int `yaml:"enrich_concurrency"`
	// PriceInterval is the SOL price polling period.
	PriceInterval time.Duration `yaml:"price_interval"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         5,
		MaxEventAge:       5 * time.Second,
		EnrichConcurrency: 20,
		PriceInterval:     10 * time.Second,
	}
}

// Enricher fetches off-chain token metadata and creator statistics.
type Enricher interface {
	FetchMetadata(ctx context.Context, uri string) (*enrich.Metadata, error)
	FetchCreatorHistory(ctx context.Context, wallet string) (*pool.CreatorHistory, error)
}

// Acquirer races a buy for an admitted asset.
type Acquirer interface {
	AttemptAcquire(ctx context.Context, tok *pool.Token) error
}

// Broadcaster fans admitted assets out to viewers.
type Broadcaster interface {
	Broadcast(v any) error
}

// DenyList vetoes execution for banned creators and socials.
type DenyList interface {
	BannedWallet(wallet string) bool
	BannedSocial(handle string) bool
}

// PriceFunc returns the current SOL/USD price.
type PriceFunc func(ctx context.Context) (float64, error)

// Deps wires the pipeline's collaborators. Hub, Deny, Acquirer and Price are
// optional; a nil field disables that stage.
type Deps struct {
	Pool     *pool.Pool
	Dups     *pool.DupIndex
	Enricher Enricher
	Acquirer Acquirer
	Hub      Broadcaster
	Deny     DenyList
	Price    PriceFunc
	Filters  filter.Set
}

// Pipeline connects the decoded event stream to admission, filtering and
// execution.
type Pipeline struct {
	config Config
	deps   Deps

	sem      chan struct{}
	solPrice atomic.Uint64 // float64 bits
	wg       sync.WaitGroup
	admitMu  sync.Mutex // serializes duplicate check + admission

	// Stats.
	consumed    atomic.Int64
	stale       atomic.Int64
	duplicates  atomic.Int64
	admitted    atomic.Int64
	trades      atomic.Int64
	blacklisted atomic.Int64
	filteredOut atomic.Int64
	acquires    atomic.Int64
	acquireErrs atomic.Int64
}

// New creates a pipeline.
func New(config Config, deps Deps) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if config.MaxEventAge <= 0 {
		config.MaxEventAge = 5 * time.Second
	}
	if config.EnrichConcurrency <= 0 {
		config.EnrichConcurrency = 20
	}
	if config.PriceInterval <= 0 {
		config.PriceInterval = 10 * time.Second
	}
	return &Pipeline{
		config: config,
		deps:   deps,
		sem:    make(chan struct{}, config.EnrichConcurrency),
	}
}

// SOLPrice returns the last polled SOL/USD price, zero before the first poll.
func (p *Pipeline) SOLPrice() float64 {
	return math.Float64frombits(p.solPrice.Load())
}

// Run consumes events until the channel closes or ctx is cancelled, then
// waits for in-flight enrichment to finish and stops the price poller.
func (p *Pipeline) Run(ctx context.Context, events <-chan stream.Envelope) {
	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	var priceDone chan struct{}
	if p.deps.Price != nil {
		priceDone = make(chan struct{})
		go func() {
			defer close(priceDone)
			p.pollPrice(pollCtx)
		}()
	}

	for {
		batch, ok := p.nextBatch(ctx, events)
		if !ok {
			break
		}
		for i := range batch {
			p.handle(ctx, batch[i])
		}
	}

	p.wg.Wait()
	stopPoll()
	if priceDone != nil {
		<-priceDone
	}
	log.Info().Msg("pipeline: stopped")
}

// nextBatch blocks for one event then drains up to BatchSize-1 more without
// blocking, so a burst is folded into one pass and a trickle is not delayed.
func (p *Pipeline) nextBatch(ctx context.Context, events <-chan stream.Envelope) ([]stream.Envelope, bool) {
	var batch []stream.Envelope
	select {
	case <-ctx.Done():
		return nil, false
	case env, ok := <-events:
		if !ok {
			return nil, false
		}
		batch = append(batch, env)
	}

	for len(batch) < p.config.BatchSize {
		select {
		case env, ok := <-events:
			if !ok {
				return batch, true
			}
			batch = append(batch, env)
		default:
			return batch, true
		}
	}
	return batch, true
}

func (p *Pipeline) handle(ctx context.Context, env stream.Envelope) {
	p.consumed.Add(1)

	if time.Since(env.CapturedAt) > p.config.MaxEventAge {
		p.stale.Add(1)
		log.Debug().
			Str("kind", string(env.Event.EventKind())).
			Dur("age", time.Since(env.CapturedAt)).
			Msg("pipeline: drop stale event")
		return
	}

	switch ev := env.Event.(type) {
	case *codec.CreateEvent:
		p.handleCreate(ctx, env, ev)
	case *codec.TradeEvent:
		p.handleTrade(ev)
	}
}

// handleCreate runs enrichment and the admission decision on a bounded
// worker so slow metadata hosts cannot stall the consumer.
func (p *Pipeline) handleCreate(ctx context.Context, env stream.Envelope, ev *codec.CreateEvent) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		p.admitCreate(ctx, env, ev)
	}()
}

func (p *Pipeline) admitCreate(ctx context.Context, env stream.Envelope, ev *codec.CreateEvent) {
	tok := pool.NewToken(ev)

	if p.deps.Enricher != nil {
		if meta, err := p.deps.Enricher.FetchMetadata(ctx, ev.URI); err == nil {
			tok.Description = meta.Description
			tok.Image = meta.Image
			tok.Twitter = meta.Twitter
			tok.Website = meta.Website
		} else {
			log.Debug().Err(err).Str("uri", ev.URI).Msg("pipeline: metadata fetch failed")
		}
		if history, err := p.deps.Enricher.FetchCreatorHistory(ctx, ev.User.String()); err == nil {
			tok.History = history
		} else {
			log.Debug().Err(err).Msg("pipeline: creator history fetch failed")
		}
	}

	attrs := pool.Attributes{
		Name:        tok.Name,
		Ticker:      tok.Ticker,
		Description: tok.Description,
		Image:       tok.Image,
		MetadataURI: tok.MetadataURI,
	}
	p.admitMu.Lock()
	if p.deps.Dups != nil {
		if p.deps.Dups.IsDuplicate(attrs) {
			p.admitMu.Unlock()
			p.duplicates.Add(1)
			log.Debug().Str("ticker", tok.Ticker).Msg("pipeline: duplicate launch rejected")
			return
		}
		p.deps.Dups.Record(attrs)
	}
	p.deps.Pool.Admit(tok)
	p.admitMu.Unlock()
	p.admitted.Add(1)
	if p.deps.Hub != nil {
		if err := p.deps.Hub.Broadcast(tok); err != nil {
			log.Warn().Err(err).Msg("pipeline: broadcast failed")
		}
	}

	p.maybeAcquire(ctx, env, tok)
}

// maybeAcquire applies the deny list, the filter set and a final freshness
// check before racing the buy.
func (p *Pipeline) maybeAcquire(ctx context.Context, env stream.Envelope, tok *pool.Token) {
	if p.deps.Acquirer == nil {
		return
	}
	if p.deps.Deny != nil {
		if p.deps.Deny.BannedWallet(tok.Creator.String()) || p.deps.Deny.BannedSocial(tok.Twitter) {
			p.blacklisted.Add(1)
			log.Info().Str("creator", tok.Creator.String()).Msg("pipeline: creator blacklisted, skipping buy")
			return
		}
	}
	if p.deps.Filters.Empty() || !p.deps.Filters.Matches(tok.History) {
		p.filteredOut.Add(1)
		return
	}
	if time.Since(env.CapturedAt) > p.config.MaxEventAge {
		p.stale.Add(1)
		return
	}

	p.acquires.Add(1)
	if err := p.deps.Acquirer.AttemptAcquire(ctx, tok); err != nil {
		p.acquireErrs.Add(1)
		log.Warn().Err(err).Str("ticker", tok.Ticker).Msg("pipeline: acquisition failed")
	}
}

func (p *Pipeline) handleTrade(ev *codec.TradeEvent) {
	p.trades.Add(1)
	tok, err := p.deps.Pool.Update(ev, p.SOLPrice())
	if err != nil {
		if !errors.Is(err, pool.ErrNotFound) {
			log.Warn().Err(err).Msg("pipeline: trade update failed")
		}
		return
	}
	if p.deps.Hub != nil {
		if err := p.deps.Hub.Broadcast(tok); err != nil {
			log.Warn().Err(err).Msg("pipeline: broadcast failed")
		}
	}
}

// pollPrice refreshes the SOL price immediately and then on a fixed period.
// A failed poll keeps the previous price.
func (p *Pipeline) pollPrice(ctx context.Context) {
	fetch := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		price, err := p.deps.Price(fetchCtx)
		if err != nil {
			log.Warn().Err(err).Msg("pipeline: sol price poll failed")
			return
		}
		p.solPrice.Store(math.Float64bits(price))
		log.Debug().Float64("price", price).Msg("pipeline: sol price updated")
	}

	fetch()
	ticker := time.NewTicker(p.config.PriceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetch()
		}
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Consumed    int64   `json:"consumed"`
	Stale       int64   `json:"stale"`
	Duplicates  int64   `json:"duplicates"`
	Admitted    int64   `json:"admitted"`
	Trades      int64   `json:"trades"`
	Blacklisted int64   `json:"blacklisted"`
	FilteredOut int64   `json:"filtered_out"`
	Acquires    int64   `json:"acquires"`
	AcquireErrs int64   `json:"acquire_errors"`
	SOLPrice    float64 `json:"sol_price"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Consumed:    p.consumed.Load(),
		Stale:       p.stale.Load(),
		Duplicates:  p.duplicates.Load(),
		Admitted:    p.admitted.Load(),
		Trades:      p.trades.Load(),
		Blacklisted: p.blacklisted.Load(),
		FilteredOut: p.filteredOut.Load(),
		Acquires:    p.acquires.Load(),
		AcquireErrs: p.acquireErrs.Load(),
		SOLPrice:    p.SOLPrice(),
	}
}
