package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/solana"
)

// ---------------------------------------------------------------------------
// Leader Schedule Cache — maps the current slot to its block producer
// ---------------------------------------------------------------------------

var (
	ErrSlotFetchFailed           = errors.New("executor: slot fetch failed")
	ErrLeaderScheduleFetchFailed = errors.New("executor: leader schedule fetch failed")
	ErrLeaderNotFound            = errors.New("executor: leader not found for slot")
)

// PublicFallbackEndpoint is used when the producer's RPC address is not in
// gossip.
const PublicFallbackEndpoint = "https://api.mainnet-beta.solana.com"

// leaderCacheTTL bounds how old a cached schedule may be before refresh.
const leaderCacheTTL = 60 * time.Second

// LeaderCache caches the epoch leader schedule and the gossip RPC endpoints.
// The map mutex is held only for reads and writes, never across an RPC;
// refreshMu keeps concurrent callers from issuing duplicate refresh fetches.
type LeaderCache struct {
	rpc solana.RPCClient
	ttl time.Duration

	refreshMu sync.Mutex

	mu        sync.Mutex
	fetchedAt time.Time
	schedule  map[string][]uint64
	total     uint64
	endpoints map[string]string // identity -> rpc address
}

// NewLeaderCache creates a cache over the given RPC client.
func NewLeaderCache(rpc solana.RPCClient) *LeaderCache {
	return &LeaderCache{
		rpc: rpc,
		ttl: leaderCacheTTL,
	}
}

// Endpoint resolves the RPC endpoint of the producer responsible for the
// current slot, refreshing the schedule when absent or stale.
func (c *LeaderCache) Endpoint(ctx context.Context) (string, error) {
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSlotFetchFailed, err)
	}

	if err := c.ensureFresh(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	leader, err := c.leaderForSlotLocked(slot)
	if err != nil {
		return "", err
	}

	endpoint := c.endpoints[leader]
	if endpoint == "" {
		log.Debug().Str("leader", leader).Msg("executor: leader has no gossip RPC, using public fallback")
		return PublicFallbackEndpoint, nil
	}
	return endpoint, nil
}

// ensureFresh refreshes the schedule when absent or stale. The refresh RPCs
// run outside the map mutex so concurrent lookups against the cached
// schedule never wait on the network.
func (c *LeaderCache) ensureFresh(ctx context.Context) error {
	if c.fresh() {
		return nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if c.fresh() {
		return nil
	}
	return c.refresh(ctx)
}

func (c *LeaderCache) fresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule != nil && time.Since(c.fetchedAt) <= c.ttl
}

func (c *LeaderCache) refresh(ctx context.Context) error {
	schedule, err := c.rpc.GetLeaderSchedule(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLeaderScheduleFetchFailed, err)
	}
	if len(schedule) == 0 {
		return fmt.Errorf("%w: empty schedule", ErrLeaderScheduleFetchFailed)
	}

	var total uint64
	for _, slots := range schedule {
		total += uint64(len(slots))
	}

	endpoints := make(map[string]string)
	nodes, err := c.rpc.GetClusterNodes(ctx)
	if err != nil {
		// Gossip is best effort; every lookup then takes the fallback.
		log.Warn().Err(err).Msg("executor: cluster nodes fetch failed")
	} else {
		for _, n := range nodes {
			if n.RPC != "" {
				endpoints[n.Pubkey] = n.RPC
			}
		}
	}

	c.mu.Lock()
	c.schedule = schedule
	c.total = total
	c.endpoints = endpoints
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	log.Info().
		Int("validators", len(schedule)).
		Uint64("slots", total).
		Int("rpc_nodes", len(endpoints)).
		Msg("executor: leader schedule refreshed")
	return nil
}

// leaderForSlotLocked finds the validator whose assigned set contains the
// slot's index within the schedule.
func (c *LeaderCache) leaderForSlotLocked(slot uint64) (string, error) {
	if c.total == 0 {
		return "", fmt.Errorf("%w: empty schedule", ErrLeaderScheduleFetchFailed)
	}
	target := slot % c.total
	for identity, slots := range c.schedule {
		for _, s := range slots {
			if s == target {
				return identity, nil
			}
		}
	}
	return "", fmt.Errorf("%w: index %d", ErrLeaderNotFound, target)
}
