package solana

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// SendOptions tune transaction submission.
type SendOptions struct {
	SkipPreflight bool
	// MaxRetries < 0 leaves the node default; 0 disables node-side retries.
	MaxRetries int
}

// ClusterNode is one gossip entry; RPC is empty for non-RPC validators.
type ClusterNode struct {
	Pubkey string `json:"pubkey"`
	RPC    string `json:"rpc"`
}

// PriorityFeeSample is one slot's observed prioritization fee.
type PriorityFeeSample struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

// RPCClient is the interface for Solana RPC interactions.
// Implementations: LiveRPCClient (real Solana), StubRPCClient (testing).
type RPCClient interface {
	// GetAccountInfo returns raw account data for an address.
	GetAccountInfo(ctx context.Context, account Pubkey) ([]byte, error)

	// GetLatestBlockhash returns the most recent block reference.
	GetLatestBlockhash(ctx context.Context) (string, error)

	// GetSlot returns the current processed slot.
	GetSlot(ctx context.Context) (uint64, error)

	// GetLeaderSchedule returns the current epoch schedule as
	// identity -> assigned slot indexes.
	GetLeaderSchedule(ctx context.Context) (map[string][]uint64, error)

	// GetClusterNodes returns the gossip view of the cluster.
	GetClusterNodes(ctx context.Context) ([]ClusterNode, error)

	// SendTransaction submits a base64-encoded signed transaction.
	SendTransaction(ctx context.Context, txBase64 string, opts SendOptions) (Signature, error)

	// GetRecentPrioritizationFees samples recent priority fees for accounts.
	GetRecentPrioritizationFees(ctx context.Context, accounts []Pubkey) ([]PriorityFeeSample, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the Solana RPC client.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`       // e.g. https://api.mainnet-beta.solana.com
	WSEndpoint   string        `yaml:"ws_endpoint"`    // e.g. wss://api.mainnet-beta.solana.com
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // requests per second limit
	PrivateKey   string        `yaml:"private_key"`    // base58 encoded wallet private key
}

// DefaultRPCConfig returns development defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:     "https://api.mainnet-beta.solana.com",
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 10,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and development)
// ---------------------------------------------------------------------------

// SentTx records one stubbed SendTransaction call.
type SentTx struct {
	TxBase64 string
	Opts     SendOptions
}

// StubRPCClient is a mock RPC client for testing.
type StubRPCClient struct {
	mu        sync.RWMutex
	accounts  map[Pubkey][]byte
	blockhash string
	slot      uint64
	schedule  map[string][]uint64
	nodes     []ClusterNode
	fees      []PriorityFeeSample
	sent      []SentTx
	failNext  bool
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		accounts:  make(map[Pubkey][]byte),
		blockhash: "GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W",
		slot:      1,
		schedule:  make(map[string][]uint64),
	}
}

// SetAccount registers raw account data for the stub to return.
func (s *StubRPCClient) SetAccount(account Pubkey, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] = data
}

// SetSlot sets the slot returned by GetSlot.
func (s *StubRPCClient) SetSlot(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = slot
}

// SetLeaderSchedule sets the schedule returned by GetLeaderSchedule.
func (s *StubRPCClient) SetLeaderSchedule(schedule map[string][]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = schedule
}

// SetClusterNodes sets the gossip view returned by GetClusterNodes.
func (s *StubRPCClient) SetClusterNodes(nodes []ClusterNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nodes
}

// SetFees sets the samples returned by GetRecentPrioritizationFees.
func (s *StubRPCClient) SetFees(fees []PriorityFeeSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees = fees
}

// Sent returns every transaction submitted so far.
func (s *StubRPCClient) Sent() []SentTx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SentTx, len(s.sent))
	copy(out, s.sent)
	return out
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *StubRPCClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubRPCClient) GetAccountInfo(_ context.Context, account Pubkey) ([]byte, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.accounts[account]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("stub: account %s not found", account)
}

func (s *StubRPCClient) GetLatestBlockhash(_ context.Context) (string, error) {
	if s.shouldFail() {
		return "", fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blockhash, nil
}

func (s *StubRPCClient) GetSlot(_ context.Context) (uint64, error) {
	if s.shouldFail() {
		return 0, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slot, nil
}

func (s *StubRPCClient) GetLeaderSchedule(_ context.Context) (map[string][]uint64, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule, nil
}

func (s *StubRPCClient) GetClusterNodes(_ context.Context) ([]ClusterNode, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes, nil
}

func (s *StubRPCClient) SendTransaction(_ context.Context, txBase64 string, opts SendOptions) (Signature, error) {
	if s.shouldFail() {
		return "", fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, SentTx{TxBase64: txBase64, Opts: opts})
	return Signature(fmt.Sprintf("stub-sig-%d", len(s.sent))), nil
}

func (s *StubRPCClient) GetRecentPrioritizationFees(_ context.Context, _ []Pubkey) ([]PriorityFeeSample, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fees, nil
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
