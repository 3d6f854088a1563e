package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/blocto/solana-go-sdk/program/compute_budget"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/curve"
	"github.com/curvex-trading/curvex/internal/pool"
	"github.com/curvex-trading/curvex/internal/solana"
)

// ---------------------------------------------------------------------------
// Execution Engine — builds, signs and races the acquisition transaction
// ---------------------------------------------------------------------------

var (
	ErrCurveNotFound        = errors.New("executor: curve state not found")
	ErrBlockHashFetchFailed = errors.New("executor: block hash fetch failed")
	ErrTransactionError     = errors.New("executor: transaction failed")
)

// ComputeUnitLimit is the fixed budget requested for the acquisition tx.
const ComputeUnitLimit = 120_000

// TipDestination receives the fixed inclusion tip.
var TipDestination = solana.MustPubkey("D1Mc6j9xQWgR1o1Z7yU5nVVXFQiAYx7FG9AW1aVfwrUM")

var buyDiscriminator = [8]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}

// Config holds the acquisition parameters.
type Config struct {
	LamportAmount uint64  `yaml:"lamport_amount" json:"lamport_amount"`
	PriorityFee   uint64  `yaml:"priority_fee" json:"priority_fee"`
	Slippage      float64 `yaml:"slippage" json:"slippage"`
	TipLamports   uint64  `yaml:"bribe" json:"bribe"`
	UseLeaderSend bool    `yaml:"use_leader_send" json:"use_leader_send"`
}

// DefaultConfig returns conservative acquisition defaults.
func DefaultConfig() Config {
	return Config{
		LamportAmount: 100_000_000, // 0.1 SOL
		PriorityFee:   100_000,
		Slippage:      0.15,
		TipLamports:   1_000_000,
		UseLeaderSend: false,
	}
}

// RelaySender submits a signed transaction through the relay.
type RelaySender interface {
	Send(ctx context.Context, txBase64 string) error
}

// DirectSender submits a signed transaction to an arbitrary RPC endpoint.
type DirectSender interface {
	Send(ctx context.Context, endpoint, txBase64 string) error
}

// FeeSource estimates a priority fee when none is configured.
type FeeSource interface {
	EstimateFee(level solana.CongestionLevel) uint64
}

// Engine races acquisition transactions to inclusion, either directly to
// the slot leader or through the relay.
type Engine struct {
	config  Config
	rpc     solana.RPCClient
	relay   RelaySender
	direct  DirectSender
	leaders *LeaderCache
	fees    FeeSource
	signer  types.Account

	// Stats.
	attempts    atomic.Int64
	directSends atomic.Int64
	relaySends  atomic.Int64
	failures    atomic.Int64
}

// New creates an execution engine signing with the given keypair.
func New(config Config, rpc solana.RPCClient, relay RelaySender, signer types.Account) *Engine {
	return &Engine{
		config:  config,
		rpc:     rpc,
		relay:   relay,
		direct:  &httpDirectSender{client: &http.Client{Timeout: 5 * time.Second}},
		leaders: NewLeaderCache(rpc),
		signer:  signer,
	}
}

// SetFeeSource installs a dynamic fee estimator used when the configured
// priority fee is zero.
func (e *Engine) SetFeeSource(fees FeeSource) { e.fees = fees }

// SetDirectSender overrides the direct transport.
func (e *Engine) SetDirectSender(d DirectSender) { e.direct = d }

// AttemptAcquire builds, signs and submits a buy for the asset. Freshness
// gating happens in the calling pipeline, not here.
func (e *Engine) AttemptAcquire(ctx context.Context, tok *pool.Token) error {
	e.attempts.Add(1)

	data, err := e.rpc.GetAccountInfo(ctx, tok.BondingCurve)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCurveNotFound, err)
	}
	state, err := curve.DecodeState(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCurveNotFound, err)
	}

	tokensOut, err := state.QuoteBuy(e.config.LamportAmount)
	if err != nil {
		return err
	}
	maxCost := uint64(float64(e.config.LamportAmount) * (1.0 + e.config.Slippage))

	fee := e.config.PriorityFee
	if fee == 0 && e.fees != nil {
		fee = e.fees.EstimateFee(solana.CongestionNormal)
	}
	microPrice := fee * 1_000_000 / ComputeUnitLimit

	wallet, err := solana.PubkeyFromBytes(e.signer.PublicKey.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionError, err)
	}

	tokenProgram := solana.TokenProgram
	if tok.Token2022 {
		tokenProgram = solana.Token2022Program
	}

	instructions := []types.Instruction{
		compute_budget.SetComputeUnitLimit(compute_budget.SetComputeUnitLimitParam{
			Units: ComputeUnitLimit,
		}),
		compute_budget.SetComputeUnitPrice(compute_budget.SetComputeUnitPriceParam{
			MicroLamports: microPrice,
		}),
		createATAIdempotentIx(wallet, wallet, tok.Mint, tokenProgram),
		buyIx(tok, wallet, tokenProgram, tokensOut, maxCost),
		system.Transfer(system.TransferParam{
			From:   e.signer.PublicKey,
			To:     TipDestination.Common(),
			Amount: e.config.TipLamports,
		}),
	}

	blockhash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockHashFetchFailed, err)
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        e.signer.PublicKey,
			RecentBlockhash: blockhash,
			Instructions:    instructions,
		}),
		Signers: []types.Account{e.signer},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionError, err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionError, err)
	}
	txBase64 := base64.StdEncoding.EncodeToString(raw)

	log.Info().
		Str("pool", tok.Pool.String()).
		Str("ticker", tok.Ticker).
		Uint64("spend", e.config.LamportAmount).
		Uint64("tokens_out", tokensOut).
		Uint64("max_cost", maxCost).
		Msg("executor: attempting acquisition")

	if e.config.UseLeaderSend {
		if err := e.sendDirect(ctx, txBase64); err == nil {
			e.directSends.Add(1)
			return nil
		} else {
			// Any direct-path failure falls back to the relay.
			log.Warn().Err(err).Msg("executor: direct send failed, falling back to relay")
		}
	}

	if err := e.relay.Send(ctx, txBase64); err != nil {
		e.failures.Add(1)
		return fmt.Errorf("%w: %v", ErrTransactionError, err)
	}
	e.relaySends.Add(1)
	return nil
}

func (e *Engine) sendDirect(ctx context.Context, txBase64 string) error {
	endpoint, err := e.leaders.Endpoint(ctx)
	if err != nil {
		return err
	}
	return e.direct.Send(ctx, endpoint, txBase64)
}

// ---------------------------------------------------------------------------
// Instruction builders
// ---------------------------------------------------------------------------

// createATAIdempotentIx builds a CreateIdempotent associated-token-account
// instruction, parameterized on the token program so extended-standard
// mints resolve their own address space.
func createATAIdempotentIx(payer, owner, mint, tokenProgram solana.Pubkey) types.Instruction {
	ata := solana.AssociatedTokenAddress(owner, mint, tokenProgram)
	return types.Instruction{
		ProgramID: solana.AssociatedTokenProgram.Common(),
		Accounts: []types.AccountMeta{
			{PubKey: payer.Common(), IsSigner: true, IsWritable: true},
			{PubKey: ata.Common(), IsWritable: true},
			{PubKey: owner.Common()},
			{PubKey: mint.Common()},
			{PubKey: solana.SystemProgram.Common()},
			{PubKey: tokenProgram.Common()},
		},
		Data: []byte{1}, // CreateIdempotent
	}
}

// buyIx builds the curve-program buy with its full 16-account list.
func buyIx(tok *pool.Token, wallet, tokenProgram solana.Pubkey, amount, maxCost uint64) types.Instruction {
	userATA := solana.AssociatedTokenAddress(wallet, tok.Mint, tokenProgram)
	curveATA := solana.AssociatedTokenAddress(tok.BondingCurve, tok.Mint, tokenProgram)

	data := make([]byte, 0, 24)
	data = append(data, buyDiscriminator[:]...)
	data = binary.LittleEndian.AppendUint64(data, amount)
	data = binary.LittleEndian.AppendUint64(data, maxCost)

	return types.Instruction{
		ProgramID: solana.PumpProgram.Common(),
		Accounts: []types.AccountMeta{
			{PubKey: solana.PumpGlobal.Common()},
			{PubKey: solana.PumpFeeRecipient.Common(), IsWritable: true},
			{PubKey: tok.Mint.Common()},
			{PubKey: tok.BondingCurve.Common(), IsWritable: true},
			{PubKey: curveATA.Common(), IsWritable: true},
			{PubKey: userATA.Common(), IsWritable: true},
			{PubKey: wallet.Common(), IsSigner: true, IsWritable: true},
			{PubKey: solana.SystemProgram.Common()},
			{PubKey: tokenProgram.Common()},
			{PubKey: solana.CreatorVaultAddress(tok.Creator).Common(), IsWritable: true},
			{PubKey: solana.PumpEventAuthority.Common()},
			{PubKey: solana.PumpProgram.Common()},
			{PubKey: solana.GlobalVolumeAccumulatorAddress().Common(), IsWritable: true},
			{PubKey: solana.UserVolumeAccumulatorAddress(wallet).Common(), IsWritable: true},
			{PubKey: solana.FeeConfig.Common()},
			{PubKey: solana.FeeProgram.Common()},
		},
		Data: data,
	}
}

// ---------------------------------------------------------------------------
// Direct transport
// ---------------------------------------------------------------------------

// httpDirectSender posts sendTransaction straight at a producer endpoint
// with preflight disabled and zero node-side retries.
type httpDirectSender struct {
	client *http.Client
}

func (s *httpDirectSender) Send(ctx context.Context, endpoint, txBase64 string) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sendTransaction",
		"params": []any{
			txBase64,
			map[string]any{"encoding": "base64", "skipPreflight": true, "maxRetries": 0},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("executor: marshal direct send: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("executor: create direct send: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executor: direct send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("executor: read direct send response: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("executor: direct send HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("executor: parse direct send response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("executor: direct send error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return nil
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Attempts    int64 `json:"attempts"`
	DirectSends int64 `json:"direct_sends"`
	RelaySends  int64 `json:"relay_sends"`
	Failures    int64 `json:"failures"`
}

func (e *Engine) Stats() Stats {
	return Stats{
		Attempts:    e.attempts.Load(),
		DirectSends: e.directSends.Load(),
		RelaySends:  e.relaySends.Load(),
		Failures:    e.failures.Load(),
	}
}
