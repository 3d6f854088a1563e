package geyser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/curvex-trading/curvex/internal/codec"
	"github.com/curvex-trading/curvex/internal/solana"
	"github.com/curvex-trading/curvex/internal/stream"
)

// ---------------------------------------------------------------------------
// Geyser Monitor — alternate ingestion over a yellowstone gRPC entry stream
// Lower latency than logsSubscribe: full transactions arrive with account
// keys, so create launches can be extracted from instruction data even when
// the event log is truncated.
// ---------------------------------------------------------------------------

// Config configures the geyser monitor.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	XToken           string        `yaml:"x_token"`
	Insecure         bool          `yaml:"insecure"` // plaintext, for local test endpoints
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	QueueSize        int           `yaml:"queue_size"`
}

// DefaultConfig returns defaults; the endpoint is provider-specific and has
// no useful default.
func DefaultConfig() Config {
	return Config{
		ReconnectBackoff: 2 * time.Second,
		PingInterval:     10 * time.Second,
		QueueSize:        1000,
	}
}

// Monitor subscribes to confirmed transactions mentioning the curve program
// and emits the same envelopes as the ws stream monitor, so the pipeline
// consumes either source.
type Monitor struct {
	config Config
	out    chan stream.Envelope

	// Stats.
	updatesRecv   atomic.Int64
	eventsEmitted atomic.Int64
	decodeErrors  atomic.Int64
	reconnects    atomic.Int64
}

// NewMonitor creates a geyser monitor.
func NewMonitor(config Config) *Monitor {
	if config.ReconnectBackoff == 0 {
		config.ReconnectBackoff = 2 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	return &Monitor{
		config: config,
		out:    make(chan stream.Envelope, config.QueueSize),
	}
}

// Start launches the subscription loop. The returned channel closes when ctx
// is cancelled.
func (m *Monitor) Start(ctx context.Context) <-chan stream.Envelope {
	go func() {
		defer close(m.out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := m.run(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("geyser: stream ended, reconnecting")
			}
			m.reconnects.Add(1)

			select {
			case <-ctx.Done():
				return
			case <-time.After(m.config.ReconnectBackoff):
			}
		}
	}()
	return m.out
}

// run holds one connection and subscription until it fails.
func (m *Monitor) run(ctx context.Context) error {
	creds := credentials.NewTLS(&tls.Config{})
	if m.config.Insecure {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.NewClient(
		m.config.Endpoint,
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return fmt.Errorf("geyser: dial %s: %w", m.config.Endpoint, err)
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if m.config.XToken != "" {
		streamCtx = metadata.NewOutgoingContext(streamCtx,
			metadata.New(map[string]string{"x-token": m.config.XToken}))
	}

	client := pb.NewGeyserClient(conn)
	sub, err := client.Subscribe(streamCtx)
	if err != nil {
		return fmt.Errorf("geyser: subscribe: %w", err)
	}
	if err := sub.Send(subscribeRequest()); err != nil {
		return fmt.Errorf("geyser: send subscribe request: %w", err)
	}
	log.Info().Str("endpoint", m.config.Endpoint).Msg("geyser: listening")

	go m.pingLoop(streamCtx, sub)

	for {
		update, err := sub.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("geyser: stream closed by server")
			}
			return fmt.Errorf("geyser: recv: %w", err)
		}
		m.updatesRecv.Add(1)

		if tx := update.GetTransaction(); tx != nil {
			m.handleTransaction(ctx, tx)
		}
	}
}

func subscribeRequest() *pb.SubscribeRequest {
	vote := false
	failed := false
	commitment := pb.CommitmentLevel_CONFIRMED
	return &pb.SubscribeRequest{
		Transactions: map[string]*pb.SubscribeRequestFilterTransactions{
			"launches": {
				Vote:           &vote,
				Failed:         &failed,
				AccountInclude: []string{solana.PumpProgram.String()},
			},
		},
		Commitment: &commitment,
	}
}

func (m *Monitor) pingLoop(ctx context.Context, sub pb.Geyser_SubscribeClient) {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sub.Send(&pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: 1}}); err != nil {
				log.Debug().Err(err).Msg("geyser: ping failed")
				return
			}
		}
	}
}

// handleTransaction emits every decodable event from the transaction log,
// then falls back to instruction extraction for launches whose log line was
// truncated.
func (m *Monitor) handleTransaction(ctx context.Context, update *pb.SubscribeUpdateTransaction) {
	info := update.GetTransaction()
	if info == nil {
		return
	}
	capturedAt := time.Now()
	signature := base58.Encode(info.GetSignature())

	sawCreate := false
	if meta := info.GetMeta(); meta != nil {
		for _, line := range meta.GetLogMessages() {
			payload, ok := codec.ExtractLogPayload(line)
			if !ok {
				continue
			}
			event, err := codec.DecodeBase64(payload)
			if err != nil {
				m.decodeErrors.Add(1)
				continue
			}
			if event.EventKind() == codec.KindCreate {
				sawCreate = true
			}
			m.emit(ctx, event, signature, update.GetSlot(), capturedAt)
		}
	}

	if !sawCreate {
		if event := extractCreate(info); event != nil {
			m.emit(ctx, event, signature, update.GetSlot(), capturedAt)
		}
	}
}

func (m *Monitor) emit(ctx context.Context, event codec.Event, signature string, slot uint64, capturedAt time.Time) {
	env := stream.Envelope{
		Event:      event,
		Program:    solana.PumpProgram,
		Signature:  signature,
		Slot:       slot,
		CapturedAt: capturedAt,
	}
	select {
	case m.out <- env:
		m.eventsEmitted.Add(1)
	case <-ctx.Done():
	}
}

// Create-instruction account positions.
const (
	createIxMintPos         = 0
	createIxBondingCurvePos = 2
	createIxUserPos         = 7
	createIxMinAccounts     = 8
)

// extractCreate scans top-level instructions for a curve-program create and
// rebuilds the launch event from instruction args and resolved accounts.
// Every account index is bounds-checked; anything malformed returns nil.
func extractCreate(info *pb.SubscribeUpdateTransactionInfo) codec.Event {
	tx := info.GetTransaction()
	if tx == nil || tx.GetMessage() == nil {
		return nil
	}
	message := tx.GetMessage()

	// Indexes reach past the static keys into the loaded lookup-table
	// addresses, writable first.
	keys := message.GetAccountKeys()
	if meta := info.GetMeta(); meta != nil {
		loaded := len(meta.GetLoadedWritableAddresses()) + len(meta.GetLoadedReadonlyAddresses())
		if loaded > 0 {
			full := make([][]byte, 0, len(keys)+loaded)
			full = append(full, keys...)
			full = append(full, meta.GetLoadedWritableAddresses()...)
			full = append(full, meta.GetLoadedReadonlyAddresses()...)
			keys = full
		}
	}

	for _, ix := range message.GetInstructions() {
		program, err := resolveKey(keys, ix.GetProgramIdIndex())
		if err != nil || program != solana.PumpProgram {
			continue
		}
		data := ix.GetData()
		if len(data) < 8 || [8]byte(data[:8]) != codec.CreateInstructionDiscriminator {
			continue
		}
		args, err := codec.DecodeCreateArgs(data)
		if err != nil {
			continue
		}

		accounts := ix.GetAccounts()
		if len(accounts) < createIxMinAccounts {
			continue
		}
		mint, errMint := resolveKey(keys, uint32(accounts[createIxMintPos]))
		bondingCurve, errCurve := resolveKey(keys, uint32(accounts[createIxBondingCurvePos]))
		user, errUser := resolveKey(keys, uint32(accounts[createIxUserPos]))
		if errMint != nil || errCurve != nil || errUser != nil {
			continue
		}

		return &codec.CreateEvent{
			Name:         args.Name,
			Symbol:       args.Symbol,
			URI:          args.URI,
			Mint:         mint,
			BondingCurve: bondingCurve,
			User:         user,
			Timestamp:    time.Now().Unix(),
		}
	}
	return nil
}

// resolveKey maps a message account index to its pubkey with bounds checks.
func resolveKey(keys [][]byte, index uint32) (solana.Pubkey, error) {
	if int(index) >= len(keys) {
		return solana.Pubkey{}, fmt.Errorf("geyser: account index %d out of range (%d keys)", index, len(keys))
	}
	return solana.PubkeyFromBytes(keys[index])
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	UpdatesRecv   int64 `json:"updates_recv"`
	EventsEmitted int64 `json:"events_emitted"`
	DecodeErrors  int64 `json:"decode_errors"`
	Reconnects    int64 `json:"reconnects"`
}

func (m *Monitor) Stats() Stats {
	return Stats{
		UpdatesRecv:   m.updatesRecv.Load(),
		EventsEmitted: m.eventsEmitted.Load(),
		DecodeErrors:  m.decodeErrors.Load(),
		Reconnects:    m.reconnects.Load(),
	}
}
