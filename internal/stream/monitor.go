package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/curvex-trading/curvex/internal/codec"
	"github.com/curvex-trading/curvex/internal/solana"
)

// ---------------------------------------------------------------------------
// Stream Monitor — per-program logsSubscribe state machines
// Each watched program runs its own independently reconnecting loop:
// Disconnected -> Connecting -> Subscribed -> Listening -> Disconnected.
// ---------------------------------------------------------------------------

// Config configures the log-stream monitor.
type Config struct {
	WSEndpoint        string          `yaml:"ws_endpoint"`
	Programs          []solana.Pubkey `yaml:"-"`
	ConnectBackoff    time.Duration   `yaml:"connect_backoff"`
	SubscribeBackoff  time.Duration   `yaml:"subscribe_backoff"`
	HeartbeatInterval time.Duration   `yaml:"heartbeat_interval"`
	QueueSize         int             `yaml:"queue_size"`
}

// DefaultConfig returns mainnet defaults watching the curve program only.
func DefaultConfig() Config {
	return Config{
		WSEndpoint:        "wss://api.mainnet-beta.solana.com",
		Programs:          []solana.Pubkey{solana.PumpProgram},
		ConnectBackoff:    5 * time.Second,
		SubscribeBackoff:  1 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		QueueSize:         1000,
	}
}

// Envelope pairs a decoded event with its capture time. The capture time
// gates downstream freshness decisions.
type Envelope struct {
	Event      codec.Event
	Program    solana.Pubkey
	Signature  string
	Slot       uint64
	CapturedAt time.Time
}

// Monitor runs one subscription loop per configured program and fans all
// decoded events into a single bounded channel.
type Monitor struct {
	config Config
	out    chan Envelope

	// Stats.
	messagesRecv  atomic.Int64
	eventsEmitted atomic.Int64
	decodeErrors  atomic.Int64
	reconnects    atomic.Int64
	connected     atomic.Int64 // currently connected program loops
}

// NewMonitor creates a monitor. Events appear on the channel returned by
// Start.
func NewMonitor(config Config) *Monitor {
	if config.ConnectBackoff == 0 {
		config.ConnectBackoff = 5 * time.Second
	}
	if config.SubscribeBackoff == 0 {
		config.SubscribeBackoff = 1 * time.Second
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 15 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	return &Monitor{
		config: config,
		out:    make(chan Envelope, config.QueueSize),
	}
}

// Start launches every program loop. The returned channel closes only after
// all loops have terminated, which happens when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) <-chan Envelope {
	var wg sync.WaitGroup
	for _, program := range m.config.Programs {
		wg.Add(1)
		go func(p solana.Pubkey) {
			defer wg.Done()
			m.runProgram(ctx, p)
		}(program)
	}
	go func() {
		wg.Wait()
		close(m.out)
	}()
	return m.out
}

// runProgram is the reconnecting state machine for one subscription.
func (m *Monitor) runProgram(ctx context.Context, program solana.Pubkey) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := m.connect(ctx)
		if err != nil {
			log.Warn().Err(err).Str("program", program.String()).Msg("stream: connect failed")
			m.reconnects.Add(1)
			if !sleepCtx(ctx, m.config.ConnectBackoff) {
				return
			}
			continue
		}

		if err := m.subscribe(conn, program); err != nil {
			log.Warn().Err(err).Str("program", program.String()).Msg("stream: subscribe failed")
			conn.Close()
			m.reconnects.Add(1)
			if !sleepCtx(ctx, m.config.SubscribeBackoff) {
				return
			}
			continue
		}

		m.connected.Add(1)
		log.Info().Str("program", program.String()).Msg("stream: listening")

		m.listen(ctx, conn, program)

		m.connected.Add(-1)
		conn.Close()
		m.reconnects.Add(1)
		if !sleepCtx(ctx, m.config.ConnectBackoff) {
			return
		}
	}
}

func (m *Monitor) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, m.config.WSEndpoint, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("stream: dial: %w", err)
	}
	return conn, nil
}

func (m *Monitor) subscribe(conn *websocket.Conn, program solana.Pubkey) error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{program.String()}},
			map[string]any{"commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("stream: write subscribe: %w", err)
	}
	return nil
}

// listen reads frames until error or cancellation. A heartbeat goroutine
// pings on a fixed interval and is stopped when the read loop exits.
func (m *Monitor) listen(ctx context.Context, conn *websocket.Conn, program solana.Pubkey) {
	var writeMu sync.Mutex

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)

	// Unblock the pending read when the context ends.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-heartbeatDone:
		}
	}()

	go func() {
		ticker := time.NewTicker(m.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				writeMu.Unlock()
				if err != nil {
					log.Debug().Err(err).Msg("stream: heartbeat failed")
					return
				}
			}
		}
	}()

	// Inbound pings get a pong on the shared writer.
	conn.SetPingHandler(func(appData string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Str("program", program.String()).Msg("stream: connection closed")
			} else {
				log.Warn().Err(err).Str("program", program.String()).Msg("stream: read error, reconnecting")
			}
			return
		}

		m.messagesRecv.Add(1)
		m.handleFrame(ctx, message, program)
	}
}

// handleFrame parses one notification envelope and emits every decodable
// event line. Decode failures drop the line, never the connection.
func (m *Monitor) handleFrame(ctx context.Context, data []byte, program solana.Pubkey) {
	var notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string   `json:"signature"`
					Logs      []string `json:"logs"`
				} `json:"value"`
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &notification); err != nil {
		return
	}
	if notification.Method != "logsNotification" {
		// Subscription confirmation or unrelated frame.
		return
	}

	capturedAt := time.Now()
	value := notification.Params.Result.Value

	for _, line := range value.Logs {
		payload, ok := codec.ExtractLogPayload(line)
		if !ok {
			continue
		}
		event, err := codec.DecodeBase64(payload)
		if err != nil {
			m.decodeErrors.Add(1)
			log.Debug().Err(err).Msg("stream: drop undecodable frame")
			continue
		}

		env := Envelope{
			Event:      event,
			Program:    program,
			Signature:  value.Signature,
			Slot:       notification.Params.Result.Context.Slot,
			CapturedAt: capturedAt,
		}
		select {
		case m.out <- env:
			m.eventsEmitted.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Connected     int64 `json:"connected"`
	MessagesRecv  int64 `json:"messages_recv"`
	EventsEmitted int64 `json:"events_emitted"`
	DecodeErrors  int64 `json:"decode_errors"`
	Reconnects    int64 `json:"reconnects"`
}

func (m *Monitor) Stats() Stats {
	return Stats{
		Connected:     m.connected.Load(),
		MessagesRecv:  m.messagesRecv.Load(),
		EventsEmitted: m.eventsEmitted.Load(),
		DecodeErrors:  m.decodeErrors.Load(),
		Reconnects:    m.reconnects.Load(),
	}
}
