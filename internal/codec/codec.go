package codec

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/near/borsh-go"

	"github.com/curvex-trading/curvex/internal/curve"
	"github.com/curvex-trading/curvex/internal/solana"
)

// ---------------------------------------------------------------------------
// Event Codec — discriminator-tagged borsh payloads from program logs
// ---------------------------------------------------------------------------

// LogDataPrefix marks log lines that carry a base64 event payload.
const LogDataPrefix = "Program data: "

var (
	ErrShortBuffer  = errors.New("codec: payload shorter than discriminator")
	ErrUnknownEvent = errors.New("codec: unknown event discriminator")
)

// Event discriminators (first 8 payload bytes).
var (
	discTrade   = [8]byte{0xbd, 0xdb, 0x7f, 0xd3, 0x4e, 0xe6, 0x61, 0xee}
	discCreate  = [8]byte{27, 114, 169, 77, 222, 235, 99, 118}
	discAMMBuy  = [8]byte{62, 47, 55, 10, 165, 3, 220, 42}
	discAMMSell = [8]byte{103, 244, 82, 31, 44, 245, 119, 119}
)

// CreateInstructionDiscriminator tags the create instruction on the wire,
// for ingestion paths that see instructions rather than emitted logs.
var CreateInstructionDiscriminator = [8]byte{214, 144, 76, 236, 95, 139, 49, 180}

// TokenTotalSupply is the fixed supply every launch mints.
const TokenTotalSupply = 1_000_000_000_000_000

// ExtractLogPayload returns the base64 payload of an event log line, or
// false when the line carries no event.
func ExtractLogPayload(line string) (string, bool) {
	idx := strings.Index(line, LogDataPrefix)
	if idx < 0 {
		return "", false
	}
	return line[idx+len(LogDataPrefix):], true
}

// DecodeBase64 decodes a base64-encoded event payload.
func DecodeBase64(payload string) (Event, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("codec: base64 decode: %w", err)
	}
	return Decode(data)
}

// Decode parses a raw event payload into a domain event. Trade payloads are
// by far the most frequent so they are matched first.
func Decode(data []byte) (Event, error) {
	if len(data) < 8 {
		return nil, ErrShortBuffer
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	body := data[8:]

	switch disc {
	case discTrade:
		return decodeTrade(body)
	case discCreate:
		return decodeCreate(body)
	case discAMMBuy:
		return decodeAMMTrade(body, true)
	case discAMMSell:
		return decodeAMMTrade(body, false)
	default:
		return nil, fmt.Errorf("%w: %x", ErrUnknownEvent, disc)
	}
}

func decodeTrade(body []byte) (Event, error) {
	var w tradeWire
	if err := borsh.Deserialize(&w, body); err != nil {
		return nil, fmt.Errorf("codec: decode trade: %w", err)
	}

	impact := curve.PriceImpact(
		w.VirtualSolReserves, w.VirtualTokenReserves,
		w.SolAmount, w.TokenAmount,
		w.IsBuy, TokenTotalSupply,
	)

	return &TradeEvent{
		Pool:              solana.PoolAddress(w.Mint),
		IsBuy:             w.IsBuy,
		SolAmount:         w.SolAmount,
		TokenAmount:       w.TokenAmount,
		User:              w.User,
		Timestamp:         w.Timestamp,
		SolReservesBefore: w.VirtualSolReserves,
		ImpliedMcapAfter:  impact.McapAfter,
		TokenReserves:     w.VirtualTokenReserves,
	}, nil
}

// decodeCreate tries the extended launch schema first and falls back to the
// legacy one, which predates the creator and reserve fields.
func decodeCreate(body []byte) (Event, error) {
	var v2 createV2Wire
	if err := borsh.Deserialize(&v2, body); err == nil {
		return &CreateEvent{
			Name:         v2.Name,
			Symbol:       v2.Symbol,
			URI:          v2.URI,
			Mint:         v2.Mint,
			BondingCurve: v2.BondingCurve,
			User:         v2.User,
			Timestamp:    v2.Timestamp,
			Token2022:    v2.TokenProgram == solana.Token2022Program,
		}, nil
	}
	return decodeCreateLegacy(body)
}

// decodeCreateLegacy reads the legacy create layout by hand. It ends with an
// optional token-2022 flag that borsh structs cannot express, so presence is
// decided by the bytes remaining after the fixed fields.
func decodeCreateLegacy(body []byte) (Event, error) {
	r := reader{buf: body}

	name, err := r.string()
	if err != nil {
		return nil, fmt.Errorf("codec: legacy create name: %w", err)
	}
	symbol, err := r.string()
	if err != nil {
		return nil, fmt.Errorf("codec: legacy create symbol: %w", err)
	}
	uri, err := r.string()
	if err != nil {
		return nil, fmt.Errorf("codec: legacy create uri: %w", err)
	}
	mint, err := r.pubkey()
	if err != nil {
		return nil, fmt.Errorf("codec: legacy create mint: %w", err)
	}
	bondingCurve, err := r.pubkey()
	if err != nil {
		return nil, fmt.Errorf("codec: legacy create bonding curve: %w", err)
	}
	user, err := r.pubkey()
	if err != nil {
		return nil, fmt.Errorf("codec: legacy create user: %w", err)
	}

	token2022 := false
	if b, ok := r.tryByte(); ok {
		token2022 = b != 0
	}

	return &CreateEvent{
		Name:         name,
		Symbol:       symbol,
		URI:          uri,
		Mint:         mint,
		BondingCurve: bondingCurve,
		User:         user,
		Token2022:    token2022,
	}, nil
}

// decodeAMMTrade normalizes a post-migration pool trade. The pool's base and
// quote sides are not fixed, so the token side is taken to be whichever
// reserve is larger. Only the reserves reorient; the amounts keep their
// base/quote positions.
func decodeAMMTrade(body []byte, isBuy bool) (Event, error) {
	var w ammTradeWire
	if err := borsh.Deserialize(&w, body); err != nil {
		return nil, fmt.Errorf("codec: decode pool trade: %w", err)
	}

	solReserves := w.PoolBaseTokenReserves
	tokenReserves := w.PoolQuoteTokenReserves
	if w.PoolBaseTokenReserves > w.PoolQuoteTokenReserves {
		solReserves, tokenReserves = tokenReserves, solReserves
	}

	return &TradeEvent{
		Pool:              w.Pool,
		IsBuy:             isBuy,
		SolAmount:         w.BaseAmount,
		TokenAmount:       w.QuoteAmount,
		User:              w.User,
		Timestamp:         w.Timestamp,
		SolReservesBefore: solReserves,
		ImpliedMcapAfter:  solReserves,
		TokenReserves:     tokenReserves,
	}, nil
}

// DecodeCreateArgs parses the borsh arguments of a create instruction,
// including the 8-byte instruction discriminator.
func DecodeCreateArgs(data []byte) (CreateArgs, error) {
	if len(data) < 8 {
		return CreateArgs{}, ErrShortBuffer
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	if disc != CreateInstructionDiscriminator {
		return CreateArgs{}, fmt.Errorf("%w: %x", ErrUnknownEvent, disc)
	}
	var args CreateArgs
	if err := borsh.Deserialize(&args, data[8:]); err != nil {
		return CreateArgs{}, fmt.Errorf("codec: decode create args: %w", err)
	}
	return args, nil
}

// ---------------------------------------------------------------------------
// Bounds-checked borsh reader
// ---------------------------------------------------------------------------

type reader struct {
	buf []byte
	pos int
}

func (r *reader) string() (string, error) {
	if r.pos+4 > len(r.buf) {
		return "", ErrShortBuffer
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	if n < 0 || r.pos+n > len(r.buf) {
		return "", ErrShortBuffer
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func (r *reader) pubkey() (solana.Pubkey, error) {
	if r.pos+32 > len(r.buf) {
		return solana.Pubkey{}, ErrShortBuffer
	}
	var p solana.Pubkey
	copy(p[:], r.buf[r.pos:r.pos+32])
	r.pos += 32
	return p, nil
}

func (r *reader) tryByte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}
