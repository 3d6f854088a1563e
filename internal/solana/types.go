package solana

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/mr-tron/base58"
)

// Pubkey is a raw 32-byte Solana public key. The base58 form is derived,
// never stored.
type Pubkey [32]byte

// Signature is a Solana transaction signature (base58 string).
type Signature string

// String returns the base58 encoding of the key.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether the key is the all-zero key.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Common converts to the SDK representation used for transaction building.
func (p Pubkey) Common() common.PublicKey {
	return common.PublicKeyFromBytes(p[:])
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != 32 {
		return Pubkey{}, fmt.Errorf("solana: invalid pubkey length %d", len(b))
	}
	var p Pubkey
	copy(p[:], b)
	return p, nil
}

// TryPubkeyFromBase58 parses a base58 string into a Pubkey. Used on
// untrusted input paths.
func TryPubkeyFromBase58(s string) (Pubkey, error) {
	data, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("solana: decode base58 pubkey %q: %w", s, err)
	}
	return PubkeyFromBytes(data)
}

// MustPubkey parses a base58 string, panicking on failure. For package-level
// constants only.
func MustPubkey(s string) Pubkey {
	p, err := TryPubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Well-known programs and accounts
// ---------------------------------------------------------------------------

var (
	// Programs.
	PumpProgram            = MustPubkey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	AMMProgram             = MustPubkey("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	SystemProgram          = MustPubkey("11111111111111111111111111111111")
	TokenProgram           = MustPubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022Program       = MustPubkey("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgram = MustPubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	MetaplexProgram        = MustPubkey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	FeeConfig              = MustPubkey("8Wf5TiAheLUqBrKXeYg2JtAFFMWtKdG2BSFgqUcPVwTt")
	FeeProgram             = MustPubkey("pfeeUxB6jkeY1Hxd7CsFCAjcbHA9rWtchMGdZ6VojVZ")

	// Accounts.
	PumpGlobal         = MustPubkey("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	PumpFeeRecipient   = MustPubkey("G5UZAVbAf46s7cKWoyKu8kYTip9DGTpbLZ2qa9Aq69dP")
	PumpEventAuthority = MustPubkey("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")

	// Mints.
	WSOLMint = MustPubkey("So11111111111111111111111111111111111111112")
)

// ---------------------------------------------------------------------------
// Program-derived addresses
// ---------------------------------------------------------------------------

func findProgramAddress(seeds [][]byte, program Pubkey) Pubkey {
	addr, _, err := common.FindProgramAddress(seeds, program.Common())
	if err != nil {
		// Only possible if no bump yields an off-curve point, which cannot
		// happen for fixed seed shapes used here.
		panic(fmt.Sprintf("solana: find program address: %v", err))
	}
	p, _ := PubkeyFromBytes(addr.Bytes())
	return p
}

// BondingCurveAddress derives the bonding-curve account for a mint.
func BondingCurveAddress(mint Pubkey) Pubkey {
	return findProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, PumpProgram)
}

// PoolAuthorityAddress derives the AMM pool authority for a mint.
func PoolAuthorityAddress(mint Pubkey) Pubkey {
	return findProgramAddress([][]byte{[]byte("pool-authority"), mint[:]}, PumpProgram)
}

// PoolAddress derives the canonical AMM pool for a mint. This is the primary
// key tokens are tracked under, even while they still trade on the curve.
func PoolAddress(mint Pubkey) Pubkey {
	authority := PoolAuthorityAddress(mint)
	index := []byte{0, 0} // pool index 0, little-endian u16
	return findProgramAddress(
		[][]byte{[]byte("pool"), index, authority[:], mint[:], WSOLMint[:]},
		AMMProgram,
	)
}

// MetadataAddress derives the Metaplex metadata account for a mint.
func MetadataAddress(mint Pubkey) Pubkey {
	return findProgramAddress(
		[][]byte{[]byte("metadata"), MetaplexProgram[:], mint[:]},
		MetaplexProgram,
	)
}

// CreatorVaultAddress derives the pump creator fee vault.
func CreatorVaultAddress(creator Pubkey) Pubkey {
	return findProgramAddress([][]byte{[]byte("creator-vault"), creator[:]}, PumpProgram)
}

// GlobalVolumeAccumulatorAddress derives the global volume accumulator.
func GlobalVolumeAccumulatorAddress() Pubkey {
	return findProgramAddress([][]byte{[]byte("global_volume_accumulator")}, PumpProgram)
}

// UserVolumeAccumulatorAddress derives a user's volume accumulator.
func UserVolumeAccumulatorAddress(user Pubkey) Pubkey {
	return findProgramAddress([][]byte{[]byte("user_volume_accumulator"), user[:]}, PumpProgram)
}

// AssociatedTokenAddress derives the ATA for a wallet and mint under the
// given token program (legacy or token-2022).
func AssociatedTokenAddress(wallet, mint, tokenProgram Pubkey) Pubkey {
	return findProgramAddress(
		[][]byte{wallet[:], tokenProgram[:], mint[:]},
		AssociatedTokenProgram,
	)
}
