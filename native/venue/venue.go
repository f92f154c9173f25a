package venue

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrPoolNotFound indicates no pool is registered for the key.
	ErrPoolNotFound = errors.New("venue: pool not found")
	// ErrInsufficientLiquidity indicates reserves cannot satisfy the swap.
	ErrInsufficientLiquidity = errors.New("venue: insufficient liquidity")
	// ErrInsufficientOutput indicates the realised output fell below the minimum.
	ErrInsufficientOutput = errors.New("venue: insufficient output")
	// ErrInvalidKey indicates a malformed pool key.
	ErrInvalidKey = errors.New("venue: invalid pool key")
)

// PoolKey canonically identifies a swap execution venue: the asset pair, its
// fee tier and spacing, and the validating hook it is bound to.
type PoolKey struct {
	AssetA      string
	AssetB      string
	FeeBps      uint32
	TickSpacing int32
	Hook        common.Address
}

// Normalize returns the key with upper-cased symbols in canonical order.
func (k PoolKey) Normalize() PoolKey {
	a := strings.ToUpper(strings.TrimSpace(k.AssetA))
	b := strings.ToUpper(strings.TrimSpace(k.AssetB))
	if a > b {
		a, b = b, a
	}
	return PoolKey{AssetA: a, AssetB: b, FeeBps: k.FeeBps, TickSpacing: k.TickSpacing, Hook: k.Hook}
}

// Valid reports whether the key identifies a usable pool.
func (k PoolKey) Valid() bool {
	n := k.Normalize()
	return n.AssetA != "" && n.AssetB != "" && n.AssetA != n.AssetB
}

type hashedKey struct {
	AssetA      string
	AssetB      string
	FeeBps      uint32
	TickSpacing uint32
	Hook        common.Address
}

// ID derives the canonical hash used by the allowlist and all events.
func (k PoolKey) ID() common.Hash {
	n := k.Normalize()
	encoded, err := rlp.EncodeToBytes(hashedKey{
		AssetA:      n.AssetA,
		AssetB:      n.AssetB,
		FeeBps:      n.FeeBps,
		TickSpacing: uint32(n.TickSpacing),
		Hook:        n.Hook,
	})
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(encoded)
}

// SwapParams instructs a venue to execute one swap leg.
type SwapParams struct {
	// AToB selects the direction relative to the normalized key ordering.
	AToB bool
	// AmountIn is the input budget in base units.
	AmountIn *big.Int
	// MinAmountOut bounds the realised output from below.
	MinAmountOut *big.Int
}

// SwapResult reports the realised legs of an executed swap.
type SwapResult struct {
	AssetIn   string
	AmountIn  *big.Int
	AssetOut  string
	AmountOut *big.Int
}

// Venue is the settlement engine collaborator executing the actual swap math.
// Implementations must be side-effect free outside their own reserves; the
// router owns the transaction boundary around calls to Swap and compensates a
// committed swap through Unwind when a later step of the same settlement
// fails.
type Venue interface {
	Swap(key PoolKey, params SwapParams) (SwapResult, error)
	Unwind(key PoolKey, result SwapResult) error
}
