package venue

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type poolState struct {
	reserveA *big.Int
	reserveB *big.Int
}

// ConstantProduct is a reference x*y=k venue backing development and tests.
// Production deployments point the router at a real settlement engine; this
// implementation only has to honour the Venue contract, not market fidelity.
type ConstantProduct struct {
	mu    sync.Mutex
	pools map[common.Hash]*poolState
}

// NewConstantProduct constructs an empty reference venue.
func NewConstantProduct() *ConstantProduct {
	return &ConstantProduct{pools: make(map[common.Hash]*poolState)}
}

// AddLiquidity seeds or tops up a pool's reserves. Amounts follow the
// normalized key ordering.
func (v *ConstantProduct) AddLiquidity(key PoolKey, amountA, amountB *big.Int) error {
	if !key.Valid() {
		return ErrInvalidKey
	}
	if amountA == nil || amountB == nil || amountA.Sign() < 0 || amountB.Sign() < 0 {
		return ErrInsufficientLiquidity
	}
	id := key.ID()
	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[id]
	if !ok {
		pool = &poolState{reserveA: big.NewInt(0), reserveB: big.NewInt(0)}
		v.pools[id] = pool
	}
	pool.reserveA.Add(pool.reserveA, amountA)
	pool.reserveB.Add(pool.reserveB, amountB)
	return nil
}

// Reserves returns a snapshot of the pool reserves in normalized order.
func (v *ConstantProduct) Reserves(key PoolKey) (*big.Int, *big.Int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[key.ID()]
	if !ok {
		return nil, nil, false
	}
	return new(big.Int).Set(pool.reserveA), new(big.Int).Set(pool.reserveB), true
}

// Swap executes one constant-product swap with the fee applied on input.
func (v *ConstantProduct) Swap(key PoolKey, params SwapParams) (SwapResult, error) {
	if !key.Valid() {
		return SwapResult{}, ErrInvalidKey
	}
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return SwapResult{}, ErrInsufficientLiquidity
	}
	normalized := key.Normalize()
	id := key.ID()

	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[id]
	if !ok {
		return SwapResult{}, ErrPoolNotFound
	}
	reserveIn, reserveOut := pool.reserveA, pool.reserveB
	assetIn, assetOut := normalized.AssetA, normalized.AssetB
	if !params.AToB {
		reserveIn, reserveOut = reserveOut, reserveIn
		assetIn, assetOut = assetOut, assetIn
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return SwapResult{}, ErrInsufficientLiquidity
	}

	// amountOut = reserveOut * effectiveIn / (reserveIn + effectiveIn)
	feeDenom := big.NewInt(10_000)
	effectiveIn := new(big.Int).Mul(params.AmountIn, new(big.Int).Sub(feeDenom, big.NewInt(int64(normalized.FeeBps))))
	numerator := new(big.Int).Mul(reserveOut, effectiveIn)
	denominator := new(big.Int).Mul(reserveIn, feeDenom)
	denominator.Add(denominator, effectiveIn)
	amountOut := numerator.Quo(numerator, denominator)

	if amountOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return SwapResult{}, ErrInsufficientLiquidity
	}
	if params.MinAmountOut != nil && amountOut.Cmp(params.MinAmountOut) < 0 {
		return SwapResult{}, ErrInsufficientOutput
	}

	reserveIn.Add(reserveIn, params.AmountIn)
	reserveOut.Sub(reserveOut, amountOut)

	return SwapResult{
		AssetIn:   assetIn,
		AmountIn:  new(big.Int).Set(params.AmountIn),
		AssetOut:  assetOut,
		AmountOut: amountOut,
	}, nil
}

// Unwind reverses a previously executed swap, restoring the exact pre-swap
// reserves. The result must be the unmodified value returned by Swap.
func (v *ConstantProduct) Unwind(key PoolKey, result SwapResult) error {
	if !key.Valid() {
		return ErrInvalidKey
	}
	if result.AmountIn == nil || result.AmountOut == nil {
		return ErrInsufficientLiquidity
	}
	normalized := key.Normalize()
	v.mu.Lock()
	defer v.mu.Unlock()
	pool, ok := v.pools[key.ID()]
	if !ok {
		return ErrPoolNotFound
	}
	reserveIn := pool.reserveA
	reserveOut := pool.reserveB
	if result.AssetIn != normalized.AssetA {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	if reserveIn.Cmp(result.AmountIn) < 0 {
		return ErrInsufficientLiquidity
	}
	reserveIn.Sub(reserveIn, result.AmountIn)
	reserveOut.Add(reserveOut, result.AmountOut)
	return nil
}
