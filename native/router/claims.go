package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/observability"
)

// ErrInsufficientClaim indicates a take exceeds the current claim balance.
var ErrInsufficientClaim = errors.New("claims: insufficient balance")

// ClaimStore persists claim balances so liabilities survive restarts.
type ClaimStore interface {
	SaveClaimBalance(ctx context.Context, user common.Address, asset string, amount *big.Int) error
	LoadClaimBalances(ctx context.Context) (map[common.Address]map[string]*big.Int, error)
}

// Claims tracks redeemable (user, asset) balances left over from swaps whose
// output was not immediately paid out. It is a liability ledger, deliberately
// separate from the vault's pooled treasury.
type Claims struct {
	mu       sync.RWMutex
	balances map[common.Address]map[string]*big.Int
	totals   map[string]*big.Int
	persist  ClaimStore
	metrics  *observability.SettlementMetrics
}

// NewClaims constructs an empty claim ledger.
func NewClaims() *Claims {
	return &Claims{
		balances: make(map[common.Address]map[string]*big.Int),
		totals:   make(map[string]*big.Int),
		metrics:  observability.Settlement(),
	}
}

// SetStore wires persistence and restores previously saved balances.
func (c *Claims) SetStore(ctx context.Context, store ClaimStore) error {
	if store == nil {
		return nil
	}
	restored, err := store.LoadClaimBalances(ctx)
	if err != nil {
		return fmt.Errorf("load claim balances: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persist = store
	for user, assets := range restored {
		for asset, amount := range assets {
			if amount == nil || amount.Sign() <= 0 {
				continue
			}
			c.creditLocked(user, claimAsset(asset), new(big.Int).Set(amount))
		}
	}
	return nil
}

// Credit increases a claim balance. Callers hold the settlement lock.
func (c *Claims) Credit(ctx context.Context, user common.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	key := claimAsset(asset)
	c.mu.Lock()
	balance := c.creditLocked(user, key, amount)
	total := new(big.Int).Set(c.totals[key])
	persist := c.persist
	c.mu.Unlock()

	if persist != nil {
		if err := persist.SaveClaimBalance(ctx, user, key, balance); err != nil {
			c.mu.Lock()
			c.debitLocked(user, key, amount)
			c.mu.Unlock()
			return fmt.Errorf("persist claim: %w", err)
		}
	}
	c.metrics.SetClaimLiability(key, total)
	return nil
}

// Debit decreases a claim balance, failing when the balance cannot cover the
// amount. Callers hold the settlement lock.
func (c *Claims) Debit(ctx context.Context, user common.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	key := claimAsset(asset)
	c.mu.Lock()
	current := c.balanceLocked(user, key)
	if current.Cmp(amount) < 0 {
		c.mu.Unlock()
		return ErrInsufficientClaim
	}
	balance := c.debitLocked(user, key, amount)
	total := new(big.Int).Set(c.totals[key])
	persist := c.persist
	c.mu.Unlock()

	if persist != nil {
		if err := persist.SaveClaimBalance(ctx, user, key, balance); err != nil {
			c.mu.Lock()
			c.creditLocked(user, key, amount)
			c.mu.Unlock()
			return fmt.Errorf("persist claim: %w", err)
		}
	}
	c.metrics.SetClaimLiability(key, total)
	return nil
}

// Balance returns the current claim balance for a (user, asset) pair.
func (c *Claims) Balance(user common.Address, asset string) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceLocked(user, claimAsset(asset))
}

// Outstanding returns the total liability for an asset across all users.
func (c *Claims) Outstanding(asset string) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total, ok := c.totals[claimAsset(asset)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(total)
}

func (c *Claims) balanceLocked(user common.Address, asset string) *big.Int {
	assets, ok := c.balances[user]
	if !ok {
		return big.NewInt(0)
	}
	balance, ok := assets[asset]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (c *Claims) creditLocked(user common.Address, asset string, amount *big.Int) *big.Int {
	assets, ok := c.balances[user]
	if !ok {
		assets = make(map[string]*big.Int)
		c.balances[user] = assets
	}
	balance, ok := assets[asset]
	if !ok {
		balance = big.NewInt(0)
		assets[asset] = balance
	}
	balance.Add(balance, amount)
	total, ok := c.totals[asset]
	if !ok {
		total = big.NewInt(0)
		c.totals[asset] = total
	}
	total.Add(total, amount)
	return new(big.Int).Set(balance)
}

func (c *Claims) debitLocked(user common.Address, asset string, amount *big.Int) *big.Int {
	assets := c.balances[user]
	balance := assets[asset]
	balance.Sub(balance, amount)
	c.totals[asset].Sub(c.totals[asset], amount)
	return new(big.Int).Set(balance)
}

func claimAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
