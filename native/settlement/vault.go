package settlement

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/core/events"
	"upiramp/observability"
)

var (
	// ErrNotVaultHook indicates a payment was requested by anything other
	// than the settlement hook.
	ErrNotVaultHook = errors.New("vault: caller is not hook")
	// ErrNotOwner indicates the caller lacks administrative authority.
	ErrNotOwner = errors.New("settlement: caller is not owner")
	// ErrInsufficientBalance indicates the pooled balance cannot cover a payment.
	ErrInsufficientBalance = errors.New("vault: insufficient balance")
	// ErrInvalidAmount indicates a nil or non-positive amount.
	ErrInvalidAmount = errors.New("vault: amount must be positive")
)

// Vault holds pooled treasury funds per asset. It carries no per-user
// accounting; amounts owed to users live in the claim ledger. Payments leave
// only through the hook.
type Vault struct {
	mu       sync.RWMutex
	owner    common.Address
	hook     common.Address
	balances map[string]*big.Int
	emitter  events.Emitter
	metrics  *observability.SettlementMetrics
}

// NewVault constructs an empty treasury bound to its operator and hook.
func NewVault(owner, hook common.Address) *Vault {
	return &Vault{
		owner:    owner,
		hook:     hook,
		balances: make(map[string]*big.Int),
		emitter:  events.NoopEmitter{},
		metrics:  observability.Settlement(),
	}
}

// SetEmitter configures the event sink. Passing nil resets to a no-op sink.
func (v *Vault) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	v.mu.Lock()
	v.emitter = emitter
	v.mu.Unlock()
}

// Fund credits the pooled balance for an asset. Owner-gated treasury top-up.
func (v *Vault) Fund(caller common.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	key := assetKey(asset)
	v.mu.Lock()
	if caller != v.owner {
		v.mu.Unlock()
		return ErrNotOwner
	}
	balance, ok := v.balances[key]
	if !ok {
		balance = big.NewInt(0)
		v.balances[key] = balance
	}
	balance.Add(balance, amount)
	snapshot := new(big.Int).Set(balance)
	emitter := v.emitter
	v.mu.Unlock()

	v.metrics.SetVaultBalance(key, snapshot)
	emitter.Emit(events.VaultFunded{Asset: key, Amount: new(big.Int).Set(amount)})
	return nil
}

// Pay moves pooled funds to the settlement engine on a transaction's behalf.
// Hook-only; fails when the pooled balance is insufficient.
func (v *Vault) Pay(caller common.Address, asset string, amount *big.Int, to common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	key := assetKey(asset)
	v.mu.Lock()
	if caller != v.hook {
		v.mu.Unlock()
		return ErrNotVaultHook
	}
	balance, ok := v.balances[key]
	if !ok || balance.Cmp(amount) < 0 {
		v.mu.Unlock()
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	snapshot := new(big.Int).Set(balance)
	emitter := v.emitter
	v.mu.Unlock()

	v.metrics.SetVaultBalance(key, snapshot)
	emitter.Emit(events.VaultPayment{Asset: key, Amount: new(big.Int).Set(amount), To: to})
	return nil
}

// Refund returns funds to the pool after a settlement rollback. Hook-only.
func (v *Vault) Refund(caller common.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	key := assetKey(asset)
	v.mu.Lock()
	if caller != v.hook {
		v.mu.Unlock()
		return ErrNotVaultHook
	}
	balance, ok := v.balances[key]
	if !ok {
		balance = big.NewInt(0)
		v.balances[key] = balance
	}
	balance.Add(balance, amount)
	snapshot := new(big.Int).Set(balance)
	v.mu.Unlock()

	v.metrics.SetVaultBalance(key, snapshot)
	return nil
}

// Balance returns the pooled balance for an asset.
func (v *Vault) Balance(asset string) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	balance, ok := v.balances[assetKey(asset)]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// Balances returns a snapshot of every pooled balance.
func (v *Vault) Balances() map[string]*big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]*big.Int, len(v.balances))
	for asset, balance := range v.balances {
		out[asset] = new(big.Int).Set(balance)
	}
	return out
}

func assetKey(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
