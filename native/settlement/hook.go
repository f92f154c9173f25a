package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/core/events"
	"upiramp/native/ticket"
)

var (
	// ErrDeadlineExpired indicates the ticket deadline has passed.
	ErrDeadlineExpired = errors.New("settlement: deadline expired")
	// ErrTicketUsed indicates the transaction id has already settled.
	ErrTicketUsed = errors.New("settlement: ticket used")
	// ErrTicketMissing indicates the hook does not own an active ticket for the id.
	ErrTicketMissing = errors.New("settlement: ticket missing")
	// ErrPaused indicates the hook pause switch is engaged.
	ErrPaused = errors.New("settlement: paused")
	// ErrAmountExceedsLimit indicates the funded amount breaches the per-tx cap.
	ErrAmountExceedsLimit = errors.New("settlement: amount exceeds limit")
)

// Mode selects how the swap interprets the ticket amounts.
type Mode string

const (
	// ModeExactInput fixes the input leg and bounds the output from below.
	ModeExactInput Mode = "exact_in"
	// ModeExactOutput fixes the output leg and bounds the input from above.
	ModeExactOutput Mode = "exact_out"
)

// TicketData is the decoded authorisation payload validated immediately
// before fund movement.
type TicketData struct {
	TransactionID string
	User          common.Address
	Deadline      int64
	MinOut        *big.Int
	MaxIn         *big.Int
	Mode          Mode
}

// Hook validates and consumes tickets ahead of settlement and instructs the
// vault to fund the swap's input leg. The check-then-burn ordering makes
// replay structurally impossible: the used marker and the ticket burn both
// land before any funds move for the same transaction.
type Hook struct {
	mu       sync.Mutex
	addr     common.Address
	owner    common.Address
	tickets  *ticket.Ledger
	vault    *Vault
	used     map[string]bool
	paused   bool
	maxPerTx map[string]*big.Int
	emitter  events.Emitter
	clock    func() time.Time
}

// NewHook constructs the settlement hook with its own identity address, the
// operator, and its collaborating ledgers.
func NewHook(addr, owner common.Address, tickets *ticket.Ledger, vault *Vault) (*Hook, error) {
	if tickets == nil {
		return nil, fmt.Errorf("settlement: ticket ledger required")
	}
	if vault == nil {
		return nil, fmt.Errorf("settlement: vault required")
	}
	return &Hook{
		addr:     addr,
		owner:    owner,
		tickets:  tickets,
		vault:    vault,
		used:     make(map[string]bool),
		maxPerTx: make(map[string]*big.Int),
		emitter:  events.NoopEmitter{},
		clock:    time.Now,
	}, nil
}

// SetEmitter configures the event sink. Passing nil resets to a no-op sink.
func (h *Hook) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	h.mu.Lock()
	h.emitter = emitter
	h.mu.Unlock()
}

// SetClock overrides the time source, primarily for deterministic tests.
func (h *Hook) SetClock(clock func() time.Time) {
	if h == nil || clock == nil {
		return
	}
	h.mu.Lock()
	h.clock = clock
	h.mu.Unlock()
}

// Address returns the hook's identity, the required owner of consumable tickets.
func (h *Hook) Address() common.Address { return h.addr }

// ValidateAndConsume burns the ticket for the transaction after checking the
// pause switch, the deadline, the used set, and active ownership. Callers must
// invoke it before any fund movement for the same transaction.
func (h *Hook) ValidateAndConsume(ctx context.Context, data TicketData) error {
	h.mu.Lock()
	if h.paused {
		h.mu.Unlock()
		return ErrPaused
	}
	now := h.clock()
	if data.Deadline > 0 && now.Unix() > data.Deadline {
		h.mu.Unlock()
		return ErrDeadlineExpired
	}
	if h.used[data.TransactionID] {
		h.mu.Unlock()
		return ErrTicketUsed
	}
	owner, err := h.tickets.OwnerOf(data.TransactionID)
	if err != nil || owner != h.addr {
		h.mu.Unlock()
		return ErrTicketMissing
	}
	h.used[data.TransactionID] = true
	emitter := h.emitter
	h.mu.Unlock()

	if err := h.tickets.Burn(ctx, h.addr, data.TransactionID); err != nil {
		h.mu.Lock()
		delete(h.used, data.TransactionID)
		h.mu.Unlock()
		return fmt.Errorf("burn ticket: %w", err)
	}
	emitter.Emit(events.TicketConsumed{TransactionID: data.TransactionID, User: data.User})
	return nil
}

// RollbackConsume reverses ValidateAndConsume after a downstream settlement
// failure: the used marker clears and the ticket is reinstated to the hook so
// a fresh submission can retry with the same authorisation.
func (h *Hook) RollbackConsume(ctx context.Context, data TicketData) error {
	if err := h.tickets.Reinstate(ctx, h.addr, data.TransactionID, h.addr); err != nil {
		return fmt.Errorf("reinstate ticket: %w", err)
	}
	h.mu.Lock()
	delete(h.used, data.TransactionID)
	h.mu.Unlock()
	return nil
}

// SettleFunding runs during the settlement engine callback, after the swap
// math has fixed the consumed input. It enforces the per-asset per-transaction
// cap and instructs the vault to pay exactly that amount to the engine.
func (h *Hook) SettleFunding(asset string, amount *big.Int, to common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	h.mu.Lock()
	if h.paused {
		h.mu.Unlock()
		return ErrPaused
	}
	limit := h.maxPerTx[assetKey(asset)]
	h.mu.Unlock()
	if limit != nil && limit.Sign() > 0 && amount.Cmp(limit) > 0 {
		return ErrAmountExceedsLimit
	}
	return h.vault.Pay(h.addr, asset, amount, to)
}

// RollbackFunding returns a vault payment to the pool after a later failure
// inside the same settlement transaction.
func (h *Hook) RollbackFunding(asset string, amount *big.Int) error {
	return h.vault.Refund(h.addr, asset, amount)
}

// SetPaused toggles the validation pause switch. Owner-gated.
func (h *Hook) SetPaused(caller common.Address, paused bool) error {
	h.mu.Lock()
	if caller != h.owner {
		h.mu.Unlock()
		return ErrNotOwner
	}
	h.paused = paused
	emitter := h.emitter
	h.mu.Unlock()
	emitter.Emit(events.PauseChanged{Component: "hook", Paused: paused})
	return nil
}

// Paused reports the pause switch state.
func (h *Hook) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// SetMaxPerTx sets the per-asset per-transaction spending cap. Zero removes
// the cap. Owner-gated.
func (h *Hook) SetMaxPerTx(caller common.Address, asset string, limit *big.Int) error {
	key := assetKey(asset)
	h.mu.Lock()
	if caller != h.owner {
		h.mu.Unlock()
		return ErrNotOwner
	}
	if limit == nil || limit.Sign() <= 0 {
		delete(h.maxPerTx, key)
	} else {
		h.maxPerTx[key] = new(big.Int).Set(limit)
	}
	emitter := h.emitter
	h.mu.Unlock()

	value := "0"
	if limit != nil {
		value = limit.String()
	}
	emitter.Emit(events.TxLimitSet{Asset: key, Limit: value})
	return nil
}

// MaxPerTx returns the cap for an asset; nil means unlimited.
func (h *Hook) MaxPerTx(asset string) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	limit, ok := h.maxPerTx[assetKey(asset)]
	if !ok {
		return nil
	}
	return new(big.Int).Set(limit)
}

// Used reports whether a transaction id has already settled.
func (h *Hook) Used(transactionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used[transactionID]
}
