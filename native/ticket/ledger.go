package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/core/events"
)

var (
	// ErrAlreadyMinted indicates the transaction id has been minted before,
	// regardless of whether that ticket was later consumed.
	ErrAlreadyMinted = errors.New("ticket: already minted")
	// ErrNotExists indicates no active ticket exists for the transaction id.
	ErrNotExists = errors.New("ticket: token not exists")
	// ErrNotMinter indicates the caller lacks mint authority.
	ErrNotMinter = errors.New("ticket: not minter")
	// ErrNotHook indicates the caller is not the validating authority.
	ErrNotHook = errors.New("ticket: not hook")
	// ErrNotOwner indicates the caller does not own the active ticket.
	ErrNotOwner = errors.New("ticket: not owner")
	// ErrTransferRestricted indicates transfer-lock mode rejected the recipient.
	ErrTransferRestricted = errors.New("ticket: transfer restricted to hook")
	// ErrInvalidTransactionID indicates an empty or whitespace transaction id.
	ErrInvalidTransactionID = errors.New("ticket: transaction id required")
)

// Ticket statuses persisted by the audit store.
const (
	StatusActive   = "active"
	StatusConsumed = "consumed"
)

// Record captures the persisted view of one ticket.
type Record struct {
	TransactionID string
	Owner         common.Address
	Status        string
	MintedAt      time.Time
	ConsumedAt    time.Time
}

// Store persists ticket lifecycle transitions for audit.
type Store interface {
	SaveTicket(ctx context.Context, record Record) error
}

// Ledger issues single-use payment tickets keyed by the off-chain transaction
// id. Minting is restricted to the configured minter and burning to the
// configured hook; the ever-minted tombstone set outlives any burn so a
// transaction id can never be re-issued.
type Ledger struct {
	mu           sync.RWMutex
	minter       common.Address
	hook         common.Address
	transferLock bool
	everMinted   map[string]struct{}
	owners       map[string]common.Address
	mintedAt     map[string]time.Time
	emitter      events.Emitter
	persist      Store
	clock        func() time.Time
}

// NewLedger constructs a ticket ledger bound to the minter and hook roles.
func NewLedger(minter, hook common.Address) *Ledger {
	return &Ledger{
		minter:     minter,
		hook:       hook,
		everMinted: make(map[string]struct{}),
		owners:     make(map[string]common.Address),
		mintedAt:   make(map[string]time.Time),
		emitter:    events.NoopEmitter{},
		clock:      time.Now,
	}
}

// SetEmitter configures the event sink. Passing nil resets to a no-op sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.mu.Lock()
	l.emitter = emitter
	l.mu.Unlock()
}

// SetStore wires the audit persistence backend.
func (l *Ledger) SetStore(store Store) {
	l.mu.Lock()
	l.persist = store
	l.mu.Unlock()
}

// SetClock overrides the time source, primarily for deterministic tests.
func (l *Ledger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.mu.Lock()
	l.clock = clock
	l.mu.Unlock()
}

// SetTransferLock toggles custody-handoff mode: while enabled an active
// ticket may only be transferred to the hook address.
func (l *Ledger) SetTransferLock(enabled bool) {
	l.mu.Lock()
	l.transferLock = enabled
	l.mu.Unlock()
}

// Mint issues an active ticket for the transaction id. The tombstone check
// runs against the permanent ever-minted set, not the active table, so a
// consumed ticket still blocks re-issuance.
func (l *Ledger) Mint(ctx context.Context, caller common.Address, transactionID string, to common.Address) error {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return ErrInvalidTransactionID
	}
	l.mu.Lock()
	if caller != l.minter {
		l.mu.Unlock()
		return ErrNotMinter
	}
	if _, ok := l.everMinted[id]; ok {
		l.mu.Unlock()
		return ErrAlreadyMinted
	}
	now := l.clock()
	l.everMinted[id] = struct{}{}
	l.owners[id] = to
	l.mintedAt[id] = now
	persist := l.persist
	emitter := l.emitter
	l.mu.Unlock()

	if persist != nil {
		record := Record{TransactionID: id, Owner: to, Status: StatusActive, MintedAt: now}
		if err := persist.SaveTicket(ctx, record); err != nil {
			l.mu.Lock()
			delete(l.everMinted, id)
			delete(l.owners, id)
			delete(l.mintedAt, id)
			l.mu.Unlock()
			return fmt.Errorf("persist ticket: %w", err)
		}
	}
	emitter.Emit(events.TicketMinted{TransactionID: id, Owner: to})
	return nil
}

// Burn consumes an active ticket. Only the hook may burn; the ever-minted
// tombstone survives so ownership queries fail from here on.
func (l *Ledger) Burn(ctx context.Context, caller common.Address, transactionID string) error {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return ErrInvalidTransactionID
	}
	l.mu.Lock()
	if caller != l.hook {
		l.mu.Unlock()
		return ErrNotHook
	}
	owner, ok := l.owners[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotExists
	}
	mintedAt := l.mintedAt[id]
	now := l.clock()
	delete(l.owners, id)
	persist := l.persist
	l.mu.Unlock()

	if persist != nil {
		record := Record{TransactionID: id, Owner: owner, Status: StatusConsumed, MintedAt: mintedAt, ConsumedAt: now}
		if err := persist.SaveTicket(ctx, record); err != nil {
			l.mu.Lock()
			l.owners[id] = owner
			l.mu.Unlock()
			return fmt.Errorf("persist ticket: %w", err)
		}
	}
	return nil
}

// Reinstate restores an active ticket after a settlement rollback. It is the
// inverse of Burn and carries the same hook-only restriction; the ever-minted
// tombstone is untouched because the id was legitimately minted once.
func (l *Ledger) Reinstate(ctx context.Context, caller common.Address, transactionID string, owner common.Address) error {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return ErrInvalidTransactionID
	}
	l.mu.Lock()
	if caller != l.hook {
		l.mu.Unlock()
		return ErrNotHook
	}
	if _, ok := l.everMinted[id]; !ok {
		l.mu.Unlock()
		return ErrNotExists
	}
	l.owners[id] = owner
	mintedAt := l.mintedAt[id]
	persist := l.persist
	l.mu.Unlock()

	if persist != nil {
		record := Record{TransactionID: id, Owner: owner, Status: StatusActive, MintedAt: mintedAt}
		if err := persist.SaveTicket(ctx, record); err != nil {
			return fmt.Errorf("persist ticket: %w", err)
		}
	}
	return nil
}

// Transfer hands an active ticket to a new owner. In transfer-lock mode the
// only permitted recipient is the hook, modelling the custody handoff from the
// initial holder to the consumer.
func (l *Ledger) Transfer(ctx context.Context, caller common.Address, transactionID string, to common.Address) error {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return ErrInvalidTransactionID
	}
	l.mu.Lock()
	owner, ok := l.owners[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotExists
	}
	if caller != owner {
		l.mu.Unlock()
		return ErrNotOwner
	}
	if l.transferLock && to != l.hook {
		l.mu.Unlock()
		return ErrTransferRestricted
	}
	l.owners[id] = to
	mintedAt := l.mintedAt[id]
	persist := l.persist
	l.mu.Unlock()

	if persist != nil {
		record := Record{TransactionID: id, Owner: to, Status: StatusActive, MintedAt: mintedAt}
		if err := persist.SaveTicket(ctx, record); err != nil {
			l.mu.Lock()
			l.owners[id] = owner
			l.mu.Unlock()
			return fmt.Errorf("persist ticket: %w", err)
		}
	}
	return nil
}

// OwnerOf returns the active owner. Burned or never-minted ids fail alike.
func (l *Ledger) OwnerOf(transactionID string) (common.Address, error) {
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return common.Address{}, ErrInvalidTransactionID
	}
	l.mu.RLock()
	owner, ok := l.owners[id]
	l.mu.RUnlock()
	if !ok {
		return common.Address{}, ErrNotExists
	}
	return owner, nil
}

// EverMinted reports whether the transaction id was ever issued.
func (l *Ledger) EverMinted(transactionID string) bool {
	id := strings.TrimSpace(transactionID)
	l.mu.RLock()
	_, ok := l.everMinted[id]
	l.mu.RUnlock()
	return ok
}

// Hook returns the validating authority address this ledger trusts.
func (l *Ledger) Hook() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hook
}
