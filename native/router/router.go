package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upiramp/core/events"
	"upiramp/native/settlement"
	"upiramp/native/venue"
	"upiramp/observability"
)

var (
	// ErrNotRelayer indicates the caller is not an authorised relayer.
	ErrNotRelayer = errors.New("router: not relayer")
	// ErrPaused indicates the router pause switch is engaged.
	ErrPaused = errors.New("router: paused")
	// ErrBadUser indicates a zero user address.
	ErrBadUser = errors.New("router: bad user")
	// ErrBadFrom indicates a zero source address.
	ErrBadFrom = errors.New("router: bad from")
	// ErrBadTo indicates a zero destination address.
	ErrBadTo = errors.New("router: bad to")
	// ErrZeroAmount indicates a nil or non-positive amount.
	ErrZeroAmount = errors.New("router: zero amount")
	// ErrPoolDisabled indicates the venue hash is not allowlisted.
	ErrPoolDisabled = errors.New("router: pool disabled")
)

// Settlement outcomes recorded for audit.
const (
	OutcomeSettled = "settled"
	OutcomeClaimed = "claimed"
)

// SettlementRecord is the persisted audit row for one accepted swap.
type SettlementRecord struct {
	TransactionID string
	PoolID        common.Hash
	User          common.Address
	Mode          string
	ImmediateTake bool
	AssetIn       string
	AmountIn      string
	AssetOut      string
	AmountOut     string
	Outcome       string
	SubmittedAt   time.Time
}

// SettlementStore persists accepted swaps.
type SettlementStore interface {
	SaveSettlement(ctx context.Context, record SettlementRecord) error
}

// SwapParams carries one swapWithHook submission.
type SwapParams struct {
	Pool          venue.PoolKey
	Ticket        settlement.TicketData
	AToB          bool
	ImmediateTake bool
	TakeAmount    *big.Int
}

// SwapOutcome reports a settled swap back to the relayer.
type SwapOutcome struct {
	PoolID        common.Hash
	Result        venue.SwapResult
	TakenAmount   *big.Int
	ClaimedAmount *big.Int
}

// Router is the single entry point relayers call. It enforces relayer
// authorisation, global pause, and venue allowlisting, and owns the global
// single-writer settlement lock: every balance-affecting sequence (ticket
// consumption, vault funding, payout or claim credit) runs to completion
// inside one critical section and unwinds fully on any failure.
type Router struct {
	settleMu sync.Mutex
	mu       sync.RWMutex
	owner    common.Address
	relayers map[common.Address]bool
	pools    map[common.Hash]bool
	paused   bool

	hook          *settlement.Hook
	venue         venue.Venue
	claims        *Claims
	engineAccount common.Address

	emitter events.Emitter
	persist SettlementStore
	clock   func() time.Time
	tracer  trace.Tracer
	metrics *observability.SettlementMetrics
}

// NewRouter constructs the router around its collaborators. engineAccount is
// the settlement engine account vault payments are addressed to.
func NewRouter(owner common.Address, hook *settlement.Hook, v venue.Venue, claims *Claims, engineAccount common.Address) (*Router, error) {
	if hook == nil {
		return nil, fmt.Errorf("router: settlement hook required")
	}
	if v == nil {
		return nil, fmt.Errorf("router: venue required")
	}
	if claims == nil {
		return nil, fmt.Errorf("router: claim ledger required")
	}
	return &Router{
		owner:         owner,
		relayers:      make(map[common.Address]bool),
		pools:         make(map[common.Hash]bool),
		hook:          hook,
		venue:         v,
		claims:        claims,
		engineAccount: engineAccount,
		emitter:       events.NoopEmitter{},
		clock:         time.Now,
		tracer:        otel.Tracer("upiramp/router"),
		metrics:       observability.Settlement(),
	}, nil
}

// SetEmitter configures the event sink. Passing nil resets to a no-op sink.
func (r *Router) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.mu.Lock()
	r.emitter = emitter
	r.mu.Unlock()
}

// SetStore wires the settlement audit backend.
func (r *Router) SetStore(store SettlementStore) {
	r.mu.Lock()
	r.persist = store
	r.mu.Unlock()
}

// WithClock overrides the time source for deterministic tests.
func (r *Router) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	r.mu.Lock()
	r.clock = clock
	r.mu.Unlock()
}

// AuthorizedRelayer reports whether the address may call protected operations.
func (r *Router) AuthorizedRelayer(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relayers[addr]
}

// PoolEnabled reports whether a venue hash is allowlisted.
func (r *Router) PoolEnabled(id common.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools[id]
}

// Paused reports the router pause switch.
func (r *Router) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paused
}

// Claims exposes the claim ledger for read paths.
func (r *Router) Claims() *Claims { return r.claims }

// SwapWithHook orchestrates the atomic unlock -> swap -> settle sequence for
// one ticketed payment. On success the output is either paid out immediately
// or accrued as a claim balance.
func (r *Router) SwapWithHook(ctx context.Context, caller common.Address, params SwapParams) (*SwapOutcome, error) {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "router.swap_with_hook",
		trace.WithAttributes(attribute.String("transaction.id", params.Ticket.TransactionID)))
	defer span.End()

	outcome, err := r.swapWithHook(ctx, caller, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("pool.id", outcome.PoolID.Hex()))
		span.SetStatus(codes.Ok, "swap settled")
	}
	r.metrics.Observe("swap_with_hook", r.now().Sub(start), err)
	return outcome, err
}

func (r *Router) swapWithHook(ctx context.Context, caller common.Address, params SwapParams) (*SwapOutcome, error) {
	// Global single-writer critical section: all balance-affecting steps for
	// this submission commit or unwind as one unit.
	r.settleMu.Lock()
	defer r.settleMu.Unlock()

	r.mu.RLock()
	authorized := r.relayers[caller]
	paused := r.paused
	clock := r.clock
	r.mu.RUnlock()

	if !authorized {
		return nil, ErrNotRelayer
	}
	if paused {
		return nil, ErrPaused
	}
	if params.Ticket.User == (common.Address{}) {
		return nil, ErrBadUser
	}
	if params.Ticket.Deadline > 0 && clock().Unix() > params.Ticket.Deadline {
		return nil, settlement.ErrDeadlineExpired
	}
	if !params.Pool.Valid() {
		return nil, ErrPoolDisabled
	}
	poolID := params.Pool.ID()
	if !r.PoolEnabled(poolID) {
		return nil, ErrPoolDisabled
	}

	// Check-then-burn precedes all fund movement; everything after it must
	// unwind the burn on failure.
	if err := r.hook.ValidateAndConsume(ctx, params.Ticket); err != nil {
		return nil, err
	}
	undo := []func(){}
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		if err := r.hook.RollbackConsume(ctx, params.Ticket); err != nil {
			slog.Error("router: rollback ticket consumption",
				"error", err, "transaction_id", params.Ticket.TransactionID)
		}
	}

	result, err := r.venue.Swap(params.Pool, venue.SwapParams{
		AToB:         params.AToB,
		AmountIn:     params.Ticket.MaxIn,
		MinAmountOut: params.Ticket.MinOut,
	})
	if err != nil {
		rollback()
		return nil, err
	}
	undo = append(undo, func() {
		if err := r.venue.Unwind(params.Pool, result); err != nil {
			slog.Error("router: unwind venue swap",
				"error", err, "transaction_id", params.Ticket.TransactionID)
		}
	})

	if err := r.hook.SettleFunding(result.AssetIn, result.AmountIn, r.engineAccount); err != nil {
		rollback()
		return nil, err
	}
	undo = append(undo, func() {
		if err := r.hook.RollbackFunding(result.AssetIn, result.AmountIn); err != nil {
			slog.Error("router: rollback vault funding",
				"error", err, "transaction_id", params.Ticket.TransactionID)
		}
	})

	taken := big.NewInt(0)
	claimed := new(big.Int).Set(result.AmountOut)
	if params.ImmediateTake {
		taken = new(big.Int).Set(result.AmountOut)
		if params.TakeAmount != nil && params.TakeAmount.Sign() > 0 && params.TakeAmount.Cmp(result.AmountOut) < 0 {
			taken = new(big.Int).Set(params.TakeAmount)
		}
		claimed = new(big.Int).Sub(result.AmountOut, taken)
	}
	if claimed.Sign() > 0 {
		if err := r.claims.Credit(ctx, params.Ticket.User, result.AssetOut, claimed); err != nil {
			rollback()
			return nil, err
		}
		undo = append(undo, func() {
			if err := r.claims.Debit(ctx, params.Ticket.User, result.AssetOut, claimed); err != nil {
				slog.Error("router: rollback claim credit",
					"error", err, "transaction_id", params.Ticket.TransactionID)
			}
		})
	}

	outcomeLabel := OutcomeClaimed
	if params.ImmediateTake {
		outcomeLabel = OutcomeSettled
	}
	r.mu.RLock()
	persist := r.persist
	emitter := r.emitter
	r.mu.RUnlock()
	if persist != nil {
		record := SettlementRecord{
			TransactionID: params.Ticket.TransactionID,
			PoolID:        poolID,
			User:          params.Ticket.User,
			Mode:          string(params.Ticket.Mode),
			ImmediateTake: params.ImmediateTake,
			AssetIn:       result.AssetIn,
			AmountIn:      result.AmountIn.String(),
			AssetOut:      result.AssetOut,
			AmountOut:     result.AmountOut.String(),
			Outcome:       outcomeLabel,
			SubmittedAt:   clock(),
		}
		if err := persist.SaveSettlement(ctx, record); err != nil {
			rollback()
			return nil, fmt.Errorf("persist settlement: %w", err)
		}
	}

	if taken.Sign() > 0 {
		emitter.Emit(events.ImmediateTake{
			TransactionID: params.Ticket.TransactionID,
			User:          params.Ticket.User,
			Asset:         result.AssetOut,
			Amount:        taken,
		})
	}
	emitter.Emit(events.SwapSubmitted{
		PoolID:        poolID,
		TransactionID: params.Ticket.TransactionID,
		User:          params.Ticket.User,
		Mode:          string(params.Ticket.Mode),
		ImmediateTake: params.ImmediateTake,
		AmountIn:      result.AmountIn,
		AmountOut:     result.AmountOut,
	})

	return &SwapOutcome{PoolID: poolID, Result: result, TakenAmount: taken, ClaimedAmount: claimed}, nil
}

// TakeTokens converts a claim balance into a direct transfer under the same
// single-writer discipline as swaps.
func (r *Router) TakeTokens(ctx context.Context, caller common.Address, asset string, from, to common.Address, amount *big.Int) error {
	start := r.now()
	ctx, span := r.tracer.Start(ctx, "router.take_tokens",
		trace.WithAttributes(attribute.String("asset", asset)))
	defer span.End()

	err := r.takeTokens(ctx, caller, asset, from, to, amount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "tokens taken")
	}
	r.metrics.Observe("take_tokens", r.now().Sub(start), err)
	return err
}

func (r *Router) takeTokens(ctx context.Context, caller common.Address, asset string, from, to common.Address, amount *big.Int) error {
	r.settleMu.Lock()
	defer r.settleMu.Unlock()

	r.mu.RLock()
	authorized := r.relayers[caller]
	paused := r.paused
	emitter := r.emitter
	r.mu.RUnlock()

	if !authorized {
		return ErrNotRelayer
	}
	if paused {
		return ErrPaused
	}
	if from == (common.Address{}) {
		return ErrBadFrom
	}
	if to == (common.Address{}) {
		return ErrBadTo
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := r.claims.Debit(ctx, from, asset, amount); err != nil {
		return err
	}
	emitter.Emit(events.TokensTaken{
		Asset:   asset,
		From:    from,
		To:      to,
		Amount:  new(big.Int).Set(amount),
		Relayer: caller,
	})
	return nil
}

// SetRelayer toggles a relayer authorisation. Owner-gated.
func (r *Router) SetRelayer(caller, relayer common.Address, authorized bool) error {
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return settlement.ErrNotOwner
	}
	if authorized {
		r.relayers[relayer] = true
	} else {
		delete(r.relayers, relayer)
	}
	emitter := r.emitter
	r.mu.Unlock()
	emitter.Emit(events.RelayerSet{Relayer: relayer, Authorized: authorized})
	return nil
}

// BulkSetRelayers applies one toggle to a batch of relayers. Owner-gated.
func (r *Router) BulkSetRelayers(caller common.Address, relayers []common.Address, authorized bool) error {
	for _, relayer := range relayers {
		if err := r.SetRelayer(caller, relayer, authorized); err != nil {
			return err
		}
	}
	return nil
}

// SetPoolEnabled toggles a venue's allowlist entry. Owner-gated.
func (r *Router) SetPoolEnabled(caller common.Address, key venue.PoolKey, enabled bool) error {
	if !key.Valid() {
		return venue.ErrInvalidKey
	}
	id := key.ID()
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return settlement.ErrNotOwner
	}
	if enabled {
		r.pools[id] = true
	} else {
		delete(r.pools, id)
	}
	emitter := r.emitter
	r.mu.Unlock()
	emitter.Emit(events.PoolToggled{PoolID: id, Enabled: enabled})
	return nil
}

// SetPaused toggles the router pause switch. Owner-gated.
func (r *Router) SetPaused(caller common.Address, paused bool) error {
	r.mu.Lock()
	if caller != r.owner {
		r.mu.Unlock()
		return settlement.ErrNotOwner
	}
	r.paused = paused
	emitter := r.emitter
	r.mu.Unlock()
	emitter.Emit(events.PauseChanged{Component: "router", Paused: paused})
	return nil
}

func (r *Router) now() time.Time {
	r.mu.RLock()
	clock := r.clock
	r.mu.RUnlock()
	return clock()
}
