package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"upiramp/core/events"
	"upiramp/observability"
)

var (
	// ErrPriceUnavailable indicates the rate feed is missing or stale.
	ErrPriceUnavailable = errors.New("quote: price unavailable")
	// ErrQuoteNotFound indicates no quote exists for the id.
	ErrQuoteNotFound = errors.New("quote: not found")
	// ErrQuoteAlreadyClaimed indicates the single permitted claim already happened.
	ErrQuoteAlreadyClaimed = errors.New("quote: already claimed")
	// ErrQuoteExpired indicates the validity window has lapsed.
	ErrQuoteExpired = errors.New("quote: expired")
	// ErrUnauthorized indicates the caller lacks access to the operation or quote.
	ErrUnauthorized = errors.New("quote: unauthorized access")
	// ErrInvalidType indicates an unknown conversion direction.
	ErrInvalidType = errors.New("quote: invalid conversion type")
	// ErrInvalidAmount indicates a non-positive fiat amount.
	ErrInvalidAmount = errors.New("quote: fiat amount must be positive")
)

// DefaultWindow bounds price-staleness risk between quoting and execution.
const DefaultWindow = 15 * time.Second

// RelayerAuthorizer reports whether an address may submit protected
// operations. The router's relayer set satisfies this.
type RelayerAuthorizer interface {
	AuthorizedRelayer(common.Address) bool
}

// Store persists locked quotes for audit.
type Store interface {
	SaveQuote(ctx context.Context, record Record) error
}

type ratePoint struct {
	rate    *big.Rat
	updated time.Time
}

// Engine is the quote ledger: it locks short-lived conversion quotes computed
// from the cached fiat and base asset rates and gates the claim-once flag.
type Engine struct {
	mu         sync.RWMutex
	pair       Pair
	window     time.Duration
	maxRateAge time.Duration
	fiatRate   ratePoint
	baseRate   ratePoint
	quotes     map[string]*Quote
	relayers   RelayerAuthorizer
	persist    Store
	emitter    events.Emitter
	clock      func() time.Time
	tracer     trace.Tracer
	metrics    *observability.SettlementMetrics
	newID      func() string
}

// NewEngine constructs a quote ledger for the supplied pair.
func NewEngine(pair Pair, relayers RelayerAuthorizer) (*Engine, error) {
	if strings.TrimSpace(pair.BaseSymbol) == "" || strings.TrimSpace(pair.QuoteSymbol) == "" {
		return nil, fmt.Errorf("quote: pair symbols required")
	}
	if relayers == nil {
		return nil, fmt.Errorf("quote: relayer authorizer required")
	}
	return &Engine{
		pair:       pair,
		window:     DefaultWindow,
		maxRateAge: 30 * time.Second,
		quotes:     make(map[string]*Quote),
		relayers:   relayers,
		emitter:    events.NoopEmitter{},
		clock:      time.Now,
		tracer:     otel.Tracer("upiramp/quote"),
		metrics:    observability.Settlement(),
		newID:      func() string { return uuid.NewString() },
	}, nil
}

// WithClock overrides the engine clock for deterministic tests.
func (e *Engine) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	e.mu.Lock()
	e.clock = clock
	e.mu.Unlock()
}

// SetWindow overrides the quote validity window.
func (e *Engine) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	e.mu.Lock()
	e.window = window
	e.mu.Unlock()
}

// SetMaxRateAge overrides the maximum allowed staleness for cached rates.
func (e *Engine) SetMaxRateAge(age time.Duration) {
	e.mu.Lock()
	e.maxRateAge = age
	e.mu.Unlock()
}

// SetEmitter configures the event sink. Passing nil resets to a no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.mu.Lock()
	e.emitter = emitter
	e.mu.Unlock()
}

// SetStore wires the audit persistence backend.
func (e *Engine) SetStore(store Store) {
	e.mu.Lock()
	e.persist = store
	e.mu.Unlock()
}

// RecordFiatRate updates the cached fiat-per-USD rate.
func (e *Engine) RecordFiatRate(rate *big.Rat, updated time.Time) {
	e.recordRate(&e.fiatRate, rate, updated)
}

// RecordBaseRate updates the cached USD-per-base-asset rate.
func (e *Engine) RecordBaseRate(rate *big.Rat, updated time.Time) {
	e.recordRate(&e.baseRate, rate, updated)
}

func (e *Engine) recordRate(slot *ratePoint, rate *big.Rat, updated time.Time) {
	if e == nil || rate == nil || rate.Sign() <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if updated.IsZero() {
		updated = e.clock()
	}
	slot.rate = new(big.Rat).Set(rate)
	slot.updated = updated
}

func (e *Engine) freshRateLocked(slot ratePoint, now time.Time) (*big.Rat, error) {
	if slot.rate == nil || slot.rate.Sign() <= 0 {
		return nil, ErrPriceUnavailable
	}
	if e.maxRateAge > 0 && now.Sub(slot.updated) > e.maxRateAge {
		return nil, ErrPriceUnavailable
	}
	return slot.rate, nil
}

// Lock computes and locks a quote for the user. Relayer-only.
func (e *Engine) Lock(ctx context.Context, relayer, user common.Address, fiatAmount *big.Int, typ ConversionType) (*Quote, error) {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "quote.lock",
		trace.WithAttributes(attribute.String("conversion.type", string(typ))))
	defer span.End()

	quote, err := e.lock(ctx, relayer, user, fiatAmount, typ)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.Observe("quote_lock", e.now().Sub(start), err)
		return nil, err
	}
	span.SetAttributes(attribute.String("quote.id", quote.ID))
	span.SetStatus(codes.Ok, "quote locked")
	e.metrics.Observe("quote_lock", e.now().Sub(start), nil)
	return quote, nil
}

func (e *Engine) lock(ctx context.Context, relayer, user common.Address, fiatAmount *big.Int, typ ConversionType) (*Quote, error) {
	if !typ.Valid() {
		return nil, ErrInvalidType
	}
	if fiatAmount == nil || fiatAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.relayers.AuthorizedRelayer(relayer) {
		return nil, ErrUnauthorized
	}
	now := e.clock()
	fiatRate, err := e.freshRateLocked(e.fiatRate, now)
	if err != nil {
		return nil, err
	}
	baseRate, err := e.freshRateLocked(e.baseRate, now)
	if err != nil {
		return nil, err
	}

	// Fiat minor units -> USD -> asset legs. The base leg divides by both
	// rates, the stable leg by the fiat rate alone.
	usd := new(big.Rat).SetInt(fiatAmount)
	usd.Quo(usd, decimalsRat(e.pair.FiatDecimals))
	usd.Quo(usd, fiatRate)
	baseAmt := new(big.Rat).Quo(usd, baseRate)

	baseUnits := ratToUnits(baseAmt, e.pair.BaseDecimals)
	stableUnits := ratToUnits(usd, e.pair.QuoteDecimals)

	quote := &Quote{
		ID:         e.newID(),
		User:       user,
		Type:       typ,
		FiatAmount: new(big.Int).Set(fiatAmount),
		FiatRate:   new(big.Rat).Set(fiatRate),
		BaseRate:   new(big.Rat).Set(baseRate),
		LockedAt:   now,
		ExpiresAt:  now.Add(e.window),
	}
	switch typ {
	case ConversionBuyBase:
		quote.OutputAsset = e.pair.BaseSymbol
		quote.OutputAmount = baseUnits
		quote.InputAsset = e.pair.QuoteSymbol
		quote.InputAmount = stableUnits
	case ConversionSellBase:
		quote.OutputAsset = e.pair.QuoteSymbol
		quote.OutputAmount = stableUnits
		quote.InputAsset = e.pair.BaseSymbol
		quote.InputAmount = baseUnits
	}

	e.quotes[quote.ID] = quote
	if e.persist != nil {
		if err := e.persist.SaveQuote(ctx, quoteRecord(quote)); err != nil {
			delete(e.quotes, quote.ID)
			return nil, fmt.Errorf("persist quote: %w", err)
		}
	}
	e.emitter.Emit(events.QuoteLocked{
		QuoteID:      quote.ID,
		User:         user,
		Type:         string(typ),
		FiatAmount:   quote.FiatAmount,
		OutputAsset:  quote.OutputAsset,
		OutputAmount: quote.OutputAmount,
		InputAsset:   quote.InputAsset,
		InputAmount:  quote.InputAmount,
		ExpiresAt:    quote.ExpiresAt.Unix(),
	})
	return quote.Copy(), nil
}

// Get returns the quote. When a caller identity is supplied it must match the
// bound user; relayers may read any quote. Never mutates state.
func (e *Engine) Get(id string, caller *common.Address) (*Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	quote, ok := e.quotes[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	if caller != nil && *caller != quote.User && !e.relayers.AuthorizedRelayer(*caller) {
		return nil, ErrUnauthorized
	}
	return quote.Copy(), nil
}

// Claim marks the quote consumed. Relayer-only; at most once per quote.
func (e *Engine) Claim(ctx context.Context, relayer common.Address, id string) error {
	start := e.now()
	ctx, span := e.tracer.Start(ctx, "quote.claim",
		trace.WithAttributes(attribute.String("quote.id", id)))
	defer span.End()

	err := e.claim(ctx, relayer, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "quote claimed")
	}
	e.metrics.Observe("quote_claim", e.now().Sub(start), err)
	return err
}

func (e *Engine) claim(ctx context.Context, relayer common.Address, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.relayers.AuthorizedRelayer(relayer) {
		return ErrUnauthorized
	}
	quote, ok := e.quotes[strings.TrimSpace(id)]
	if !ok {
		return ErrQuoteNotFound
	}
	if quote.Claimed {
		return ErrQuoteAlreadyClaimed
	}
	quote.Claimed = true
	if e.persist != nil {
		if err := e.persist.SaveQuote(ctx, quoteRecord(quote)); err != nil {
			quote.Claimed = false
			return fmt.Errorf("persist quote: %w", err)
		}
	}
	e.emitter.Emit(events.QuoteClaimed{QuoteID: quote.ID, Relayer: relayer})
	return nil
}

// EnsureExecutable verifies the quote is still inside its validity window.
// Swap orchestration calls this before building ticket data; expiry is a
// temporal failure distinct from the claim-once gate.
func (e *Engine) EnsureExecutable(id string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	quote, ok := e.quotes[strings.TrimSpace(id)]
	if !ok {
		return ErrQuoteNotFound
	}
	if e.clock().After(quote.ExpiresAt) {
		return ErrQuoteExpired
	}
	return nil
}

// Pair returns the configured pair.
func (e *Engine) Pair() Pair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pair
}

func (e *Engine) now() time.Time {
	e.mu.RLock()
	clock := e.clock
	e.mu.RUnlock()
	return clock()
}

func quoteRecord(q *Quote) Record {
	return Record{
		ID:           q.ID,
		User:         q.User,
		Type:         string(q.Type),
		FiatAmount:   q.FiatAmount.String(),
		OutputAsset:  q.OutputAsset,
		OutputAmount: q.OutputAmount.String(),
		InputAsset:   q.InputAsset,
		InputAmount:  q.InputAmount.String(),
		FiatRate:     q.FiatRate.RatString(),
		BaseRate:     q.BaseRate.RatString(),
		LockedAt:     q.LockedAt,
		ExpiresAt:    q.ExpiresAt,
		Claimed:      q.Claimed,
	}
}

func decimalsRat(decimals uint8) *big.Rat {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetInt(scale)
}

// ratToUnits floors a rational asset amount into integer base units.
func ratToUnits(amount *big.Rat, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaled := new(big.Rat).Mul(amount, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}
