package router

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/core/events"
	"upiramp/native/settlement"
	"upiramp/native/ticket"
	"upiramp/native/venue"
)

var (
	ownerAddr   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	minterAddr  = common.HexToAddress("0x0000000000000000000000000000000000000022")
	hookAddr    = common.HexToAddress("0x0000000000000000000000000000000000000033")
	engineAddr  = common.HexToAddress("0x0000000000000000000000000000000000000044")
	relayerAddr = common.HexToAddress("0x0000000000000000000000000000000000000055")
	userAddr    = common.HexToAddress("0x0000000000000000000000000000000000000066")
)

type capturedEvents struct {
	events []events.Event
}

func (c *capturedEvents) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturedEvents) ofType(eventType string) []events.Event {
	var out []events.Event
	for _, evt := range c.events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	router  *Router
	tickets *ticket.Ledger
	vault   *settlement.Vault
	hook    *settlement.Hook
	amm     *venue.ConstantProduct
	claims  *Claims
	key     venue.PoolKey
	sink    *capturedEvents
	now     *time.Time
}

func buildFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Date(2026, time.February, 3, 11, 0, 0, 0, time.UTC)
	tickets := ticket.NewLedger(minterAddr, hookAddr)
	vault := settlement.NewVault(ownerAddr, hookAddr)
	hook, err := settlement.NewHook(hookAddr, ownerAddr, tickets, vault)
	if err != nil {
		t.Fatalf("new hook: %v", err)
	}
	amm := venue.NewConstantProduct()
	claims := NewClaims()
	r, err := NewRouter(ownerAddr, hook, amm, claims, engineAddr)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	now := base
	clock := func() time.Time { return now }
	r.WithClock(clock)
	hook.SetClock(clock)
	sink := &capturedEvents{}
	r.SetEmitter(sink)
	hook.SetEmitter(sink)

	key := venue.PoolKey{AssetA: "USDC", AssetB: "WETH", FeeBps: 30, TickSpacing: 60, Hook: hookAddr}
	if err := amm.AddLiquidity(key, big.NewInt(4_000_000_000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if err := r.SetRelayer(ownerAddr, relayerAddr, true); err != nil {
		t.Fatalf("set relayer: %v", err)
	}
	if err := r.SetPoolEnabled(ownerAddr, key, true); err != nil {
		t.Fatalf("enable pool: %v", err)
	}
	if err := vault.Fund(ownerAddr, "USDC", big.NewInt(1_000_000_000)); err != nil {
		t.Fatalf("fund vault: %v", err)
	}
	return &fixture{router: r, tickets: tickets, vault: vault, hook: hook, amm: amm, claims: claims, key: key, sink: sink, now: &now}
}

func (f *fixture) mint(t *testing.T, id string) {
	t.Helper()
	if err := f.tickets.Mint(context.Background(), minterAddr, id, hookAddr); err != nil {
		t.Fatalf("mint %s: %v", id, err)
	}
}

func (f *fixture) swapParams(id string) SwapParams {
	return SwapParams{
		Pool: f.key,
		Ticket: settlement.TicketData{
			TransactionID: id,
			User:          userAddr,
			Deadline:      f.now.Add(time.Minute).Unix(),
			MinOut:        big.NewInt(1),
			MaxIn:         big.NewInt(10_000_000),
			Mode:          settlement.ModeExactInput,
		},
		AToB: true,
	}
}

func TestSwapWithHookDeferredSettlement(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	f.mint(t, "UPI-100")

	vaultBefore := f.vault.Balance("USDC")
	outcome, err := f.router.SwapWithHook(ctx, relayerAddr, f.swapParams("UPI-100"))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if outcome.Result.AssetIn != "USDC" || outcome.Result.AssetOut != "WETH" {
		t.Fatalf("unexpected legs: %s -> %s", outcome.Result.AssetIn, outcome.Result.AssetOut)
	}
	// Output accrues as a claim; nothing taken immediately.
	if outcome.TakenAmount.Sign() != 0 {
		t.Fatalf("unexpected immediate take: %s", outcome.TakenAmount)
	}
	if got := f.claims.Balance(userAddr, "WETH"); got.Cmp(outcome.Result.AmountOut) != 0 {
		t.Fatalf("claim balance %s, want %s", got, outcome.Result.AmountOut)
	}
	// The vault funded exactly the swap input.
	spent := new(big.Int).Sub(vaultBefore, f.vault.Balance("USDC"))
	if spent.Cmp(outcome.Result.AmountIn) != 0 {
		t.Fatalf("vault spent %s, want %s", spent, outcome.Result.AmountIn)
	}
	// Ticket consumed: ownership queries fail and events carry the id.
	if _, err := f.tickets.OwnerOf("UPI-100"); !errors.Is(err, ticket.ErrNotExists) {
		t.Fatalf("ticket must be burned, got %v", err)
	}
	if len(f.sink.ofType(events.TypeTicketConsumed)) != 1 {
		t.Fatal("expected one TicketConsumed event")
	}
	if len(f.sink.ofType(events.TypeSwapSubmitted)) != 1 {
		t.Fatal("expected one SwapSubmitted event")
	}
	if len(f.sink.ofType(events.TypeImmediateTake)) != 0 {
		t.Fatal("deferred settlement must not emit ImmediateTake")
	}
}

func TestSwapWithHookReplayFails(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	f.mint(t, "UPI-101")
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, f.swapParams("UPI-101")); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	claimBefore := f.claims.Balance(userAddr, "WETH")
	vaultBefore := f.vault.Balance("USDC")

	_, err := f.router.SwapWithHook(ctx, relayerAddr, f.swapParams("UPI-101"))
	if !errors.Is(err, settlement.ErrTicketUsed) {
		t.Fatalf("expected ErrTicketUsed, got %v", err)
	}
	if f.claims.Balance(userAddr, "WETH").Cmp(claimBefore) != 0 {
		t.Fatal("replay must not change claim balances")
	}
	if f.vault.Balance("USDC").Cmp(vaultBefore) != 0 {
		t.Fatal("replay must not trigger a second vault payment")
	}
}

func TestSwapWithHookImmediateTake(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	f.mint(t, "UPI-102")
	params := f.swapParams("UPI-102")
	params.ImmediateTake = true
	outcome, err := f.router.SwapWithHook(ctx, relayerAddr, params)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if outcome.TakenAmount.Cmp(outcome.Result.AmountOut) != 0 {
		t.Fatalf("full output must be taken, got %s of %s", outcome.TakenAmount, outcome.Result.AmountOut)
	}
	if f.claims.Balance(userAddr, "WETH").Sign() != 0 {
		t.Fatal("immediate take must leave no claim")
	}
	if len(f.sink.ofType(events.TypeImmediateTake)) != 1 {
		t.Fatal("expected one ImmediateTake event")
	}

	// Partial take: remainder accrues as a claim.
	f.mint(t, "UPI-103")
	params = f.swapParams("UPI-103")
	params.ImmediateTake = true
	params.TakeAmount = big.NewInt(100)
	outcome, err = f.router.SwapWithHook(ctx, relayerAddr, params)
	if err != nil {
		t.Fatalf("partial take swap: %v", err)
	}
	if outcome.TakenAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected taken amount: %s", outcome.TakenAmount)
	}
	wantClaim := new(big.Int).Sub(outcome.Result.AmountOut, big.NewInt(100))
	if f.claims.Balance(userAddr, "WETH").Cmp(wantClaim) != 0 {
		t.Fatalf("remainder must accrue as claim: %s", f.claims.Balance(userAddr, "WETH"))
	}
}

func TestSwapWithHookGuards(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	f.mint(t, "UPI-104")
	params := f.swapParams("UPI-104")

	if _, err := f.router.SwapWithHook(ctx, userAddr, params); !errors.Is(err, ErrNotRelayer) {
		t.Fatalf("expected ErrNotRelayer, got %v", err)
	}
	if err := f.router.SetPaused(ownerAddr, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, params); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if err := f.router.SetPaused(ownerAddr, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}

	bad := params
	bad.Ticket.User = common.Address{}
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, bad); !errors.Is(err, ErrBadUser) {
		t.Fatalf("expected ErrBadUser, got %v", err)
	}

	late := params
	late.Ticket.Deadline = f.now.Add(-time.Second).Unix()
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, late); !errors.Is(err, settlement.ErrDeadlineExpired) {
		t.Fatalf("expected ErrDeadlineExpired, got %v", err)
	}

	disabled := params
	disabled.Pool.FeeBps = 500
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, disabled); !errors.Is(err, ErrPoolDisabled) {
		t.Fatalf("expected ErrPoolDisabled, got %v", err)
	}

	// The guarded failures above must not have consumed the ticket.
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, params); err != nil {
		t.Fatalf("swap after guard failures: %v", err)
	}
}

func TestSwapRollbackOnCapBreach(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	f.mint(t, "UPI-105")
	if err := f.hook.SetMaxPerTx(ownerAddr, "USDC", big.NewInt(1)); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	vaultBefore := f.vault.Balance("USDC")
	_, err := f.router.SwapWithHook(ctx, relayerAddr, f.swapParams("UPI-105"))
	if !errors.Is(err, settlement.ErrAmountExceedsLimit) {
		t.Fatalf("expected ErrAmountExceedsLimit, got %v", err)
	}
	if f.vault.Balance("USDC").Cmp(vaultBefore) != 0 {
		t.Fatal("no vault payment may occur on a cap breach")
	}
	reserveA, reserveB, ok := f.amm.Reserves(f.key)
	if !ok || reserveA.Cmp(big.NewInt(4_000_000_000)) != 0 || reserveB.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("venue reserves must be unwound, got %s/%s", reserveA, reserveB)
	}
	// Full rollback: the ticket is live again and usable once the cap lifts.
	owner, err := f.tickets.OwnerOf("UPI-105")
	if err != nil || owner != hookAddr {
		t.Fatalf("ticket must be reinstated to the hook, got %s %v", owner.Hex(), err)
	}
	if err := f.hook.SetMaxPerTx(ownerAddr, "USDC", nil); err != nil {
		t.Fatalf("clear cap: %v", err)
	}
	if _, err := f.router.SwapWithHook(ctx, relayerAddr, f.swapParams("UPI-105")); err != nil {
		t.Fatalf("swap after cap lift: %v", err)
	}
}

func TestTakeTokensConservation(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	f.mint(t, "UPI-106")
	outcome, err := f.router.SwapWithHook(ctx, relayerAddr, f.swapParams("UPI-106"))
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	total := new(big.Int).Set(outcome.Result.AmountOut)
	half := new(big.Int).Quo(total, big.NewInt(2))
	dest := common.HexToAddress("0x0000000000000000000000000000000000000077")

	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", userAddr, dest, half); err != nil {
		t.Fatalf("take: %v", err)
	}
	remaining := new(big.Int).Sub(total, half)
	if got := f.claims.Balance(userAddr, "WETH"); got.Cmp(remaining) != 0 {
		t.Fatalf("conservation violated: balance %s want %s", got, remaining)
	}
	// Overdraw fails and leaves the balance untouched.
	over := new(big.Int).Add(remaining, big.NewInt(1))
	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", userAddr, dest, over); !errors.Is(err, ErrInsufficientClaim) {
		t.Fatalf("expected ErrInsufficientClaim, got %v", err)
	}
	if got := f.claims.Balance(userAddr, "WETH"); got.Cmp(remaining) != 0 {
		t.Fatalf("failed take must not move funds: %s", got)
	}
	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", userAddr, dest, remaining); err != nil {
		t.Fatalf("final take: %v", err)
	}
	if f.claims.Balance(userAddr, "WETH").Sign() != 0 {
		t.Fatal("balance must drain to zero")
	}
	if len(f.sink.ofType(events.TypeTokensTaken)) != 2 {
		t.Fatal("expected two TokensTaken events")
	}
}

func TestTakeTokensGuards(t *testing.T) {
	f := buildFixture(t)
	ctx := context.Background()
	dest := common.HexToAddress("0x0000000000000000000000000000000000000077")

	if err := f.router.TakeTokens(ctx, userAddr, "WETH", userAddr, dest, big.NewInt(1)); !errors.Is(err, ErrNotRelayer) {
		t.Fatalf("expected ErrNotRelayer, got %v", err)
	}
	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", common.Address{}, dest, big.NewInt(1)); !errors.Is(err, ErrBadFrom) {
		t.Fatalf("expected ErrBadFrom, got %v", err)
	}
	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", userAddr, common.Address{}, big.NewInt(1)); !errors.Is(err, ErrBadTo) {
		t.Fatalf("expected ErrBadTo, got %v", err)
	}
	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", userAddr, dest, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := f.router.TakeTokens(ctx, relayerAddr, "WETH", userAddr, dest, big.NewInt(1)); !errors.Is(err, ErrInsufficientClaim) {
		t.Fatalf("expected ErrInsufficientClaim, got %v", err)
	}
}

func TestAdminGating(t *testing.T) {
	f := buildFixture(t)
	if err := f.router.SetRelayer(userAddr, relayerAddr, false); !errors.Is(err, settlement.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	batch := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		common.HexToAddress("0x00000000000000000000000000000000000000a2"),
	}
	if err := f.router.BulkSetRelayers(ownerAddr, batch, true); err != nil {
		t.Fatalf("bulk set: %v", err)
	}
	for _, addr := range batch {
		if !f.router.AuthorizedRelayer(addr) {
			t.Fatalf("relayer %s missing", addr.Hex())
		}
	}
	if got := len(f.sink.ofType(events.TypeRelayerSet)); got != 3 {
		t.Fatalf("expected 3 RelayerSet events, got %d", got)
	}
	if err := f.router.SetPoolEnabled(ownerAddr, f.key, false); err != nil {
		t.Fatalf("disable pool: %v", err)
	}
	if f.router.PoolEnabled(f.key.ID()) {
		t.Fatal("pool must be disabled")
	}
}
