package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/native/quote"
	"upiramp/native/router"
	"upiramp/native/settlement"
	"upiramp/native/ticket"
	"upiramp/native/venue"
	"upiramp/storage"
)

var (
	testOwner   = common.HexToAddress("0x0000000000000000000000000000000000000011")
	testMinter  = common.HexToAddress("0x0000000000000000000000000000000000000022")
	testHook    = common.HexToAddress("0x0000000000000000000000000000000000000033")
	testEngine  = common.HexToAddress("0x0000000000000000000000000000000000000044")
	testRelayer = common.HexToAddress("0x0000000000000000000000000000000000000055")
	testUser    = common.HexToAddress("0x0000000000000000000000000000000000000066")
)

type testServer struct {
	handler http.Handler
	now     *time.Time
	pool    venue.PoolKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	base := time.Date(2026, time.February, 3, 11, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	tickets := ticket.NewLedger(testMinter, testHook)
	vault := settlement.NewVault(testOwner, testHook)
	hook, err := settlement.NewHook(testHook, testOwner, tickets, vault)
	if err != nil {
		t.Fatalf("new hook: %v", err)
	}
	hook.SetClock(clock)
	amm := venue.NewConstantProduct()
	claims := router.NewClaims()
	r, err := router.NewRouter(testOwner, hook, amm, claims, testEngine)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	r.WithClock(clock)

	pair := quote.Pair{
		BaseSymbol: "WETH", BaseDecimals: 18,
		QuoteSymbol: "USDC", QuoteDecimals: 6,
		Fiat: "INR", FiatDecimals: 0,
	}
	quotes, err := quote.NewEngine(pair, r)
	if err != nil {
		t.Fatalf("new quote engine: %v", err)
	}
	quotes.WithClock(clock)
	quotes.RecordFiatRate(big.NewRat(85, 1), base)
	quotes.RecordBaseRate(big.NewRat(4000, 1), base)

	store, err := storage.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	quotes.SetStore(store)
	tickets.SetStore(store)
	r.SetStore(store)

	pool := venue.PoolKey{AssetA: "USDC", AssetB: "WETH", FeeBps: 30, TickSpacing: 60, Hook: testHook}
	if err := amm.AddLiquidity(pool, big.NewInt(4_000_000_000), big.NewInt(1_000_000_000_000_000_000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if err := r.SetRelayer(testOwner, testRelayer, true); err != nil {
		t.Fatalf("set relayer: %v", err)
	}
	if err := r.SetPoolEnabled(testOwner, pool, true); err != nil {
		t.Fatalf("enable pool: %v", err)
	}
	if err := vault.Fund(testOwner, "USDC", big.NewInt(10_000_000_000)); err != nil {
		t.Fatalf("fund vault: %v", err)
	}

	auth, err := NewAuthenticator(AuthConfig{
		AdminToken:    "admin-token",
		MinterToken:   "minter-token",
		RelayerTokens: map[string]common.Address{"relayer-token": testRelayer},
	})
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	srv, err := New(Config{
		ListenAddress: ":0",
		SlippageBps:   9500,
		Owner:         testOwner,
		Minter:        testMinter,
		Hook:          testHook,
	}, Runtime{
		Quotes:  quotes,
		Tickets: tickets,
		Vault:   vault,
		Hook:    hook,
		Router:  r,
		Storage: store,
	}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), auth)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{handler: srv.Handler(), now: &now, pool: pool}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestLockAndGetQuote(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/quotes", "relayer-token", map[string]string{
		"user":        testUser.Hex(),
		"fiat_amount": "10000",
		"type":        "buy_base",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("lock status %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["output_amount"] != "29411764705882352" {
		t.Fatalf("unexpected output: %v", payload["output_amount"])
	}
	if payload["input_amount"] != "117647058" {
		t.Fatalf("unexpected input: %v", payload["input_amount"])
	}
	id, _ := payload["id"].(string)
	if id == "" {
		t.Fatal("quote id missing")
	}
	rec = ts.do(t, http.MethodGet, "/v1/quotes/"+id, "relayer-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/v1/quotes/"+id, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated get must fail, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/v1/quotes/missing", "relayer-token", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing quote status %d", rec.Code)
	}
}

func TestClaimQuoteOnce(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/quotes", "relayer-token", map[string]string{
		"user":        testUser.Hex(),
		"fiat_amount": "10000",
		"type":        "buy_base",
	})
	id := decodeBody(t, rec)["id"].(string)
	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+id+"/claim", "relayer-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+id+"/claim", "relayer-token", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second claim status %d", rec.Code)
	}
}

func TestMintTicketRequiresMinterRole(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]string{"transaction_id": "UPI-1"}
	rec := ts.do(t, http.MethodPost, "/v1/tickets", "relayer-token", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("relayer mint status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/v1/tickets", "minter-token", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint status %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodPost, "/v1/tickets", "minter-token", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate mint status %d", rec.Code)
	}
}

func TestSwapFlowWithReplay(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/quotes", "relayer-token", map[string]string{
		"user":        testUser.Hex(),
		"fiat_amount": "10000",
		"type":        "buy_base",
	})
	quoteID := decodeBody(t, rec)["id"].(string)
	rec = ts.do(t, http.MethodPost, "/v1/quotes/"+quoteID+"/claim", "relayer-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/v1/tickets", "minter-token", map[string]string{"transaction_id": "UPI-2"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint status %d", rec.Code)
	}

	swap := map[string]any{
		"quote_id":       quoteID,
		"transaction_id": "UPI-2",
		"user":           testUser.Hex(),
		"deadline":       ts.now.Add(time.Minute).Unix(),
		"mode":           "exact_in",
		"a_to_b":         true,
		"pool": map[string]any{
			"asset_a":      "USDC",
			"asset_b":      "WETH",
			"fee_bps":      uint32(30),
			"tick_spacing": int32(60),
		},
	}
	rec = ts.do(t, http.MethodPost, "/v1/swaps", "relayer-token", swap)
	if rec.Code != http.StatusOK {
		t.Fatalf("swap status %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	claimed, _ := payload["claimed_amount"].(string)
	if claimed == "" || claimed == "0" {
		t.Fatalf("expected claimed output, got %v", payload)
	}

	// Same transaction id again: the ticket is spent.
	rec = ts.do(t, http.MethodPost, "/v1/swaps", "relayer-token", swap)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay status %d: %s", rec.Code, rec.Body.String())
	}

	// Drain the claim through the take endpoint.
	rec = ts.do(t, http.MethodPost, "/v1/claims/take", "relayer-token", map[string]string{
		"asset":  "WETH",
		"from":   testUser.Hex(),
		"to":     testUser.Hex(),
		"amount": claimed,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("take status %d: %s", rec.Code, rec.Body.String())
	}
	if remaining := decodeBody(t, rec)["remaining"]; remaining != "0" {
		t.Fatalf("expected drained claim, got %v", remaining)
	}
	rec = ts.do(t, http.MethodPost, "/v1/claims/take", "relayer-token", map[string]string{
		"asset":  "WETH",
		"from":   testUser.Hex(),
		"to":     testUser.Hex(),
		"amount": "1",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw status %d", rec.Code)
	}
}

func TestSwapQuoteExpired(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/quotes", "relayer-token", map[string]string{
		"user":        testUser.Hex(),
		"fiat_amount": "10000",
		"type":        "buy_base",
	})
	quoteID := decodeBody(t, rec)["id"].(string)
	rec = ts.do(t, http.MethodPost, "/v1/tickets", "minter-token", map[string]string{"transaction_id": "UPI-3"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint status %d", rec.Code)
	}
	*ts.now = ts.now.Add(16 * time.Second)
	rec = ts.do(t, http.MethodPost, "/v1/swaps", "relayer-token", map[string]any{
		"quote_id":       quoteID,
		"transaction_id": "UPI-3",
		"user":           testUser.Hex(),
		"deadline":       ts.now.Add(time.Minute).Unix(),
		"mode":           "exact_in",
		"a_to_b":         true,
		"pool": map[string]any{
			"asset_a": "USDC", "asset_b": "WETH",
			"fee_bps": uint32(30), "tick_spacing": int32(60),
		},
	})
	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("expired quote status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/admin/vault/fund", "admin-token", map[string]string{
		"asset":  "USDC",
		"amount": "500",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fund status %d: %s", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, "/admin/vault", "admin-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("vault status %d", rec.Code)
	}
	balances := decodeBody(t, rec)["balances"].(map[string]any)
	if balances["USDC"] != "10000000500" {
		t.Fatalf("unexpected balance: %v", balances["USDC"])
	}

	rec = ts.do(t, http.MethodPost, "/admin/pause", "admin-token", map[string]any{
		"component": "router", "paused": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/v1/claims/take", "relayer-token", map[string]string{
		"asset": "WETH", "from": testUser.Hex(), "to": testUser.Hex(), "amount": "1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("paused take status %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/admin/relayers", "relayer-token", map[string]any{
		"addresses": []string{testRelayer.Hex()}, "authorized": false,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("relayer admin call status %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/admin/limits", "admin-token", map[string]string{
		"asset": "USDC", "max_per_tx": "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("limits status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/admin/rates", "admin-token", map[string]string{
		"fiat_rate": "86", "base_rate": "4100",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rates status %d", rec.Code)
	}
}
