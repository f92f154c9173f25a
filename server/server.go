package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"upiramp/native/quote"
	"upiramp/native/router"
	"upiramp/native/settlement"
	"upiramp/native/ticket"
	"upiramp/native/venue"
	"upiramp/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	SlippageBps   uint32
	Owner         common.Address
	Minter        common.Address
	Hook          common.Address
}

// Runtime bundles the ledgers and engines the handlers operate on.
type Runtime struct {
	Quotes  *quote.Engine
	Tickets *ticket.Ledger
	Vault   *settlement.Vault
	Hook    *settlement.Hook
	Router  *router.Router
	Storage *storage.Storage
}

// Server hosts the relayer and admin HTTP surface for rampd.
type Server struct {
	cfg     Config
	runtime Runtime
	logger  *slog.Logger
	auth    *Authenticator
}

// New constructs the HTTP server.
func New(cfg Config, runtime Runtime, logger *slog.Logger, auth *Authenticator) (*Server, error) {
	if runtime.Quotes == nil || runtime.Tickets == nil || runtime.Router == nil || runtime.Hook == nil || runtime.Vault == nil {
		return nil, fmt.Errorf("runtime ledgers required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SlippageBps == 0 || cfg.SlippageBps > 10_000 {
		cfg.SlippageBps = 9_500
	}
	return &Server{cfg: cfg, runtime: runtime, logger: logger, auth: auth}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(s.handleHealth), "rampd.health"))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/v1/quotes", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleQuotes), RoleRelayer, RoleAdmin), "rampd.quotes"))
	mux.Handle("/v1/quotes/", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleQuoteByID), RoleRelayer, RoleAdmin), "rampd.quote"))
	mux.Handle("/v1/tickets", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleMintTicket), RoleMinter), "rampd.tickets"))
	mux.Handle("/v1/swaps", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleSwap), RoleRelayer), "rampd.swaps"))
	mux.Handle("/v1/claims/take", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleTakeTokens), RoleRelayer), "rampd.claims"))
	mux.Handle("/admin/relayers", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleRelayers), RoleAdmin), "rampd.admin.relayers"))
	mux.Handle("/admin/pools", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handlePools), RoleAdmin), "rampd.admin.pools"))
	mux.Handle("/admin/pause", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handlePause), RoleAdmin), "rampd.admin.pause"))
	mux.Handle("/admin/limits", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleLimits), RoleAdmin), "rampd.admin.limits"))
	mux.Handle("/admin/rates", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleRates), RoleAdmin), "rampd.admin.rates"))
	mux.Handle("/admin/vault", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleVault), RoleAdmin), "rampd.admin.vault"))
	mux.Handle("/admin/vault/fund", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleVaultFund), RoleAdmin), "rampd.admin.vault.fund"))
	mux.Handle("/admin/settlements", otelhttp.NewHandler(s.auth.Require(http.HandlerFunc(s.handleSettlements), RoleAdmin), "rampd.admin.settlements"))
	return mux
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type quoteResponse struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	Type         string `json:"type"`
	FiatAmount   string `json:"fiat_amount"`
	OutputAsset  string `json:"output_asset"`
	OutputAmount string `json:"output_amount"`
	InputAsset   string `json:"input_asset"`
	InputAmount  string `json:"input_amount"`
	LockedAt     int64  `json:"locked_at"`
	ExpiresAt    int64  `json:"expires_at"`
	Claimed      bool   `json:"claimed"`
}

func quoteView(q *quote.Quote) quoteResponse {
	return quoteResponse{
		ID:           q.ID,
		User:         q.User.Hex(),
		Type:         string(q.Type),
		FiatAmount:   q.FiatAmount.String(),
		OutputAsset:  q.OutputAsset,
		OutputAmount: q.OutputAmount.String(),
		InputAsset:   q.InputAsset,
		InputAmount:  q.InputAmount.String(),
		LockedAt:     q.LockedAt.Unix(),
		ExpiresAt:    q.ExpiresAt.Unix(),
		Claimed:      q.Claimed,
	}
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.lockQuote(w, r)
	case http.MethodGet:
		s.listQuotes(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) lockQuote(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req struct {
		User       string `json:"user"`
		FiatAmount string `json:"fiat_amount"`
		Type       string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		http.Error(w, "invalid user address", http.StatusBadRequest)
		return
	}
	fiat, ok := parseAmount(req.FiatAmount)
	if !ok {
		http.Error(w, "invalid fiat amount", http.StatusBadRequest)
		return
	}
	q, err := s.runtime.Quotes.Lock(r.Context(), principal.Address, user, fiat, quote.ConversionType(req.Type))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quoteView(q))
}

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	if s.runtime.Storage == nil {
		http.Error(w, "audit log unavailable", http.StatusServiceUnavailable)
		return
	}
	var user *common.Address
	if raw := r.URL.Query().Get("user"); raw != "" {
		addr, ok := parseAddress(raw)
		if !ok {
			http.Error(w, "invalid user filter", http.StatusBadRequest)
			return
		}
		user = &addr
	}
	records, err := s.runtime.Storage.ListQuotes(r.Context(), user, r.URL.Query().Get("cursor"), 50)
	if err != nil {
		s.logger.Error("list quotes", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	cursor := ""
	if len(records) > 0 {
		cursor = records[len(records)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": records, "next_cursor": cursor})
}

func (s *Server) handleQuoteByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/quotes/")
	if rest == "" {
		http.Error(w, "quote id required", http.StatusBadRequest)
		return
	}
	if id, found := strings.CutSuffix(rest, "/claim"); found {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		principal, _ := PrincipalFromContext(r.Context())
		if err := s.runtime.Quotes.Claim(r.Context(), principal.Address, id); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := s.runtime.Quotes.Get(rest, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteView(q))
}

func (s *Server) handleMintTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	// Tickets mint straight to the hook; transfer-lock forbids other custody.
	if err := s.runtime.Tickets.Mint(r.Context(), s.cfg.Minter, req.TransactionID, s.cfg.Hook); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"transaction_id": strings.TrimSpace(req.TransactionID),
		"owner":          s.cfg.Hook.Hex(),
	})
}

type swapRequest struct {
	QuoteID       string `json:"quote_id"`
	TransactionID string `json:"transaction_id"`
	User          string `json:"user"`
	Deadline      int64  `json:"deadline"`
	MinOut        string `json:"min_out"`
	MaxIn         string `json:"max_in"`
	Mode          string `json:"mode"`
	AToB          bool   `json:"a_to_b"`
	ImmediateTake bool   `json:"immediate_take"`
	TakeAmount    string `json:"take_amount"`
	Pool          struct {
		AssetA      string `json:"asset_a"`
		AssetB      string `json:"asset_b"`
		FeeBps      uint32 `json:"fee_bps"`
		TickSpacing int32  `json:"tick_spacing"`
	} `json:"pool"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	user, ok := parseAddress(req.User)
	if !ok {
		http.Error(w, "invalid user address", http.StatusBadRequest)
		return
	}
	data := settlement.TicketData{
		TransactionID: strings.TrimSpace(req.TransactionID),
		User:          user,
		Deadline:      req.Deadline,
		Mode:          settlement.Mode(req.Mode),
	}
	if req.QuoteID != "" {
		// Quote-bound swaps derive their bounds from the locked quote with
		// the configured slippage band on the output.
		if err := s.runtime.Quotes.EnsureExecutable(req.QuoteID); err != nil {
			s.writeError(w, err)
			return
		}
		q, err := s.runtime.Quotes.Get(req.QuoteID, nil)
		if err != nil {
			s.writeError(w, err)
			return
		}
		data.MinOut = q.MinOutput(s.cfg.SlippageBps)
		data.MaxIn = new(big.Int).Set(q.InputAmount)
	} else {
		minOut, ok := parseAmount(req.MinOut)
		if !ok {
			http.Error(w, "invalid min_out", http.StatusBadRequest)
			return
		}
		maxIn, ok := parseAmount(req.MaxIn)
		if !ok {
			http.Error(w, "invalid max_in", http.StatusBadRequest)
			return
		}
		data.MinOut = minOut
		data.MaxIn = maxIn
	}
	params := router.SwapParams{
		Pool: venue.PoolKey{
			AssetA:      req.Pool.AssetA,
			AssetB:      req.Pool.AssetB,
			FeeBps:      req.Pool.FeeBps,
			TickSpacing: req.Pool.TickSpacing,
			Hook:        s.cfg.Hook,
		},
		Ticket:        data,
		AToB:          req.AToB,
		ImmediateTake: req.ImmediateTake,
	}
	if req.TakeAmount != "" {
		take, ok := parseAmount(req.TakeAmount)
		if !ok {
			http.Error(w, "invalid take_amount", http.StatusBadRequest)
			return
		}
		params.TakeAmount = take
	}
	outcome, err := s.runtime.Router.SwapWithHook(r.Context(), principal.Address, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pool_id":        outcome.PoolID.Hex(),
		"asset_in":       outcome.Result.AssetIn,
		"amount_in":      outcome.Result.AmountIn.String(),
		"asset_out":      outcome.Result.AssetOut,
		"amount_out":     outcome.Result.AmountOut.String(),
		"taken_amount":   outcome.TakenAmount.String(),
		"claimed_amount": outcome.ClaimedAmount.String(),
	})
}

func (s *Server) handleTakeTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req struct {
		Asset  string `json:"asset"`
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	from, ok := parseAddress(req.From)
	if !ok {
		http.Error(w, "invalid from address", http.StatusBadRequest)
		return
	}
	to, ok := parseAddress(req.To)
	if !ok {
		http.Error(w, "invalid to address", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	if err := s.runtime.Router.TakeTokens(r.Context(), principal.Address, req.Asset, from, to, amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "taken",
		"remaining": s.runtime.Router.Claims().Balance(from, req.Asset).String(),
	})
}

func (s *Server) handleRelayers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Addresses  []string `json:"addresses"`
		Authorized bool     `json:"authorized"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	relayers := make([]common.Address, 0, len(req.Addresses))
	for _, raw := range req.Addresses {
		addr, ok := parseAddress(raw)
		if !ok {
			http.Error(w, "invalid relayer address", http.StatusBadRequest)
			return
		}
		relayers = append(relayers, addr)
	}
	if len(relayers) == 0 {
		http.Error(w, "at least one address required", http.StatusBadRequest)
		return
	}
	if err := s.runtime.Router.BulkSetRelayers(s.cfg.Owner, relayers, req.Authorized); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(relayers), "authorized": req.Authorized})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AssetA      string `json:"asset_a"`
		AssetB      string `json:"asset_b"`
		FeeBps      uint32 `json:"fee_bps"`
		TickSpacing int32  `json:"tick_spacing"`
		Enabled     bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	key := venue.PoolKey{AssetA: req.AssetA, AssetB: req.AssetB, FeeBps: req.FeeBps, TickSpacing: req.TickSpacing, Hook: s.cfg.Hook}
	if err := s.runtime.Router.SetPoolEnabled(s.cfg.Owner, key, req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool_id": key.ID().Hex(), "enabled": req.Enabled})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Component string `json:"component"`
		Paused    bool   `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Component)) {
	case "router", "":
		err = s.runtime.Router.SetPaused(s.cfg.Owner, req.Paused)
	case "hook":
		err = s.runtime.Hook.SetPaused(s.cfg.Owner, req.Paused)
	default:
		http.Error(w, "unknown component", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": req.Paused})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Asset    string `json:"asset"`
		MaxPerTx string `json:"max_per_tx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	var limit *big.Int
	if strings.TrimSpace(req.MaxPerTx) != "" {
		parsed, ok := parseAmount(req.MaxPerTx)
		if !ok {
			http.Error(w, "invalid max_per_tx", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if err := s.runtime.Hook.SetMaxPerTx(s.cfg.Owner, req.Asset, limit); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": strings.ToUpper(strings.TrimSpace(req.Asset))})
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		FiatRate string `json:"fiat_rate"`
		BaseRate string `json:"base_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	now := time.Now()
	updated := 0
	if raw := strings.TrimSpace(req.FiatRate); raw != "" {
		rate, ok := new(big.Rat).SetString(raw)
		if !ok || rate.Sign() <= 0 {
			http.Error(w, "invalid fiat_rate", http.StatusBadRequest)
			return
		}
		s.runtime.Quotes.RecordFiatRate(rate, now)
		updated++
	}
	if raw := strings.TrimSpace(req.BaseRate); raw != "" {
		rate, ok := new(big.Rat).SetString(raw)
		if !ok || rate.Sign() <= 0 {
			http.Error(w, "invalid base_rate", http.StatusBadRequest)
			return
		}
		s.runtime.Quotes.RecordBaseRate(rate, now)
		updated++
	}
	if updated == 0 {
		http.Error(w, "at least one rate required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	balances := s.runtime.Vault.Balances()
	view := make(map[string]string, len(balances))
	for asset, amount := range balances {
		view[asset] = amount.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": view})
}

func (s *Server) handleVaultFund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	if err := s.runtime.Vault.Fund(s.cfg.Owner, req.Asset, amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   strings.ToUpper(strings.TrimSpace(req.Asset)),
		"balance": s.runtime.Vault.Balance(req.Asset).String(),
	})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runtime.Storage == nil {
		http.Error(w, "audit log unavailable", http.StatusServiceUnavailable)
		return
	}
	records, err := s.runtime.Storage.ListSettlements(r.Context(), 50)
	if err != nil {
		s.logger.Error("list settlements", "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": records})
}

// writeError maps ledger sentinels to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, quote.ErrUnauthorized),
		errors.Is(err, router.ErrNotRelayer),
		errors.Is(err, ticket.ErrNotMinter),
		errors.Is(err, ticket.ErrNotHook),
		errors.Is(err, ticket.ErrNotOwner),
		errors.Is(err, settlement.ErrNotOwner),
		errors.Is(err, settlement.ErrNotVaultHook):
		status = http.StatusForbidden
	case errors.Is(err, quote.ErrQuoteAlreadyClaimed),
		errors.Is(err, ticket.ErrAlreadyMinted),
		errors.Is(err, settlement.ErrTicketUsed),
		errors.Is(err, settlement.ErrPaused),
		errors.Is(err, router.ErrPaused),
		errors.Is(err, router.ErrPoolDisabled):
		status = http.StatusConflict
	case errors.Is(err, quote.ErrQuoteExpired),
		errors.Is(err, settlement.ErrDeadlineExpired):
		status = http.StatusRequestTimeout
	case errors.Is(err, quote.ErrQuoteNotFound),
		errors.Is(err, ticket.ErrNotExists),
		errors.Is(err, settlement.ErrTicketMissing),
		errors.Is(err, venue.ErrPoolNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quote.ErrInvalidAmount),
		errors.Is(err, quote.ErrInvalidType),
		errors.Is(err, quote.ErrPriceUnavailable),
		errors.Is(err, ticket.ErrInvalidTransactionID),
		errors.Is(err, ticket.ErrTransferRestricted),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrAmountExceedsLimit),
		errors.Is(err, settlement.ErrInsufficientBalance),
		errors.Is(err, router.ErrInsufficientClaim),
		errors.Is(err, router.ErrBadUser),
		errors.Is(err, router.ErrBadFrom),
		errors.Is(err, router.ErrBadTo),
		errors.Is(err, router.ErrZeroAmount),
		errors.Is(err, venue.ErrInsufficientOutput),
		errors.Is(err, venue.ErrInsufficientLiquidity),
		errors.Is(err, venue.ErrInvalidKey):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAddress(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAmount(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}
