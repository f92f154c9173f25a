package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"upiramp/config"
	"upiramp/core/events"
	"upiramp/native/quote"
	"upiramp/native/router"
	"upiramp/native/settlement"
	"upiramp/native/ticket"
	"upiramp/native/venue"
	"upiramp/observability/logging"
	"upiramp/server"
	"upiramp/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to rampd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("rampd: load config: %v", err)
	}
	logger := logging.Setup("rampd", cfg.Environment)

	owner, err := cfg.Accounts.Address("owner")
	if err != nil {
		log.Fatalf("rampd: %v", err)
	}
	minter, err := cfg.Accounts.Address("minter")
	if err != nil {
		log.Fatalf("rampd: %v", err)
	}
	hookAddr, err := cfg.Accounts.Address("hook")
	if err != nil {
		log.Fatalf("rampd: %v", err)
	}
	engineAccount, err := cfg.Accounts.Address("engine")
	if err != nil {
		log.Fatalf("rampd: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("rampd: open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	auditEmitter := events.EmitterFunc(func(evt events.Event) {
		if err := store.RecordEvent(ctx, evt.EventType(), evt.Attributes(), time.Now()); err != nil {
			logger.Error("record event", "type", evt.EventType(), "error", err)
		}
	})
	emitter := events.MultiEmitter{events.LogEmitter{Logger: logger}, auditEmitter}

	tickets := ticket.NewLedger(minter, hookAddr)
	tickets.SetEmitter(emitter)
	tickets.SetStore(store)

	vault := settlement.NewVault(owner, hookAddr)
	vault.SetEmitter(emitter)

	hook, err := settlement.NewHook(hookAddr, owner, tickets, vault)
	if err != nil {
		log.Fatalf("rampd: settlement hook: %v", err)
	}
	hook.SetEmitter(emitter)

	amm := venue.NewConstantProduct()
	claims := router.NewClaims()
	if err := claims.SetStore(ctx, store); err != nil {
		log.Fatalf("rampd: restore claim balances: %v", err)
	}

	rt, err := router.NewRouter(owner, hook, amm, claims, engineAccount)
	if err != nil {
		log.Fatalf("rampd: router: %v", err)
	}
	rt.SetEmitter(emitter)
	rt.SetStore(store)

	quotes, err := quote.NewEngine(quote.Pair{
		BaseSymbol:    strings.ToUpper(strings.TrimSpace(cfg.Quotes.BaseSymbol)),
		BaseDecimals:  cfg.Quotes.BaseDecimals,
		QuoteSymbol:   strings.ToUpper(strings.TrimSpace(cfg.Quotes.QuoteSymbol)),
		QuoteDecimals: cfg.Quotes.QuoteDecimals,
		Fiat:          strings.ToUpper(strings.TrimSpace(cfg.Quotes.Fiat)),
		FiatDecimals:  cfg.Quotes.FiatDecimals,
	}, rt)
	if err != nil {
		log.Fatalf("rampd: quote engine: %v", err)
	}
	quotes.SetWindow(cfg.Quotes.Window.Duration)
	quotes.SetMaxRateAge(cfg.Quotes.MaxRateAge.Duration)
	quotes.SetEmitter(emitter)
	quotes.SetStore(store)

	seedRuntime(cfg, logger, owner, hookAddr, rt, hook, vault, amm)

	authenticator, err := server.NewAuthenticator(server.AuthConfig{
		AdminToken:    cfg.Auth.AdminToken,
		MinterToken:   cfg.Auth.MinterToken,
		RelayerTokens: relayerTokens(cfg),
	})
	if err != nil {
		log.Fatalf("rampd: configure auth: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		SlippageBps:   cfg.Quotes.SlippageBps,
		Owner:         owner,
		Minter:        minter,
		Hook:          hookAddr,
	}, server.Runtime{
		Quotes:  quotes,
		Tickets: tickets,
		Vault:   vault,
		Hook:    hook,
		Router:  rt,
		Storage: store,
	}, logger, authenticator)
	if err != nil {
		log.Fatalf("rampd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}

func relayerTokens(cfg config.Config) map[string]common.Address {
	tokens := make(map[string]common.Address, len(cfg.Relayers))
	for _, relayer := range cfg.Relayers {
		tokens[strings.TrimSpace(relayer.Token)] = common.HexToAddress(strings.TrimSpace(relayer.Address))
	}
	return tokens
}

func seedRuntime(cfg config.Config, logger *slog.Logger, owner, hookAddr common.Address, rt *router.Router, hook *settlement.Hook, vault *settlement.Vault, amm *venue.ConstantProduct) {
	for _, relayer := range cfg.Relayers {
		addr := common.HexToAddress(strings.TrimSpace(relayer.Address))
		if err := rt.SetRelayer(owner, addr, true); err != nil {
			log.Fatalf("rampd: authorise relayer %s: %v", addr.Hex(), err)
		}
	}
	for i, pool := range cfg.Pools {
		key := venue.PoolKey{
			AssetA:      pool.AssetA,
			AssetB:      pool.AssetB,
			FeeBps:      pool.FeeBps,
			TickSpacing: pool.TickSpacing,
			Hook:        hookAddr,
		}
		reserveA, okA := new(big.Int).SetString(strings.TrimSpace(pool.ReserveA), 10)
		reserveB, okB := new(big.Int).SetString(strings.TrimSpace(pool.ReserveB), 10)
		if okA && okB && reserveA.Sign() > 0 && reserveB.Sign() > 0 {
			if err := amm.AddLiquidity(key, reserveA, reserveB); err != nil {
				log.Fatalf("rampd: seed pool %d: %v", i, err)
			}
		} else {
			logger.Warn("pool configured without reserves", "asset_a", key.AssetA, "asset_b", key.AssetB)
		}
		if err := rt.SetPoolEnabled(owner, key, true); err != nil {
			log.Fatalf("rampd: enable pool %d: %v", i, err)
		}
	}
	for asset, raw := range cfg.Vault.Balances {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok || amount.Sign() <= 0 {
			log.Fatalf("rampd: invalid vault balance for %s: %q", asset, raw)
		}
		if err := vault.Fund(owner, asset, amount); err != nil {
			log.Fatalf("rampd: fund vault %s: %v", asset, err)
		}
	}
	for _, limit := range cfg.Limits {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(limit.MaxPerTx), 10)
		if !ok || amount.Sign() <= 0 {
			log.Fatalf("rampd: invalid limit for %s: %q", limit.Asset, limit.MaxPerTx)
		}
		if err := hook.SetMaxPerTx(owner, limit.Asset, amount); err != nil {
			log.Fatalf("rampd: set limit %s: %v", limit.Asset, err)
		}
	}
}
