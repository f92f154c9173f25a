package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rampd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
listen: ":9090"
accounts:
  owner: "0x0000000000000000000000000000000000000011"
  minter: "0x0000000000000000000000000000000000000022"
  hook: "0x0000000000000000000000000000000000000033"
  engine: "0x0000000000000000000000000000000000000044"
quotes:
  base_symbol: WETH
  base_decimals: 18
  quote_symbol: USDC
  quote_decimals: 6
  fiat: INR
  window: 15s
pools:
  - asset_a: USDC
    asset_b: WETH
    fee_bps: 30
    tick_spacing: 60
    reserve_a: "4000000000"
    reserve_b: "1000000"
relayers:
  - address: "0x0000000000000000000000000000000000000055"
    token: secret-token
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("unexpected listen: %s", cfg.ListenAddress)
	}
	if cfg.Quotes.Window.Duration != 15*time.Second {
		t.Fatalf("unexpected window: %s", cfg.Quotes.Window.Duration)
	}
	if cfg.Quotes.MaxRateAge.Duration != 30*time.Second {
		t.Fatalf("max rate age default missing: %s", cfg.Quotes.MaxRateAge.Duration)
	}
	if cfg.Quotes.SlippageBps != 9500 {
		t.Fatalf("slippage default missing: %d", cfg.Quotes.SlippageBps)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("environment default missing: %s", cfg.Environment)
	}
	owner, err := cfg.Accounts.Address("owner")
	if err != nil {
		t.Fatalf("owner address: %v", err)
	}
	if owner.Hex() != "0x0000000000000000000000000000000000000011" {
		t.Fatalf("unexpected owner: %s", owner.Hex())
	}
}

func TestLoadRejectsBadAddress(t *testing.T) {
	bad := `
accounts:
  owner: "not-an-address"
  minter: "0x0000000000000000000000000000000000000022"
  hook: "0x0000000000000000000000000000000000000033"
  engine: "0x0000000000000000000000000000000000000044"
quotes:
  base_symbol: WETH
  quote_symbol: USDC
pools:
  - asset_a: USDC
    asset_b: WETH
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadRequiresPool(t *testing.T) {
	bad := `
accounts:
  owner: "0x0000000000000000000000000000000000000011"
  minter: "0x0000000000000000000000000000000000000022"
  hook: "0x0000000000000000000000000000000000000033"
  engine: "0x0000000000000000000000000000000000000044"
quotes:
  base_symbol: WETH
  quote_symbol: USDC
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected validation error for missing pools")
	}
}

func TestLoadRejectsRelayerWithoutToken(t *testing.T) {
	bad := validConfig + `
  - address: "0x0000000000000000000000000000000000000066"
    token: ""
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected validation error for empty relayer token")
	}
}

func TestVaultBalances(t *testing.T) {
	body := validConfig + `
vault:
  balances:
    USDC: "1000"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load with vault: %v", err)
	}
	if cfg.Vault.Balances["USDC"] != "1000" {
		t.Fatalf("vault balances missing: %+v", cfg.Vault.Balances)
	}
}
