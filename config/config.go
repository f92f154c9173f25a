package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for rampd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	DatabasePath  string          `yaml:"database"`
	Accounts      AccountsConfig  `yaml:"accounts"`
	Auth          AuthConfig      `yaml:"auth"`
	Quotes        QuoteConfig     `yaml:"quotes"`
	Pools         []PoolConfig    `yaml:"pools"`
	Vault         VaultConfig     `yaml:"vault"`
	Limits        []LimitConfig   `yaml:"limits"`
	Relayers      []RelayerConfig `yaml:"relayers"`
}

// AccountsConfig pins the protocol role addresses.
type AccountsConfig struct {
	Owner  string `yaml:"owner"`
	Minter string `yaml:"minter"`
	Hook   string `yaml:"hook"`
	Engine string `yaml:"engine"`
}

// AuthConfig carries bearer tokens for the HTTP surface.
type AuthConfig struct {
	AdminToken  string `yaml:"admin_token"`
	MinterToken string `yaml:"minter_token"`
}

// RelayerConfig authorises one relayer and its API token.
type RelayerConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
}

// QuoteConfig tunes the quote ledger.
type QuoteConfig struct {
	BaseSymbol    string   `yaml:"base_symbol"`
	BaseDecimals  uint8    `yaml:"base_decimals"`
	QuoteSymbol   string   `yaml:"quote_symbol"`
	QuoteDecimals uint8    `yaml:"quote_decimals"`
	Fiat          string   `yaml:"fiat"`
	FiatDecimals  uint8    `yaml:"fiat_decimals"`
	Window        Duration `yaml:"window"`
	MaxRateAge    Duration `yaml:"max_rate_age"`
	SlippageBps   uint32   `yaml:"slippage_bps"`
}

// PoolConfig seeds one allowlisted venue.
type PoolConfig struct {
	AssetA      string `yaml:"asset_a"`
	AssetB      string `yaml:"asset_b"`
	FeeBps      uint32 `yaml:"fee_bps"`
	TickSpacing int32  `yaml:"tick_spacing"`
	ReserveA    string `yaml:"reserve_a"`
	ReserveB    string `yaml:"reserve_b"`
}

// VaultConfig seeds the treasury.
type VaultConfig struct {
	Balances map[string]string `yaml:"balances"`
}

// LimitConfig caps per-transaction spend for one asset.
type LimitConfig struct {
	Asset    string `yaml:"asset"`
	MaxPerTx string `yaml:"max_per_tx"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7085"
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/rampd.sqlite"
	}
	if cfg.Quotes.Window.Duration == 0 {
		cfg.Quotes.Window.Duration = 15 * time.Second
	}
	if cfg.Quotes.MaxRateAge.Duration == 0 {
		cfg.Quotes.MaxRateAge.Duration = 30 * time.Second
	}
	if cfg.Quotes.SlippageBps == 0 {
		cfg.Quotes.SlippageBps = 9500
	}
	if cfg.Quotes.Fiat == "" {
		cfg.Quotes.Fiat = "INR"
	}
}

func validate(cfg Config) error {
	for name, addr := range map[string]string{
		"owner":  cfg.Accounts.Owner,
		"minter": cfg.Accounts.Minter,
		"hook":   cfg.Accounts.Hook,
		"engine": cfg.Accounts.Engine,
	} {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return fmt.Errorf("accounts.%s must be a hex address", name)
		}
	}
	if strings.TrimSpace(cfg.Quotes.BaseSymbol) == "" || strings.TrimSpace(cfg.Quotes.QuoteSymbol) == "" {
		return fmt.Errorf("quote pair symbols must be configured")
	}
	if cfg.Quotes.SlippageBps > 10_000 {
		return fmt.Errorf("quotes.slippage_bps must not exceed 10000")
	}
	if len(cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	for i, pool := range cfg.Pools {
		if strings.TrimSpace(pool.AssetA) == "" || strings.TrimSpace(pool.AssetB) == "" {
			return fmt.Errorf("pools[%d] assets must be configured", i)
		}
	}
	for i, relayer := range cfg.Relayers {
		if !common.IsHexAddress(strings.TrimSpace(relayer.Address)) {
			return fmt.Errorf("relayers[%d].address must be a hex address", i)
		}
		if strings.TrimSpace(relayer.Token) == "" {
			return fmt.Errorf("relayers[%d].token must be configured", i)
		}
	}
	return nil
}

// Address parses one of the configured role addresses.
func (a AccountsConfig) Address(name string) (common.Address, error) {
	var raw string
	switch name {
	case "owner":
		raw = a.Owner
	case "minter":
		raw = a.Minter
	case "hook":
		raw = a.Hook
	case "engine":
		raw = a.Engine
	default:
		return common.Address{}, fmt.Errorf("unknown account %q", name)
	}
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("account %s: invalid address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}
