package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"stableguard/native/auction"
)

// Config carries the auctiond service configuration. The Auction section maps
// directly onto the engine's governable parameters; everything else wires the
// process (listeners, storage, access control).
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	NetworkName    string `toml:"NetworkName"`
	Environment    string `toml:"Environment"`

	// OwnerAddress is the bech32 account allowed to call governance and
	// emergency operations. VaultAddress holds module funds.
	OwnerAddress string `toml:"OwnerAddress"`
	VaultAddress string `toml:"VaultAddress"`

	// RPCTokenEnv names the environment variable holding the bearer token
	// required for privileged RPC methods.
	RPCTokenEnv string `toml:"RPCTokenEnv"`

	// RPCRateLimit caps JSON-RPC requests per second per client, with
	// RPCRateBurst extra headroom.
	RPCRateLimit float64 `toml:"RPCRateLimit"`
	RPCRateBurst int     `toml:"RPCRateBurst"`

	// BlockIntervalSeconds drives the synthetic block height the
	// flashloan and same-block heuristics key on.
	BlockIntervalSeconds int64 `toml:"BlockIntervalSeconds"`

	// ReferencePrices maps asset symbols to their 18-decimal reference
	// price, consumed when opening auctions for seized positions.
	ReferencePrices map[string]string `toml:"ReferencePrices"`

	Auction AuctionConfig `toml:"Auction"`
}

// AuctionConfig mirrors the engine parameters governance can tune.
type AuctionConfig struct {
	DurationSeconds     int64  `toml:"DurationSeconds"`
	MinPriceFactorBps   uint64 `toml:"MinPriceFactorBps"`
	LiquidationBonusBps uint64 `toml:"LiquidationBonusBps"`
}

// EngineConfig converts the TOML section into the engine's config type.
func (a AuctionConfig) EngineConfig() auction.Config {
	return auction.Config{
		DurationSeconds:     a.DurationSeconds,
		MinPriceFactorBps:   a.MinPriceFactorBps,
		LiquidationBonusBps: a.LiquidationBonusBps,
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "stableguard-local"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	if strings.TrimSpace(c.RPCTokenEnv) == "" {
		c.RPCTokenEnv = "SG_RPC_TOKEN"
	}
	if c.RPCRateLimit <= 0 {
		c.RPCRateLimit = 20
	}
	if c.RPCRateBurst <= 0 {
		c.RPCRateBurst = 40
	}
	if c.BlockIntervalSeconds <= 0 {
		c.BlockIntervalSeconds = 2
	}
	def := auction.DefaultConfig()
	if c.Auction.DurationSeconds == 0 {
		c.Auction.DurationSeconds = def.DurationSeconds
	}
	if c.Auction.MinPriceFactorBps == 0 {
		c.Auction.MinPriceFactorBps = def.MinPriceFactorBps
	}
	if c.Auction.LiquidationBonusBps == 0 {
		c.Auction.LiquidationBonusBps = def.LiquidationBonusBps
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	def := auction.DefaultConfig()
	cfg := &Config{
		RPCAddress:           ":8545",
		MetricsAddress:       ":9464",
		DataDir:              "./stableguard-data",
		NetworkName:          "stableguard-local",
		Environment:          "dev",
		RPCTokenEnv:          "SG_RPC_TOKEN",
		RPCRateLimit:         20,
		RPCRateBurst:         40,
		BlockIntervalSeconds: 2,
		Auction: AuctionConfig{
			DurationSeconds:     def.DurationSeconds,
			MinPriceFactorBps:   def.MinPriceFactorBps,
			LiquidationBonusBps: def.LiquidationBonusBps,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
