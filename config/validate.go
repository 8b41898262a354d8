package config

import (
	"fmt"
	"math/big"
	"strings"

	"stableguard/crypto"
)

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("rpc: listen address required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("storage: data dir required")
	}
	if c.RPCRateLimit <= 0 || c.RPCRateBurst <= 0 {
		return fmt.Errorf("rpc: rate limit and burst must be positive")
	}
	if c.BlockIntervalSeconds <= 0 {
		return fmt.Errorf("chain: block interval must be positive")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"OwnerAddress", c.OwnerAddress},
		{"VaultAddress", c.VaultAddress},
	} {
		if strings.TrimSpace(field.value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	for symbol, value := range c.ReferencePrices {
		price, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
		if !ok || price.Sign() <= 0 {
			return fmt.Errorf("prices: %s must be a positive integer, got %q", symbol, value)
		}
	}
	if err := c.Auction.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("auction: %w", err)
	}
	return nil
}
